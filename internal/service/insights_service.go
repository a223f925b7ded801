// Package service exposes the anomaly and forecast pipelines behind request
// types that are validated before any data is loaded.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/castlemilk/pfinance/insights/internal/anomaly"
	"github.com/castlemilk/pfinance/insights/internal/forecast"
	"github.com/castlemilk/pfinance/insights/internal/observability"
	"github.com/castlemilk/pfinance/insights/internal/store"
	"go.uber.org/zap"
)

// ErrInvalidRequest is wrapped by every request validation failure.
var ErrInvalidRequest = errors.New("invalid request")

const (
	operationDetect   = "detect_anomalies"
	operationForecast = "forecast_expenses"
)

// AnomalyRequest asks for anomalies in a user's transactions between two dates.
// A nil Threshold uses the service default.
type AnomalyRequest struct {
	UserID    int64
	StartDate time.Time
	EndDate   time.Time
	Threshold *float64
}

// ForecastRequest asks for a next-month expense forecast from the given history window.
type ForecastRequest struct {
	UserID    int64
	StartDate time.Time
	EndDate   time.Time
}

// Config holds configuration for the insights service.
type Config struct {
	DefaultThreshold float64
	Anomaly          anomaly.Config
	Forecast         forecast.Config
}

// DefaultConfig returns the production settings of both pipelines.
func DefaultConfig() Config {
	return Config{
		DefaultThreshold: anomaly.DefaultThreshold,
		Anomaly:          anomaly.DefaultConfig(),
		Forecast:         forecast.DefaultConfig(),
	}
}

// InsightsService serves anomaly detection and expense forecasting for one
// transaction source.
type InsightsService struct {
	loader           store.TransactionLoader
	detector         *anomaly.Detector
	forecaster       *forecast.Forecaster
	defaultThreshold float64
	logger           *zap.Logger
}

// NewInsightsService wires both pipelines to loader. Call Close when done.
func NewInsightsService(loader store.TransactionLoader, cfg Config, logger *zap.Logger) *InsightsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InsightsService{
		loader:           loader,
		detector:         anomaly.NewDetector(loader, cfg.Anomaly, logger),
		forecaster:       forecast.NewForecaster(loader, cfg.Forecast, logger),
		defaultThreshold: cfg.DefaultThreshold,
		logger:           logger.With(zap.String("component", "insights_service")),
	}
}

// Close stops background work owned by the pipelines.
func (s *InsightsService) Close() {
	s.forecaster.Close()
}

// ============================================================================
// Anomaly detection
// ============================================================================

// DetectAnomalies validates req and runs anomaly detection over the user's window.
func (s *InsightsService) DetectAnomalies(ctx context.Context, req AnomalyRequest) (*anomaly.Result, error) {
	start := time.Now()
	defer observeDuration(operationDetect, start)

	logger := s.logger.With(zap.Int64("user_id", req.UserID))
	if err := validateWindow(req.UserID, req.StartDate, req.EndDate); err != nil {
		logger.Warn("detect_anomalies_rejected", zap.Error(err))
		observability.Detections.WithLabelValues(observability.OutcomeInvalidRequest).Inc()
		return nil, err
	}

	threshold := s.defaultThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	result, err := s.detector.Detect(ctx, req.UserID, req.StartDate, req.EndDate, threshold)
	if err != nil {
		logger.Error("detect_anomalies_failed", zap.Float64("threshold", threshold), zap.Error(err))
		return nil, err
	}
	return result, nil
}

// ============================================================================
// Expense forecasting
// ============================================================================

// ForecastExpenses validates req and forecasts next month's expenses. It never
// fails: an invalid request yields a zero forecast explaining the problem.
func (s *InsightsService) ForecastExpenses(ctx context.Context, req ForecastRequest) *forecast.Result {
	start := time.Now()
	defer observeDuration(operationForecast, start)

	if err := validateWindow(req.UserID, req.StartDate, req.EndDate); err != nil {
		s.logger.Warn("forecast_expenses_rejected", zap.Int64("user_id", req.UserID), zap.Error(err))
		observability.Forecasts.WithLabelValues(observability.OutcomeInvalidRequest).Inc()
		return &forecast.Result{
			UserID:            req.UserID,
			CategoryBreakdown: []forecast.CategoryForecast{},
			Trends:            []forecast.Trend{},
			Recommendations:   []string{err.Error()},
			GeneratedAt:       time.Now().UTC(),
		}
	}
	return s.forecaster.Forecast(ctx, req.UserID, req.StartDate, req.EndDate)
}

func validateWindow(userID int64, startDate, endDate time.Time) error {
	if userID <= 0 {
		return fmt.Errorf("%w: user_id must be positive, got %d", ErrInvalidRequest, userID)
	}
	if startDate.IsZero() || endDate.IsZero() {
		return fmt.Errorf("%w: start_date and end_date are required", ErrInvalidRequest)
	}
	if store.DateOf(startDate).After(store.DateOf(endDate)) {
		return fmt.Errorf("%w: start_date %s is after end_date %s", ErrInvalidRequest,
			startDate.Format(time.DateOnly), endDate.Format(time.DateOnly))
	}
	return nil
}

func observeDuration(operation string, start time.Time) {
	observability.RequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
