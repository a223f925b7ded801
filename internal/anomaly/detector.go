package anomaly

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/castlemilk/pfinance/insights/internal/i18n"
	"github.com/castlemilk/pfinance/insights/internal/ml"
	"github.com/castlemilk/pfinance/insights/internal/observability"
	"github.com/castlemilk/pfinance/insights/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

// Type explains why a transaction was flagged.
type Type string

const (
	TypeAmountPattern     Type = "amount_pattern"
	TypeCategoryPattern   Type = "category_pattern"
	TypeBehavioralPattern Type = "behavioral_pattern"
)

const (
	// MinTransactions is the smallest expense sample a model is fitted on.
	MinTransactions = 10

	// DefaultThreshold is the strictness used when a caller does not pick one.
	DefaultThreshold = 0.6
)

const (
	zScoreLimit       = 2.0
	medianRatioLimit  = 3.0
	rareCategoryLimit = 0.05
	minContamination  = 0.01
	maxContamination  = 0.3
	highScoreBand     = 0.8
	mediumScoreBand   = 0.6
	defaultEstimators = 200
	defaultForestSeed = 42
)

// Anomaly is a flagged expense transaction.
type Anomaly struct {
	ID              string    `json:"id"`
	TransactionID   int64     `json:"transaction_id"`
	Amount          float64   `json:"amount"`
	CategoryName    string    `json:"category_name"`
	AnomalyScore    float64   `json:"anomaly_score"`
	AnomalyType     Type      `json:"anomaly_type"`
	Description     string    `json:"description"`
	TransactionDate time.Time `json:"transaction_date"`
}

// Result is the outcome of one detection request.
type Result struct {
	UserID         int64     `json:"user_id"`
	Anomalies      []Anomaly `json:"anomalies"`
	TotalAnomalies int       `json:"total_anomalies"`
	DetectionScore float64   `json:"detection_score"`
	Contamination  float64   `json:"contamination"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// Config tunes the outlier model. Zero fields take the DefaultConfig value,
// so a zero Seed selects the default seed.
type Config struct {
	NEstimators int
	Seed        int64
	Locale      language.Tag
}

// DefaultConfig returns the production model settings.
func DefaultConfig() Config {
	return Config{
		NEstimators: defaultEstimators,
		Seed:        defaultForestSeed,
		Locale:      i18n.DefaultLocale,
	}
}

// Detector flags unusual expense transactions relative to the user's own window.
type Detector struct {
	loader  store.TransactionLoader
	cfg     Config
	printer *i18n.Printer
	logger  *zap.Logger
	now     func() time.Time
}

// NewDetector creates a detector reading transactions through loader.
func NewDetector(loader store.TransactionLoader, cfg Config, logger *zap.Logger) *Detector {
	if cfg.NEstimators <= 0 {
		cfg.NEstimators = defaultEstimators
	}
	if cfg.Seed == 0 {
		cfg.Seed = defaultForestSeed
	}
	if cfg.Locale == language.Und {
		cfg.Locale = i18n.DefaultLocale
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{
		loader:  loader,
		cfg:     cfg,
		printer: i18n.NewPrinter(cfg.Locale),
		logger:  logger.With(zap.String("component", "anomaly_detector")),
		now:     time.Now,
	}
}

// Contamination maps a strictness threshold in [0, 1] to the expected outlier
// fraction. A higher threshold yields a lower contamination.
func Contamination(threshold float64) float64 {
	return ml.Clamp(0.3*(1-threshold)+0.01, minContamination, maxContamination)
}

// Detect loads the user's transactions for the date range and flags anomalous expenses.
func (d *Detector) Detect(ctx context.Context, userID int64, startDate, endDate time.Time, threshold float64) (*Result, error) {
	if err := validateThreshold(threshold); err != nil {
		return nil, err
	}
	transactions := d.loader.Load(ctx, userID, startDate, endDate)
	return d.DetectTransactions(userID, transactions, threshold)
}

// DetectTransactions runs detection over already loaded transactions. Income rows are ignored.
func (d *Detector) DetectTransactions(userID int64, transactions []store.Transaction, threshold float64) (*Result, error) {
	if err := validateThreshold(threshold); err != nil {
		return nil, err
	}
	logger := d.logger.With(zap.Int64("user_id", userID))
	contamination := Contamination(threshold)
	result := &Result{
		UserID:        userID,
		Anomalies:     []Anomaly{},
		Contamination: contamination,
		GeneratedAt:   d.now().UTC(),
	}

	expenses := make([]store.Transaction, 0, len(transactions))
	for _, tx := range transactions {
		if tx.IsExpense() {
			expenses = append(expenses, tx)
		}
	}
	if len(expenses) < MinTransactions {
		logger.Info("anomaly_detection_skipped",
			zap.Int("n_transactions", len(expenses)),
			zap.Int("min_transactions", MinTransactions))
		observability.Detections.WithLabelValues(observability.OutcomeInsufficientData).Inc()
		return result, nil
	}

	X, stats := buildFeatures(expenses)
	for i, row := range X {
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				observability.Detections.WithLabelValues(observability.OutcomeError).Inc()
				return nil, newError(ErrFeatureBuild,
					fmt.Sprintf("feature %d of transaction %d is not finite", j, expenses[i].ID), ml.ErrNonFinite)
			}
		}
	}

	var scaler ml.StandardScaler
	scaled, err := scaler.FitTransform(X)
	if err != nil {
		observability.Detections.WithLabelValues(observability.OutcomeError).Inc()
		return nil, newError(ErrScaling, "failed to standardize features", err)
	}

	forest := &ml.IsolationForest{
		NEstimators:   d.cfg.NEstimators,
		Contamination: contamination,
		Seed:          d.cfg.Seed,
	}
	if err := forest.Fit(scaled); err != nil {
		observability.Detections.WithLabelValues(observability.OutcomeError).Inc()
		return nil, newError(ErrModelFit, "failed to fit isolation forest", err)
	}
	decision, err := forest.DecisionFunction(scaled)
	if err != nil {
		observability.Detections.WithLabelValues(observability.OutcomeError).Inc()
		return nil, newError(ErrModelFit, "failed to score transactions", err)
	}

	for i, score := range decision {
		if score >= 0 {
			continue
		}
		tx := expenses[i]
		normalized := NormalizeScore(score)
		kind := classify(stats[i])
		result.Anomalies = append(result.Anomalies, Anomaly{
			ID:              uuid.New().String(),
			TransactionID:   tx.ID,
			Amount:          tx.Amount,
			CategoryName:    tx.CategoryName,
			AnomalyScore:    normalized,
			AnomalyType:     kind,
			Description:     d.describe(kind, normalized, tx),
			TransactionDate: tx.Date,
		})
	}

	sort.SliceStable(result.Anomalies, func(i, j int) bool {
		a, b := result.Anomalies[i], result.Anomalies[j]
		if a.AnomalyScore != b.AnomalyScore {
			return a.AnomalyScore > b.AnomalyScore
		}
		if !a.TransactionDate.Equal(b.TransactionDate) {
			return a.TransactionDate.Before(b.TransactionDate)
		}
		return a.TransactionID < b.TransactionID
	})

	result.TotalAnomalies = len(result.Anomalies)
	if result.TotalAnomalies > 0 {
		sum := 0.0
		for _, a := range result.Anomalies {
			sum += a.AnomalyScore
		}
		result.DetectionScore = sum / float64(result.TotalAnomalies)
	}

	logger.Info("anomaly_detection_completed",
		zap.Int("n_transactions", len(expenses)),
		zap.Float64("contamination", contamination),
		zap.Float64("offset", forest.Offset()),
		zap.Int("total_anomalies", result.TotalAnomalies))
	observability.Detections.WithLabelValues(observability.OutcomeOK).Inc()
	observability.AnomaliesFlagged.Observe(float64(result.TotalAnomalies))
	return result, nil
}

func validateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		observability.Detections.WithLabelValues(observability.OutcomeInvalidRequest).Inc()
		return newError(ErrInvalidThreshold, fmt.Sprintf("threshold %v must be within [0, 1]", threshold), nil)
	}
	return nil
}

// NormalizeScore maps a decision score (negative for outliers) into [0, 1],
// higher meaning more anomalous.
func NormalizeScore(decision float64) float64 {
	return ml.Clamp(0.5-decision, 0, 1)
}

func classify(s featureStats) Type {
	switch {
	case math.Abs(s.zScore) > zScoreLimit || s.medianRatio > medianRatioLimit:
		return TypeAmountPattern
	case s.frequency < rareCategoryLimit:
		return TypeCategoryPattern
	default:
		return TypeBehavioralPattern
	}
}
