// Package forecast predicts next month's expense total from a user's history
// by blending a cached per-user regression forest with an EMA projection of
// daily spending.
package forecast

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
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

const (
	// MinTransactions is the fewest raw transactions a forecast is attempted on.
	MinTransactions = 5

	// MinMonths is the fewest distinct months of expense history required.
	MinMonths = 3

	mlWeight          = 0.6
	emaWeight         = 0.4
	saturationMonths  = 36
	baseConfidenceCap = 0.95
	agreementBoost    = 0.1
	maxConfidence     = 0.99
	minEMADays        = 5
	minEMASpan        = 5
	maxEMASpan        = 20
	daysPerMonth      = 30
)

// Result is the forecast returned to callers. A degenerate result has a zero
// prediction, zero confidence and an explanatory recommendation.
type Result struct {
	UserID            int64              `json:"user_id"`
	PredictedAmount   float64            `json:"predicted_amount"`
	ConfidenceScore   float64            `json:"confidence_score"`
	MLPrediction      float64            `json:"ml_prediction"`
	EMAProjection     *float64           `json:"ema_projection,omitempty"`
	CategoryBreakdown []CategoryForecast `json:"category_breakdown"`
	Trends            []Trend            `json:"trends"`
	Recommendations   []string           `json:"recommendations"`
	GeneratedAt       time.Time          `json:"generated_at"`
}

// Trainer fits a regressor on a leakage-safe training set.
type Trainer interface {
	Train(X [][]float64, y []float64) (ml.Regressor, error)
}

// TrainerFunc adapts a function to Trainer.
type TrainerFunc func(X [][]float64, y []float64) (ml.Regressor, error)

func (f TrainerFunc) Train(X [][]float64, y []float64) (ml.Regressor, error) {
	return f(X, y)
}

// ForestTrainer trains a RandomForestRegressor.
type ForestTrainer struct {
	NEstimators int
	MaxDepth    int
	Seed        int64
}

func (t ForestTrainer) Train(X [][]float64, y []float64) (ml.Regressor, error) {
	forest := &ml.RandomForestRegressor{
		NEstimators: t.NEstimators,
		MaxDepth:    t.MaxDepth,
		Seed:        t.Seed,
	}
	if err := forest.Fit(X, y); err != nil {
		return nil, err
	}
	return forest, nil
}

// Config holds configuration for the forecaster. Zero fields take the
// DefaultConfig value, so a zero Seed selects the default seed.
type Config struct {
	NEstimators   int
	MaxDepth      int
	Seed          int64
	Locale        language.Tag
	CacheMaxUsers int
	CacheTTL      time.Duration

	// Trainer overrides the default forest trainer.
	Trainer Trainer

	// Now overrides the clock used for GeneratedAt.
	Now func() time.Time
}

// DefaultConfig returns the production model settings.
func DefaultConfig() Config {
	return Config{
		NEstimators:   200,
		MaxDepth:      10,
		Seed:          42,
		Locale:        i18n.DefaultLocale,
		CacheMaxUsers: 1000,
		CacheTTL:      24 * time.Hour,
	}
}

// Forecaster produces next-month expense forecasts. It never returns an error.
type Forecaster struct {
	loader  store.TransactionLoader
	trainer Trainer
	cache   *ModelCache
	printer *i18n.Printer
	logger  *zap.Logger
	now     func() time.Time
}

// NewForecaster creates a forecaster reading transactions through loader.
// Call Close to stop the model cache sweep.
func NewForecaster(loader store.TransactionLoader, cfg Config, logger *zap.Logger) *Forecaster {
	defaults := DefaultConfig()
	if cfg.NEstimators <= 0 {
		cfg.NEstimators = defaults.NEstimators
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = defaults.MaxDepth
	}
	if cfg.Seed == 0 {
		cfg.Seed = defaults.Seed
	}
	if cfg.Locale == language.Und {
		cfg.Locale = defaults.Locale
	}
	if cfg.CacheMaxUsers <= 0 {
		cfg.CacheMaxUsers = defaults.CacheMaxUsers
	}
	if cfg.Trainer == nil {
		cfg.Trainer = ForestTrainer{NEstimators: cfg.NEstimators, MaxDepth: cfg.MaxDepth, Seed: cfg.Seed}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Forecaster{
		loader:  loader,
		trainer: cfg.Trainer,
		cache:   NewModelCache(cfg.CacheMaxUsers, cfg.CacheTTL),
		printer: i18n.NewPrinter(cfg.Locale),
		logger:  logger.With(zap.String("component", "forecaster")),
		now:     cfg.Now,
	}
}

// Close releases background resources.
func (f *Forecaster) Close() {
	f.cache.Stop()
}

// Forecast loads the user's transactions for the date range and forecasts next month's expenses.
func (f *Forecaster) Forecast(ctx context.Context, userID int64, startDate, endDate time.Time) *Result {
	return f.ForecastTransactions(userID, f.loader.Load(ctx, userID, startDate, endDate))
}

// ForecastTransactions forecasts from already loaded transactions. Failures,
// including panics, degrade to a zero result carrying the error message.
func (f *Forecaster) ForecastTransactions(userID int64, transactions []store.Transaction) (res *Result) {
	logger := f.logger.With(zap.Int64("user_id", userID))
	defer func() {
		if r := recover(); r != nil {
			res = f.failed(logger, userID, fmt.Errorf("panic: %v", r))
		}
	}()

	if len(transactions) < MinTransactions {
		logger.Info("forecast_skipped", zap.String("reason", "too_few_transactions"), zap.Int("n_transactions", len(transactions)))
		observability.Forecasts.WithLabelValues(observability.OutcomeInsufficientData).Inc()
		return f.degenerate(userID, f.printer.Sprintf(i18n.ForecastNeedMoreData))
	}

	series := BuildMonthlySeries(transactions)
	if len(series) < MinMonths {
		logger.Info("forecast_skipped", zap.String("reason", "too_few_months"), zap.Int("n_months", len(series)))
		observability.Forecasts.WithLabelValues(observability.OutcomeInsufficientData).Inc()
		return f.degenerate(userID, f.printer.Sprintf(i18n.ForecastInsufficientData))
	}

	mlPred, err := f.predictNextMonth(logger, userID, series)
	if err != nil {
		return f.failed(logger, userID, err)
	}

	emaProj := EMAProjection(transactions)
	predicted := Blend(mlPred, emaProj)

	res = &Result{
		UserID:            userID,
		PredictedAmount:   predicted,
		ConfidenceScore:   Confidence(len(series), mlPred, emaProj),
		MLPrediction:      mlPred,
		EMAProjection:     emaProj,
		CategoryBreakdown: categoryBreakdown(transactions),
		Trends:            monthlyTrends(series),
		Recommendations:   f.recommendations(transactions, series, predicted),
		GeneratedAt:       f.now().UTC(),
	}

	logger.Info("forecast_completed",
		zap.Int("n_transactions", len(transactions)),
		zap.Int("n_months", len(series)),
		zap.Float64("ml_prediction", mlPred),
		zap.Bool("has_ema", emaProj != nil),
		zap.Float64("predicted_amount", res.PredictedAmount),
		zap.Float64("confidence", res.ConfidenceScore))
	observability.Forecasts.WithLabelValues(observability.OutcomeOK).Inc()
	return res
}

func (f *Forecaster) predictNextMonth(logger *zap.Logger, userID int64, series []MonthlyRow) (float64, error) {
	fingerprint := Fingerprint(series)
	model, cached, err := f.cache.GetOrTrain(userID, fingerprint, func() (ml.Regressor, error) {
		X, y := TrainingSet(series)
		start := time.Now()
		model, err := f.trainer.Train(X, y)
		observability.ModelTrainingDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			return nil, fmt.Errorf("failed to train forecast model: %w", err)
		}
		logger.Debug("forecast_model_trained", zap.String("fingerprint", fingerprint), zap.Int("n_rows", len(X)))
		return model, nil
	})
	if err != nil {
		return 0, err
	}
	logger.Debug("forecast_model_ready", zap.String("fingerprint", fingerprint), zap.Bool("cached", cached))

	pred, err := model.Predict(NextMonthFeatures(series))
	if err != nil {
		return 0, fmt.Errorf("failed to predict next month: %w", err)
	}
	if math.IsNaN(pred) || math.IsInf(pred, 0) {
		return 0, fmt.Errorf("model produced a non-finite prediction")
	}
	return pred, nil
}

// EMAProjection smooths daily expense totals and scales the last value to a
// month. It returns nil when fewer than five distinct days have expenses.
func EMAProjection(transactions []store.Transaction) *float64 {
	daily := make(map[time.Time]float64)
	for _, tx := range transactions {
		if tx.IsExpense() {
			daily[store.DateOf(tx.Date)] += tx.Amount
		}
	}
	if len(daily) < minEMADays {
		return nil
	}

	days := make([]time.Time, 0, len(daily))
	for d := range daily {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	values := make([]float64, len(days))
	for i, d := range days {
		values[i] = daily[d]
	}

	span := min(max(len(values)/2, minEMASpan), maxEMASpan)
	ema := ml.EMA(values, span)
	projection := math.Max(0, ema[len(ema)-1]*daysPerMonth)
	return &projection
}

// Blend combines the model prediction with the EMA projection when present. The result is never negative.
func Blend(mlPred float64, emaProj *float64) float64 {
	if emaProj == nil {
		return math.Max(0, mlPred)
	}
	return math.Max(0, mlWeight*mlPred+emaWeight*(*emaProj))
}

// Confidence grows with months of history and gets a bounded boost when the
// two signals agree.
func Confidence(months int, mlPred float64, emaProj *float64) float64 {
	base := baseConfidenceCap * math.Min(1, float64(months)/saturationMonths)
	if emaProj == nil {
		return base
	}
	ts := *emaProj
	agree := 1 - math.Min(1, math.Abs(mlPred-ts)/math.Max(1, math.Abs(mlPred)+math.Abs(ts)))
	return math.Min(maxConfidence, base*(1+agreementBoost*agree))
}

func (f *Forecaster) degenerate(userID int64, message string) *Result {
	return &Result{
		UserID:            userID,
		CategoryBreakdown: []CategoryForecast{},
		Trends:            []Trend{},
		Recommendations:   []string{message},
		GeneratedAt:       f.now().UTC(),
	}
}

func (f *Forecaster) failed(logger *zap.Logger, userID int64, err error) *Result {
	logger.Error("forecast_failed", zap.Error(err))
	observability.Forecasts.WithLabelValues(observability.OutcomeError).Inc()
	return f.degenerate(userID, f.printer.Sprintf(i18n.ForecastFailed, err.Error()))
}
