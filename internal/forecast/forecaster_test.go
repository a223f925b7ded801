package forecast

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/castlemilk/pfinance/insights/internal/i18n"
	"github.com/castlemilk/pfinance/insights/internal/ml"
	"github.com/castlemilk/pfinance/insights/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

var fixedNow = time.Date(2025, 1, 15, 9, 30, 0, 0, time.UTC)

type constRegressor float64

func (c constRegressor) Predict(x []float64) (float64, error) { return float64(c), nil }

// countingTrainer wraps a trainer and counts Train calls.
type countingTrainer struct {
	inner Trainer
	calls atomic.Int32
}

func (c *countingTrainer) Train(X [][]float64, y []float64) (ml.Regressor, error) {
	c.calls.Add(1)
	return c.inner.Train(X, y)
}

func newCountingTrainer() *countingTrainer {
	return &countingTrainer{inner: ForestTrainer{NEstimators: 50, MaxDepth: 10, Seed: 42}}
}

func newTestForecaster(t *testing.T, trainer Trainer) *Forecaster {
	t.Helper()
	f := NewForecaster(nil, Config{
		NEstimators:   50,
		Seed:          42,
		CacheMaxUsers: 10,
		Trainer:       trainer,
		Now:           func() time.Time { return fixedNow },
	}, zap.NewNop())
	t.Cleanup(f.Close)
	return f
}

// spreadMonth splits total evenly over every day of the month.
func spreadMonth(year int, month time.Month, total float64, category string, nextID *int64) []store.Transaction {
	days := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	txs := make([]store.Transaction, 0, days)
	for d := 1; d <= days; d++ {
		*nextID++
		txs = append(txs, store.Transaction{
			ID:           *nextID,
			Amount:       total / float64(days),
			CategoryID:   1,
			CategoryName: category,
			Date:         time.Date(year, month, d, 0, 0, 0, 0, time.UTC),
			Type:         store.TransactionTypeExpense,
		})
	}
	return txs
}

func constantHistory(months int) []store.Transaction {
	var id int64
	var txs []store.Transaction
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < months; i++ {
		m := start.AddDate(0, i, 0)
		txs = append(txs, spreadMonth(m.Year(), m.Month(), 1_000_000, "Rent", &id)...)
	}
	return txs
}

func assertDegenerate(t *testing.T, res *Result, message string) {
	t.Helper()
	require.NotNil(t, res)
	assert.Equal(t, 0.0, res.PredictedAmount)
	assert.Equal(t, 0.0, res.ConfidenceScore)
	assert.Equal(t, []string{message}, res.Recommendations)
	assert.Empty(t, res.CategoryBreakdown)
	assert.Empty(t, res.Trends)
	assert.Equal(t, fixedNow, res.GeneratedAt)
}

func TestForecastInsufficientData(t *testing.T) {
	vi := i18n.NewPrinter(language.Vietnamese)

	t.Run("four transactions need more data", func(t *testing.T) {
		trainer := newCountingTrainer()
		f := newTestForecaster(t, trainer)
		txs := constantHistory(3)[:4]

		res := f.ForecastTransactions(1, txs)
		assertDegenerate(t, res, vi.Sprintf(i18n.ForecastNeedMoreData))
		assert.Equal(t, int32(0), trainer.calls.Load())
	})

	t.Run("two months are not enough history", func(t *testing.T) {
		f := newTestForecaster(t, newCountingTrainer())
		res := f.ForecastTransactions(1, constantHistory(2))
		assertDegenerate(t, res, vi.Sprintf(i18n.ForecastInsufficientData))
	})

	t.Run("income alone has no monthly series", func(t *testing.T) {
		f := newTestForecaster(t, newCountingTrainer())
		var txs []store.Transaction
		for i := 0; i < 6; i++ {
			txs = append(txs, store.Transaction{ID: int64(i), Amount: 1000, Date: time.Date(2024, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC), Type: store.TransactionTypeIncome})
		}
		res := f.ForecastTransactions(1, txs)
		assertDegenerate(t, res, vi.Sprintf(i18n.ForecastInsufficientData))
	})
}

func TestForecastConstantSeries(t *testing.T) {
	f := newTestForecaster(t, newCountingTrainer())

	res := f.ForecastTransactions(1, constantHistory(12))
	require.NotNil(t, res)

	assert.InDelta(t, 1_000_000, res.MLPrediction, 1_000)
	require.NotNil(t, res.EMAProjection)
	assert.InDelta(t, 1_000_000, *res.EMAProjection, 100_000)
	assert.InDelta(t, 1_000_000, res.PredictedAmount, 50_000)
	assert.Equal(t, fixedNow, res.GeneratedAt)

	low := newTestForecaster(t, newCountingTrainer()).ForecastTransactions(1, constantHistory(3))
	assert.Greater(t, res.ConfidenceScore, low.ConfidenceScore)
	assert.Greater(t, low.ConfidenceScore, 0.0)
	assert.LessOrEqual(t, res.ConfidenceScore, 0.99)

	require.Len(t, res.Trends, 12)
	assert.Equal(t, "2024-01", res.Trends[0].Period)
	assert.Equal(t, "2024-12", res.Trends[11].Period)

	require.Len(t, res.CategoryBreakdown, 1)
	assert.Equal(t, "Rent", res.CategoryBreakdown[0].CategoryName)
	assert.InDelta(t, 12_000_000, res.CategoryBreakdown[0].PredictedAmount, 1e-3)
	assert.InDelta(t, 100, res.CategoryBreakdown[0].Share, 1e-9)
	assert.LessOrEqual(t, len(res.Recommendations), 5)
}

func TestForecastModelCache(t *testing.T) {
	trainer := newCountingTrainer()
	f := newTestForecaster(t, trainer)

	history := constantHistory(6)
	first := f.ForecastTransactions(7, history)
	second := f.ForecastTransactions(7, history)
	assert.Equal(t, int32(1), trainer.calls.Load(), "unchanged series reuses the model")
	assert.Equal(t, first.MLPrediction, second.MLPrediction)

	id := int64(10_000)
	extended := append(append([]store.Transaction(nil), history...),
		spreadMonth(2024, time.July, 1_500_000, "Rent", &id)...)
	f.ForecastTransactions(7, extended)
	assert.Equal(t, int32(2), trainer.calls.Load(), "a new month retrains")

	f.ForecastTransactions(7, extended)
	assert.Equal(t, int32(2), trainer.calls.Load())

	f.ForecastTransactions(8, extended)
	assert.Equal(t, int32(3), trainer.calls.Load(), "models are per user")
}

func TestForecastNeverFails(t *testing.T) {
	history := constantHistory(4)
	vi := i18n.NewPrinter(language.Vietnamese)

	t.Run("training error degrades", func(t *testing.T) {
		f := newTestForecaster(t, TrainerFunc(func(X [][]float64, y []float64) (ml.Regressor, error) {
			return nil, errors.New("boom")
		}))
		res := f.ForecastTransactions(1, history)
		require.NotNil(t, res)
		assert.Equal(t, 0.0, res.PredictedAmount)
		assert.Equal(t, 0.0, res.ConfidenceScore)
		require.Len(t, res.Recommendations, 1)
		assert.True(t, strings.HasPrefix(res.Recommendations[0], vi.Sprintf(i18n.ForecastFailed, "")))
		assert.Contains(t, res.Recommendations[0], "boom")
	})

	t.Run("panic degrades", func(t *testing.T) {
		f := newTestForecaster(t, TrainerFunc(func(X [][]float64, y []float64) (ml.Regressor, error) {
			panic("index out of range")
		}))
		res := f.ForecastTransactions(1, history)
		require.NotNil(t, res)
		assert.Equal(t, 0.0, res.PredictedAmount)
		assert.Contains(t, res.Recommendations[0], "index out of range")
	})

	t.Run("negative model output is clamped", func(t *testing.T) {
		f := newTestForecaster(t, TrainerFunc(func(X [][]float64, y []float64) (ml.Regressor, error) {
			return constRegressor(-5_000_000), nil
		}))
		res := f.ForecastTransactions(1, history)
		assert.GreaterOrEqual(t, res.PredictedAmount, 0.0)
	})
}

func TestForecastThroughLoader(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	for _, tx := range constantHistory(5) {
		name := tx.CategoryName
		mem.AddTransaction(ctx, store.Record{
			UserID:       3,
			Amount:       decimal.NewNullDecimal(decimal.NewFromFloat(tx.Amount)),
			CategoryID:   tx.CategoryID,
			CategoryName: &name,
			Date:         tx.Date,
			Type:         string(tx.Type),
		})
	}
	mem.AddTransaction(ctx, store.Record{
		UserID: 3,
		Amount: decimal.NewNullDecimal(decimal.NewFromInt(20_000_000)),
		Date:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Type:   "income",
	})

	loader := store.NewLoader(mem, "memory", zap.NewNop())
	f := NewForecaster(loader, Config{NEstimators: 30, Locale: language.English, Now: func() time.Time { return fixedNow }}, zap.NewNop())
	defer f.Close()

	res := f.Forecast(ctx, 3, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
	require.NotNil(t, res)
	assert.Greater(t, res.PredictedAmount, 0.0)
	assert.Contains(t, res.Recommendations, fmt.Sprintf(i18n.ForecastCategoryDominates, "Rent"))
	assert.Contains(t, res.Recommendations, i18n.ForecastSavingWell)

	empty := f.Forecast(ctx, 99, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, []string{i18n.ForecastNeedMoreData}, empty.Recommendations)
}

func TestNewForecasterDefaults(t *testing.T) {
	f := NewForecaster(nil, Config{NEstimators: 30}, nil)
	defer f.Close()

	trainer, ok := f.trainer.(ForestTrainer)
	require.True(t, ok)
	assert.Equal(t, ForestTrainer{NEstimators: 30, MaxDepth: 10, Seed: 42}, trainer)
}

func TestBlendAndConfidence(t *testing.T) {
	ema := 800.0
	assert.InDelta(t, 0.6*1000+0.4*800, Blend(1000, &ema), 1e-9)
	assert.Equal(t, 1000.0, Blend(1000, nil))
	assert.Equal(t, 0.0, Blend(-10, nil))

	neg := -5000.0
	assert.Equal(t, 0.0, Blend(100, &neg))

	assert.InDelta(t, 0.95*12.0/36.0, Confidence(12, 1000, nil), 1e-12)
	assert.InDelta(t, 0.95, Confidence(48, 1000, nil), 1e-12)

	same := 1000.0
	assert.InDelta(t, 0.95*12.0/36.0*1.1, Confidence(12, 1000, &same), 1e-12)
	assert.InDelta(t, 0.99, Confidence(60, 1000, &same), 1e-12, "capped")

	far := 0.0
	assert.InDelta(t, 0.95*12.0/36.0, Confidence(12, 1000, &far), 1e-12, "no agreement, no boost")
}

func TestEMAProjection(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC) }

	four := []store.Transaction{
		{Amount: 10, Date: day(1), Type: store.TransactionTypeExpense},
		{Amount: 10, Date: day(2), Type: store.TransactionTypeExpense},
		{Amount: 10, Date: day(3), Type: store.TransactionTypeExpense},
		{Amount: 10, Date: day(4), Type: store.TransactionTypeExpense},
		{Amount: 999, Date: day(5), Type: store.TransactionTypeIncome},
	}
	assert.Nil(t, EMAProjection(four), "income days do not count")

	five := append(four[:4:4], store.Transaction{Amount: 10, Date: day(5), Type: store.TransactionTypeExpense})
	proj := EMAProjection(five)
	require.NotNil(t, proj)
	assert.InDelta(t, 300, *proj, 1e-9)

	// Same-day amounts are summed before smoothing.
	split := append(five[:5:5], store.Transaction{Amount: 10, Date: day(5), Type: store.TransactionTypeExpense})
	proj = EMAProjection(split)
	require.NotNil(t, proj)
	alpha := 2.0 / 6.0
	assert.InDelta(t, (alpha*20+(1-alpha)*10)*30, *proj, 1e-9)
}

func TestMonthlyTrends(t *testing.T) {
	series := []MonthlyRow{
		{YearMonth: "2024-01", TotalExpense: 100},
		{YearMonth: "2024-02", TotalExpense: 150},
		{YearMonth: "2024-03", TotalExpense: 150},
		{YearMonth: "2024-04", TotalExpense: 75},
	}
	trends := monthlyTrends(series)
	require.Len(t, trends, 4)

	assert.Equal(t, TrendStable, trends[0].Trend)
	assert.Equal(t, 0.0, trends[0].ChangePercentage)
	assert.Equal(t, TrendIncreasing, trends[1].Trend)
	assert.InDelta(t, 50, trends[1].ChangePercentage, 1e-9)
	assert.Equal(t, TrendStable, trends[2].Trend)
	assert.Equal(t, TrendStable, trends[3].Trend)
	assert.InDelta(t, -50, trends[3].ChangePercentage, 1e-9)
}

func TestCategoryBreakdown(t *testing.T) {
	var txs []store.Transaction
	names := []string{"A", "B", "C", "D", "E", "F", "G"}
	for i, name := range names {
		txs = append(txs, store.Transaction{ID: int64(i), Amount: float64((i + 1) * 100), CategoryID: int64(i + 1), CategoryName: name, Type: store.TransactionTypeExpense})
	}
	txs = append(txs, store.Transaction{Amount: 1e9, CategoryName: "Salary", Type: store.TransactionTypeIncome})

	breakdown := categoryBreakdown(txs)
	require.Len(t, breakdown, 5)
	assert.Equal(t, "G", breakdown[0].CategoryName)
	assert.Equal(t, int64(7), breakdown[0].CategoryID)
	assert.Equal(t, "C", breakdown[4].CategoryName)
	for _, c := range breakdown {
		assert.Equal(t, c.HistoricalTotal, c.PredictedAmount)
		assert.Equal(t, 0.8, c.ConfidenceScore)
		assert.Equal(t, TrendStable, c.Trend)
	}
	assert.InDelta(t, 700.0/2800.0*100, breakdown[0].Share, 1e-9)
}

func TestRecommendations(t *testing.T) {
	f := newTestForecaster(t, newCountingTrainer())
	en := NewForecaster(nil, Config{Locale: language.English}, zap.NewNop())
	defer en.Close()

	history := constantHistory(3)
	series := BuildMonthlySeries(history)

	t.Run("spending close to income", func(t *testing.T) {
		txs := append(append([]store.Transaction(nil), history...),
			store.Transaction{Amount: 3_200_000, Type: store.TransactionTypeIncome, Date: history[0].Date})
		recs := en.recommendations(txs, series, 2_000_000)
		assert.Equal(t, []string{
			i18n.ForecastAboveAverage,
			fmt.Sprintf(i18n.ForecastCategoryDominates, "Rent"),
			i18n.ForecastNearIncome,
			i18n.ForecastTrackDaily,
			i18n.ForecastSetGoals,
		}, recs)
	})

	t.Run("no income rule without income", func(t *testing.T) {
		recs := en.recommendations(history, series, 1_000_000)
		assert.Len(t, recs, 3)
		assert.NotContains(t, recs, i18n.ForecastAboveAverage)
	})

	t.Run("zero spending", func(t *testing.T) {
		zero := []store.Transaction{{Amount: 0, CategoryName: "X", Type: store.TransactionTypeExpense}}
		recs := f.recommendations(zero, series, 0)
		assert.Equal(t, []string{i18n.NewPrinter(language.Vietnamese).Sprintf(i18n.ForecastNoExpenseData)}, recs)
	})
}
