package forecast

import (
	"testing"
	"time"

	"github.com/castlemilk/pfinance/insights/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expense(amount float64, year int, month time.Month, day int) store.Transaction {
	return store.Transaction{
		Amount:       amount,
		CategoryName: "Food",
		Date:         time.Date(year, month, day, 0, 0, 0, 0, time.UTC),
		Type:         store.TransactionTypeExpense,
	}
}

func TestBuildMonthlySeries(t *testing.T) {
	txs := []store.Transaction{
		expense(300, 2024, time.March, 5),
		expense(100, 2024, time.January, 2),
		expense(50, 2024, time.January, 20),
		{Amount: 9999, Date: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), Type: store.TransactionTypeIncome},
		expense(200, 2023, time.December, 31),
	}

	series := BuildMonthlySeries(txs)
	require.Len(t, series, 3, "months without expenses are absent")

	assert.Equal(t, "2023-12", series[0].YearMonth)
	assert.Equal(t, 2023, series[0].Year)
	assert.Equal(t, 12, series[0].Month)
	assert.Equal(t, 200.0, series[0].TotalExpense)
	assert.Equal(t, 1, series[0].CountSeen)
	assert.Equal(t, 0.0, series[0].RollStd6, "a single value has zero spread")

	assert.Equal(t, "2024-01", series[1].YearMonth)
	assert.Equal(t, 150.0, series[1].TotalExpense)
	assert.InDelta(t, 175, series[1].RollMean3, 1e-9)

	assert.Equal(t, "2024-03", series[2].YearMonth)
	assert.Equal(t, 3, series[2].CountSeen)
	assert.InDelta(t, 650.0/3, series[2].RollMean3, 1e-9)
	assert.InDelta(t, 650.0/3, series[2].RollMean6, 1e-9)
	assert.InDelta(t, 76.37626158, series[2].RollStd6, 1e-6)

	assert.Empty(t, BuildMonthlySeries(nil))
}

func TestRollingWindows(t *testing.T) {
	var txs []store.Transaction
	for m := 1; m <= 8; m++ {
		txs = append(txs, expense(float64(m*100), 2024, time.Month(m), 1))
	}
	series := BuildMonthlySeries(txs)
	require.Len(t, series, 8)

	last := series[7]
	assert.InDelta(t, (600+700+800)/3.0, last.RollMean3, 1e-9)
	assert.InDelta(t, (300+400+500+600+700+800)/6.0, last.RollMean6, 1e-9)
	assert.InDelta(t, 187.0828693, last.RollStd6, 1e-6)
}

func TestTrainingSetDoesNotLeak(t *testing.T) {
	var txs []store.Transaction
	for m := 1; m <= 6; m++ {
		txs = append(txs, expense(float64(1000+m*10), 2024, time.Month(m), 10))
	}
	X, y := TrainingSet(BuildMonthlySeries(txs))
	require.Len(t, X, 5)
	require.Len(t, y, 5)
	for _, row := range X {
		assert.Len(t, row, 5)
	}

	// Inflate April; the row predicting April must not change.
	perturbed := append([]store.Transaction(nil), txs...)
	perturbed[3].Amount = 1_000_000
	X2, y2 := TrainingSet(BuildMonthlySeries(perturbed))

	april := 2 // rows start at month index 1
	assert.Equal(t, X[april], X2[april])
	assert.NotEqual(t, y[april], y2[april])
	assert.NotEqual(t, X[april+1], X2[april+1], "later rows see the new total")

	assert.Equal(t, []float64{2, 1010, 1010, 0, 2}, X[0], "target month with the previous month's rolling stats")
	assert.Equal(t, 1020.0, y[0])
}

func TestTrainingSetTooShort(t *testing.T) {
	X, y := TrainingSet(BuildMonthlySeries([]store.Transaction{expense(10, 2024, time.May, 1)}))
	assert.Nil(t, X)
	assert.Nil(t, y)
}

func TestNextMonthFeatures(t *testing.T) {
	series := BuildMonthlySeries([]store.Transaction{
		expense(100, 2024, time.October, 1),
		expense(200, 2024, time.November, 1),
		expense(300, 2024, time.December, 1),
	})
	features := NextMonthFeatures(series)
	require.Len(t, features, 5)
	assert.Equal(t, 1.0, features[0], "December wraps to January")
	assert.InDelta(t, 200, features[1], 1e-9)
	assert.InDelta(t, 200, features[2], 1e-9)
	assert.InDelta(t, 100, features[3], 1e-9)
	assert.Equal(t, 4.0, features[4])
}

func TestFingerprint(t *testing.T) {
	base := []store.Transaction{
		expense(100, 2024, time.January, 1),
		expense(200, 2024, time.February, 1),
		expense(300, 2024, time.March, 1),
	}
	fp := Fingerprint(BuildMonthlySeries(base))
	assert.Len(t, fp, 16)
	assert.Equal(t, fp, Fingerprint(BuildMonthlySeries(base)), "deterministic")

	changed := append([]store.Transaction(nil), base...)
	changed[1].Amount = 250
	assert.NotEqual(t, fp, Fingerprint(BuildMonthlySeries(changed)))

	grown := append(append([]store.Transaction(nil), base...), expense(100, 2024, time.April, 1))
	assert.NotEqual(t, fp, Fingerprint(BuildMonthlySeries(grown)))

	// Sub-unit noise rounds away.
	noisy := append([]store.Transaction(nil), base...)
	noisy[0].Amount = 100.2
	assert.Equal(t, fp, Fingerprint(BuildMonthlySeries(noisy)))
}

func TestFingerprintWindow(t *testing.T) {
	var txs []store.Transaction
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 30; i++ {
		m := start.AddDate(0, i, 0)
		txs = append(txs, expense(100, m.Year(), m.Month(), 1))
	}
	fp := Fingerprint(BuildMonthlySeries(txs))

	// The oldest month falls outside the last 24.
	old := append([]store.Transaction(nil), txs...)
	old[0].Amount = 5000
	assert.Equal(t, fp, Fingerprint(BuildMonthlySeries(old)))

	recent := append([]store.Transaction(nil), txs...)
	recent[29].Amount = 5000
	assert.NotEqual(t, fp, Fingerprint(BuildMonthlySeries(recent)))
}
