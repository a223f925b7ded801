package forecast

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/castlemilk/pfinance/insights/internal/ml"
	"github.com/castlemilk/pfinance/insights/internal/store"
	"github.com/cespare/xxhash/v2"
)

const (
	shortWindow       = 3
	longWindow        = 6
	fingerprintMonths = 24
	yearMonthLayout   = "2006-01"
)

// MonthlyRow is one calendar month of expense history with rolling statistics
// that include the month itself.
type MonthlyRow struct {
	YearMonth    string  `json:"year_month"`
	Year         int     `json:"year"`
	Month        int     `json:"month"`
	TotalExpense float64 `json:"total_expense"`
	RollMean3    float64 `json:"roll_mean_3"`
	RollMean6    float64 `json:"roll_mean_6"`
	RollStd6     float64 `json:"roll_std_6"`
	CountSeen    int     `json:"count_seen"`
}

// BuildMonthlySeries aggregates expense transactions into one row per month
// present in the data, in calendar order. Months without expenses are absent.
func BuildMonthlySeries(transactions []store.Transaction) []MonthlyRow {
	totals := make(map[time.Time]float64)
	var months []time.Time
	for _, tx := range transactions {
		if !tx.IsExpense() {
			continue
		}
		key := time.Date(tx.Date.Year(), tx.Date.Month(), 1, 0, 0, 0, 0, time.UTC)
		if _, ok := totals[key]; !ok {
			months = append(months, key)
		}
		totals[key] += tx.Amount
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })

	series := make([]MonthlyRow, len(months))
	values := make([]float64, len(months))
	for i, m := range months {
		values[i] = totals[m]
		series[i] = MonthlyRow{
			YearMonth:    m.Format(yearMonthLayout),
			Year:         m.Year(),
			Month:        int(m.Month()),
			TotalExpense: values[i],
			RollMean3:    ml.Mean(trailing(values[:i+1], shortWindow)),
			RollMean6:    ml.Mean(trailing(values[:i+1], longWindow)),
			RollStd6:     ml.SampleStdDev(trailing(values[:i+1], longWindow)),
			CountSeen:    i + 1,
		}
	}
	return series
}

func trailing(values []float64, window int) []float64 {
	if len(values) <= window {
		return values
	}
	return values[len(values)-window:]
}

// TrainingSet builds the supervised rows for months 1..n-1. Each row's rolling
// features come from the previous month, so a month's own total never appears
// in the features used to predict it.
func TrainingSet(series []MonthlyRow) ([][]float64, []float64) {
	if len(series) < 2 {
		return nil, nil
	}
	X := make([][]float64, 0, len(series)-1)
	y := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		prev := series[i-1]
		X = append(X, []float64{
			float64(series[i].Month),
			prev.RollMean3,
			prev.RollMean6,
			prev.RollStd6,
			float64(series[i].CountSeen),
		})
		y = append(y, series[i].TotalExpense)
	}
	return X, y
}

// NextMonthFeatures builds the feature row for the month after the last one in series.
func NextMonthFeatures(series []MonthlyRow) []float64 {
	last := series[len(series)-1]
	return []float64{
		float64(last.Month%12 + 1),
		last.RollMean3,
		last.RollMean6,
		last.RollStd6,
		float64(len(series) + 1),
	}
}

// Fingerprint digests the most recent monthly totals. Any change to a recent
// month, or a new month, yields a different value.
func Fingerprint(series []MonthlyRow) string {
	recent := series
	if len(recent) > fingerprintMonths {
		recent = recent[len(recent)-fingerprintMonths:]
	}
	parts := make([]string, len(recent))
	for i, row := range recent {
		parts[i] = fmt.Sprintf("%s:%d", row.YearMonth, int64(math.Round(row.TotalExpense)))
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(strings.Join(parts, "|")))
}
