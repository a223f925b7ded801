package anomaly

import (
	"math"
	"sort"
	"time"

	"github.com/castlemilk/pfinance/insights/internal/ml"
	"github.com/castlemilk/pfinance/insights/internal/store"
)

// NumFeatures is the width of a transaction feature vector.
const NumFeatures = 10

// featureStats keeps the per-transaction values the subtype rules read back.
type featureStats struct {
	zScore      float64
	medianRatio float64
	frequency   float64
}

// categoryKey identifies a category by catalog ID, falling back to the display
// name for transactions without one.
type categoryKey struct {
	id   int64
	name string
}

func keyOf(tx store.Transaction) categoryKey {
	if tx.CategoryID != 0 {
		return categoryKey{id: tx.CategoryID}
	}
	return categoryKey{name: tx.CategoryName}
}

func (k categoryKey) less(o categoryKey) bool {
	if (k.id != 0) != (o.id != 0) {
		return k.id != 0
	}
	if k.id != o.id {
		return k.id < o.id
	}
	return k.name < o.name
}

// buildFeatures computes the 10-column matrix for txs. Statistics are relative
// to this sample only.
func buildFeatures(txs []store.Transaction) ([][]float64, []featureStats) {
	n := len(txs)
	amounts := make([]float64, n)
	for i, tx := range txs {
		amounts[i] = tx.Amount
	}
	mean := ml.Mean(amounts)
	std := ml.SampleStdDev(amounts)
	median := ml.Median(amounts)

	counts := make(map[categoryKey]int)
	for _, tx := range txs {
		counts[keyOf(tx)]++
	}
	keys := make([]categoryKey, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	index := make(map[categoryKey]float64, len(keys))
	for i, k := range keys {
		if len(keys) > 1 {
			index[k] = float64(i) / float64(len(keys)-1)
		} else {
			index[k] = 0
		}
	}

	X := make([][]float64, n)
	stats := make([]featureStats, n)
	for i, tx := range txs {
		z := 0.0
		if std > 0 {
			z = (tx.Amount - mean) / std
		}
		ratio := 0.0
		if median > 0 {
			ratio = tx.Amount / median
		}
		key := keyOf(tx)
		freq := float64(counts[key]) / float64(n)

		d := tx.Date
		weekday := float64((int(d.Weekday()) + 6) % 7) // Monday = 0
		weekend := 0.0
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			weekend = 1
		}
		monthEnd := 0.0
		if d.Day() >= daysIn(d)-2 {
			monthEnd = 1
		}

		X[i] = []float64{
			math.Log1p(tx.Amount),
			z,
			ratio,
			weekday / 6,
			float64(d.Day()-1) / 30,
			float64(d.Month()-1) / 11,
			freq,
			index[key],
			weekend,
			monthEnd,
		}
		stats[i] = featureStats{zScore: z, medianRatio: ratio, frequency: freq}
	}
	return X, stats
}

func daysIn(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
