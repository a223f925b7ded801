// Package ml holds the small numeric toolkit behind the insights pipelines:
// feature scaling, isolation-forest outlier scoring, random-forest regression
// and exponential smoothing. Everything is deterministic for a fixed seed.
package ml

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

var (
	ErrEmptyInput    = errors.New("ml: empty input")
	ErrNotFitted     = errors.New("ml: model is not fitted")
	ErrNonFinite     = errors.New("ml: input contains NaN or Inf")
	ErrShapeMismatch = errors.New("ml: inconsistent feature dimensions")
)

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Percentile returns the q-th percentile (0..100) of values using linear
// interpolation between closest ranks. values is not modified.
func Percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	q = Clamp(q, 0, 100)
	pos := q / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// Median is Percentile(values, 50).
func Median(values []float64) float64 {
	return Percentile(values, 50)
}

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// SampleStdDev returns the n-1 standard deviation, 0 when fewer than two values exist.
func SampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.StdDev(values, nil)
}

// checkMatrix validates that X is non-empty, rectangular and finite and returns its width.
func checkMatrix(X [][]float64) (int, error) {
	if len(X) == 0 || len(X[0]) == 0 {
		return 0, ErrEmptyInput
	}
	width := len(X[0])
	for i, row := range X {
		if len(row) != width {
			return 0, fmt.Errorf("%w: row %d has %d features, want %d", ErrShapeMismatch, i, len(row), width)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, fmt.Errorf("%w: row %d feature %d", ErrNonFinite, i, j)
			}
		}
	}
	return width, nil
}

const machineEpsilon = 2.220446049250313e-16
