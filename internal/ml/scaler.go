package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// StandardScaler centers each feature to zero mean and scales it to unit
// (population) variance. Constant features keep a scale of 1.
type StandardScaler struct {
	Mean  []float64
	Scale []float64
}

// Fit learns per-column mean and scale.
func (s *StandardScaler) Fit(X [][]float64) error {
	width, err := checkMatrix(X)
	if err != nil {
		return err
	}

	s.Mean = make([]float64, width)
	s.Scale = make([]float64, width)
	col := make([]float64, len(X))
	for j := 0; j < width; j++ {
		for i := range X {
			col[i] = X[i][j]
		}
		mean, variance := stat.PopMeanVariance(col, nil)
		s.Mean[j] = mean
		s.Scale[j] = 1
		if floats.Max(col) == floats.Min(col) {
			s.Mean[j] = col[0]
			continue
		}
		if std := math.Sqrt(variance); std > 10*machineEpsilon*math.Abs(mean) {
			s.Scale[j] = std
		}
	}
	return nil
}

// Transform returns a standardized copy of X.
func (s *StandardScaler) Transform(X [][]float64) ([][]float64, error) {
	if s.Mean == nil {
		return nil, ErrNotFitted
	}
	width, err := checkMatrix(X)
	if err != nil {
		return nil, err
	}
	if width != len(s.Mean) {
		return nil, fmt.Errorf("%w: got %d features, scaler fitted on %d", ErrShapeMismatch, width, len(s.Mean))
	}

	out := make([][]float64, len(X))
	for i, row := range X {
		scaled := make([]float64, width)
		for j, v := range row {
			scaled[j] = (v - s.Mean[j]) / s.Scale[j]
		}
		out[i] = scaled
	}
	return out, nil
}

// FitTransform fits the scaler on X and returns the standardized matrix.
func (s *StandardScaler) FitTransform(X [][]float64) ([][]float64, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}
