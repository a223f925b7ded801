package ml

// EMA returns the exponential moving average of series with smoothing factor
// 2/(span+1), seeded with the first observation (no bias adjustment).
func EMA(series []float64, span int) []float64 {
	if len(series) == 0 {
		return nil
	}
	if span < 1 {
		span = 1
	}
	alpha := 2 / (float64(span) + 1)

	out := make([]float64, len(series))
	out[0] = series[0]
	for i := 1; i < len(series); i++ {
		out[i] = alpha*series[i] + (1-alpha)*out[i-1]
	}
	return out
}
