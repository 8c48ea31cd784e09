package bandit

import "math"

// equalWeights splits scale evenly over n arms.
func equalWeights(n int, scale float64) []float64 {
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	w := scale / float64(n)
	for i := range out {
		out[i] = w
	}
	return out
}

// normalize scales non-negative scores so they sum to scale.
// Degenerate input (all zero, NaN, Inf) falls back to equal weights.
func normalize(scores []float64, scale float64) []float64 {
	sum := 0.0
	for _, s := range scores {
		if s < 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return equalWeights(len(scores), scale)
		}
		sum += s
	}
	if sum <= 0 {
		return equalWeights(len(scores), scale)
	}

	out := make([]float64, len(scores))
	for i, s := range scores {
		out[i] = s / sum * scale
	}
	return out
}
