package bandit

import "math"

// ucbScore = rate * discount + sqrt(2 * ln(totalPulls) / pulls)
func ucbScore(rate, discount float64, pulls, totalPulls int64) float64 {
	mean := rate * discount
	if totalPulls <= 1 {
		return mean
	}
	bonus := math.Sqrt(2 * math.Log(float64(totalPulls)) / float64(max(pulls, 1)))
	return mean + bonus
}

// inExploration reports whether any arm is still below the minimum sample.
func inExploration(arms []*armState, minSample int) bool {
	for _, arm := range arms {
		if arm.Pulls < int64(minSample) {
			return true
		}
	}
	return false
}
