package bandit

import "splitEngine/domain"

const (
	PhaseExploration  = "exploration"
	PhaseExploitation = "exploitation"
)

// Per arm/variant counters for one recomputation.
type armState struct {
	VariantKey string
	Pulls      int64
	Successes  int64
	Rate       float64
	Score      float64
}

// Build one arm per configured variant, in declared order.
func newArmStates(variants []domain.Variant, results []domain.VariantResult) []*armState {
	byKey := make(map[string]domain.VariantResult, len(results))
	for _, r := range results {
		byKey[r.VariantKey] = r
	}

	arms := make([]*armState, 0, len(variants))
	for _, v := range variants {
		r := byKey[v.Key]
		arms = append(arms, &armState{
			VariantKey: v.Key,
			Pulls:      r.Exposures,
			Successes:  r.Converters,
			Rate:       float64(r.Converters) / float64(max(r.Exposures, 1)),
		})
	}
	return arms
}

func (a *armState) stat() domain.ArmStat {
	return domain.ArmStat{
		VariantKey: a.VariantKey,
		Pulls:      a.Pulls,
		Successes:  a.Successes,
		Rate:       a.Rate,
		Score:      a.Score,
	}
}
