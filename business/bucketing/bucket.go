// Package bucketing maps subject identities to stable positions and picks
// variants from weighted lists. Every function here is pure: the same seed and
// subject yield the same answer in every process, with no shared state.
package bucketing

import (
	"errors"
	"fmt"

	"splitEngine/domain"

	"github.com/cespare/xxhash/v2"
)

// 2^53, the float64 mantissa range
const unitScale = 1 << 53

func hash(seed, subjectID string) uint64 {
	return xxhash.Sum64String(seed + ":" + subjectID)
}

// Bucket returns a uniformly distributed value in [0, 1) for (seed, subjectID).
func Bucket(seed, subjectID string) float64 {
	return float64(hash(seed, subjectID)>>11) / unitScale
}

// BucketRange returns hash(seed:subjectID) mod n. n must be positive.
func BucketRange(seed, subjectID string, n uint64) uint64 {
	if n == 0 {
		return 0
	}
	return hash(seed, subjectID) % n
}

// AudienceSeed is the sampling salt for audience percentages, distinct from the
// variant seed so inclusion and variant choice stay independent.
func AudienceSeed(campaignKey string) string {
	return campaignKey + ":audience"
}

// RolloutSeed is the salt for flag rollout percentages.
func RolloutSeed(flagKey string) string {
	return flagKey + ":rollout"
}

// SelectVariant walks variants in declared order and returns the first whose
// cumulative weight exceeds bucket*total.
func SelectVariant(variants []domain.Variant, seed, subjectID string) (domain.Variant, error) {
	total, err := TotalWeight(variants)
	if err != nil {
		return domain.Variant{}, err
	}

	target := Bucket(seed, subjectID) * total

	cumulative := 0.0
	for _, v := range variants {
		cumulative += v.Weight
		if cumulative > target {
			return v, nil
		}
	}

	// float rounding can leave target == total; the last non-zero variant owns that edge
	for i := len(variants) - 1; i >= 0; i-- {
		if variants[i].Weight > 0 {
			return variants[i], nil
		}
	}
	return domain.Variant{}, errors.Join(domain.ErrInvalidConfiguration, errors.New("no variant with positive weight"))
}

// TotalWeight sums weights, rejecting empty lists, negative weights and
// non-positive totals.
func TotalWeight(variants []domain.Variant) (float64, error) {
	if len(variants) == 0 {
		return 0, errors.Join(domain.ErrInvalidConfiguration, errors.New("at least one variant is required"))
	}

	total := 0.0
	for _, v := range variants {
		if v.Weight < 0 {
			return 0, errors.Join(domain.ErrInvalidConfiguration, fmt.Errorf("variant %q has negative weight", v.Key))
		}
		total += v.Weight
	}

	if total <= 0 {
		return 0, errors.Join(domain.ErrInvalidConfiguration, errors.New("variant weights must sum to a positive number"))
	}
	return total, nil
}
