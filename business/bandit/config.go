package bandit

import (
	"errors"
	"fmt"
)

type Config struct {
	// multiplies the observed conversion rate before the exploration bonus is added
	ExplorationDiscount float64

	// total weight the recomputed vector is normalized to
	WeightScale float64

	// rows returned by History when the caller passes no limit
	HistoryLimit int
}

const (
	defaultExplorationDiscount = 0.9
	defaultWeightScale         = 100.0
	defaultHistoryLimit        = 50
)

func DefaultConfig() Config {
	return Config{
		ExplorationDiscount: defaultExplorationDiscount,
		WeightScale:         defaultWeightScale,
		HistoryLimit:        defaultHistoryLimit,
	}
}

func (cfg Config) Validate() error {
	var errs []error
	if cfg.ExplorationDiscount <= 0 || cfg.ExplorationDiscount > 1 {
		errs = append(errs, fmt.Errorf("exploration discount must be in (0,1], got %v", cfg.ExplorationDiscount))
	}
	if cfg.WeightScale <= 0 {
		errs = append(errs, fmt.Errorf("weight scale must be positive, got %v", cfg.WeightScale))
	}
	if cfg.HistoryLimit <= 0 {
		errs = append(errs, fmt.Errorf("history limit must be positive, got %d", cfg.HistoryLimit))
	}
	return errors.Join(errs...)
}
