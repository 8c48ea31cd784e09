package bandit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"splitEngine/domain"
	"splitEngine/pkg/logger"

	"github.com/google/uuid"
)

// ---- Repository interfaces ----

type CampaignRepository interface {
	FindByKey(ctx context.Context, key string) (domain.Campaign, error)
}

type StatsSource interface {
	Aggregate(ctx context.Context, campaignKey, metricKey string) ([]domain.VariantResult, error)
}

type AllocationRepository interface {
	// ReplaceWeights swaps the campaign's weight vector and appends the history
	// row in a single unit of work.
	ReplaceWeights(ctx context.Context, campaignKey string, weights map[string]float64, history *domain.AllocationHistory) error
	ListHistory(ctx context.Context, campaignKey string, limit int) ([]domain.AllocationHistory, error)
}

type Invalidator interface {
	Invalidate(ctx context.Context, key string)
}

// ---- Usecase / Service ----

type BanditService struct {
	campaignRepo CampaignRepository
	stats        StatsSource
	allocRepo    AllocationRepository
	cache        Invalidator
	cfg          Config
	now          func() time.Time
}

func NewBanditService(
	campaignRepo CampaignRepository,
	stats StatsSource,
	allocRepo AllocationRepository,
	cache Invalidator,
	cfg Config,
) *BanditService {
	return &BanditService{
		campaignRepo: campaignRepo,
		stats:        stats,
		allocRepo:    allocRepo,
		cache:        cache,
		cfg:          cfg,
		now:          time.Now,
	}
}

// Reallocate recomputes the variant weights of an active experiment from its
// current exposure and conversion counts. Existing assignments are untouched.
func (s *BanditService) Reallocate(ctx context.Context, campaignKey string) (*domain.AllocationHistory, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	// read from the store, not the cache, so weights are computed on the latest config
	c, err := s.campaignRepo.FindByKey(ctx, campaignKey)
	if err != nil {
		return nil, err
	}
	if c.Kind != domain.KindExperiment {
		return nil, errors.Join(domain.ErrInvalidConfiguration,
			fmt.Errorf("campaign %q is not an experiment", campaignKey))
	}
	if c.Status != domain.StatusActive {
		return nil, errors.Join(domain.ErrCampaignInactive,
			fmt.Errorf("campaign %q is %s", campaignKey, c.Status))
	}
	if len(c.Variants) == 0 {
		return nil, errors.Join(domain.ErrInvalidConfiguration,
			fmt.Errorf("campaign %q has no variants", campaignKey))
	}

	results, err := s.stats.Aggregate(ctx, campaignKey, c.PrimaryMetric)
	if err != nil {
		return nil, fmt.Errorf("failed to load stats for %q: %w", campaignKey, err)
	}

	arms := newArmStates(c.Variants, results)

	var totalPulls int64
	for _, arm := range arms {
		totalPulls += arm.Pulls
	}

	phase := PhaseExploitation
	var weights []float64
	if inExploration(arms, c.MinSamplePerVariant) {
		phase = PhaseExploration
		weights = equalWeights(len(arms), s.cfg.WeightScale)
	} else {
		scores := make([]float64, len(arms))
		for i, arm := range arms {
			arm.Score = ucbScore(arm.Rate, s.cfg.ExplorationDiscount, arm.Pulls, totalPulls)
			scores[i] = arm.Score
		}
		weights = normalize(scores, s.cfg.WeightScale)
	}

	weightMap := make(map[string]float64, len(arms))
	newVariants := make([]domain.Variant, len(c.Variants))
	stats := make([]domain.ArmStat, len(arms))
	for i, v := range c.Variants {
		v.Weight = weights[i]
		newVariants[i] = v
		weightMap[v.Key] = weights[i]
		stats[i] = arms[i].stat()
	}

	history := &domain.AllocationHistory{
		RunID:       uuid.NewString(),
		CampaignKey: campaignKey,
		Phase:       phase,
		Weights:     newVariants,
		Stats:       stats,
		CreatedAt:   s.now(),
	}

	if err := s.allocRepo.ReplaceWeights(ctx, campaignKey, weightMap, history); err != nil {
		return nil, fmt.Errorf("failed to replace weights for %q: %w", campaignKey, err)
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, campaignKey)
	}

	ReallocationsTotal.WithLabelValues(campaignKey, phase).Inc()
	for key, w := range weightMap {
		VariantWeight.WithLabelValues(campaignKey, key).Set(w)
	}

	logger.Info("bandit_reallocated",
		"trace_id", logger.TraceIDFromContext(ctx),
		"campaign", campaignKey,
		"run_id", history.RunID,
		"phase", phase,
		"total_pulls", totalPulls,
		"weights", weightMap,
	)

	return history, nil
}

// History lists past recomputations, newest first.
func (s *BanditService) History(ctx context.Context, campaignKey string, limit int) ([]domain.AllocationHistory, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}
	if _, err := s.campaignRepo.FindByKey(ctx, campaignKey); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.cfg.HistoryLimit
	}
	return s.allocRepo.ListHistory(ctx, campaignKey, limit)
}
