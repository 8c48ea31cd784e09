package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"splitEngine/domain"
)

type AllocationRepository struct {
	db *DB
}

func NewAllocationRepository(db *DB) *AllocationRepository {
	return &AllocationRepository{db: db}
}

// ReplaceWeights applies weights by variant key and appends history atomically.
func (r *AllocationRepository) ReplaceWeights(ctx context.Context, campaignKey string, weights map[string]float64, history *domain.AllocationHistory) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	c, ok := r.db.campaigns[campaignKey]
	if !ok {
		return errors.Join(domain.ErrCampaignNotFound, fmt.Errorf("campaign %q", campaignKey))
	}

	variants := append([]domain.Variant(nil), c.Variants...)
	for i, v := range variants {
		if w, ok := weights[v.Key]; ok {
			variants[i].Weight = w
		}
	}
	c.Variants = variants
	c.UpdatedAt = time.Now()

	history.ID = r.db.id()
	stored := *history
	stored.Weights = append([]domain.Variant(nil), history.Weights...)
	stored.Stats = append([]domain.ArmStat(nil), history.Stats...)
	r.db.history = append(r.db.history, stored)
	return nil
}

// ListHistory returns the newest limit entries first.
func (r *AllocationRepository) ListHistory(ctx context.Context, campaignKey string, limit int) ([]domain.AllocationHistory, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	out := make([]domain.AllocationHistory, 0)
	for i := len(r.db.history) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		h := r.db.history[i]
		if h.CampaignKey == campaignKey {
			out = append(out, h)
		}
	}
	return out, nil
}
