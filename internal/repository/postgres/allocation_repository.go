package postgres

import (
	"context"
	"errors"
	"fmt"

	"splitEngine/business/bandit"
	"splitEngine/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AllocationRepository struct {
	DB *gorm.DB
}

var _ bandit.AllocationRepository = (*AllocationRepository)(nil)

func NewAllocationRepository(db *gorm.DB) *AllocationRepository {
	return &AllocationRepository{DB: db}
}

// ReplaceWeights locks the campaign row, rewrites the weight of every matching
// variant and appends the history row. Concurrent runs serialize on the lock.
func (r *AllocationRepository) ReplaceWeights(ctx context.Context, campaignKey string, weights map[string]float64, history *domain.AllocationHistory) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c domain.Campaign
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("key = ?", campaignKey).
			First(&c).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.Join(domain.ErrCampaignNotFound, fmt.Errorf("campaign %q", campaignKey))
		}
		if err != nil {
			return err
		}

		variants := append([]domain.Variant(nil), c.Variants...)
		for i, v := range variants {
			if w, ok := weights[v.Key]; ok {
				variants[i].Weight = w
			}
		}
		c.Variants = variants

		if err := tx.Model(&c).Select("variants", "updated_at").Updates(&c).Error; err != nil {
			return err
		}
		return tx.Create(history).Error
	})
	if err != nil {
		return fmt.Errorf("failed to replace weights: %w", err)
	}
	return nil
}

func (r *AllocationRepository) ListHistory(ctx context.Context, campaignKey string, limit int) ([]domain.AllocationHistory, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var rows []domain.AllocationHistory
	q := r.DB.WithContext(ctx).
		Where("campaign_key = ?", campaignKey).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list allocation history: %w", err)
	}
	return rows, nil
}
