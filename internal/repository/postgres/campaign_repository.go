package postgres

import (
	"context"
	"errors"
	"fmt"

	"splitEngine/business/bandit"
	"splitEngine/business/campaign"
	"splitEngine/domain"

	"gorm.io/gorm"
)

type CampaignRepository struct {
	DB *gorm.DB
}

var (
	_ campaign.CampaignRepository = (*CampaignRepository)(nil)
	_ campaign.Finder             = (*CampaignRepository)(nil)
	_ bandit.CampaignRepository   = (*CampaignRepository)(nil)
)

func NewCampaignRepository(db *gorm.DB) *CampaignRepository {
	return &CampaignRepository{DB: db}
}

func (r *CampaignRepository) Create(ctx context.Context, c *domain.Campaign) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	err := r.DB.WithContext(ctx).Create(c).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errors.Join(domain.ErrCampaignExists, fmt.Errorf("campaign %q already exists", c.Key))
	}
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepository) FindByKey(ctx context.Context, key string) (domain.Campaign, error) {
	if err := ctx.Err(); err != nil {
		return domain.Campaign{}, fmt.Errorf("context error: %w", err)
	}

	var c domain.Campaign
	err := r.DB.WithContext(ctx).Where("key = ?", key).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Campaign{}, errors.Join(domain.ErrCampaignNotFound, fmt.Errorf("campaign %q", key))
	}
	if err != nil {
		return domain.Campaign{}, fmt.Errorf("failed to find campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepository) FindAll(ctx context.Context, kind domain.CampaignKind) ([]domain.Campaign, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var campaigns []domain.Campaign
	q := r.DB.WithContext(ctx).Order("id ASC")
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	if err := q.Find(&campaigns).Error; err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return campaigns, nil
}

// Update writes the mutable config columns. Seed and status have their own
// writers.
func (r *CampaignRepository) Update(ctx context.Context, c *domain.Campaign) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	res := r.DB.WithContext(ctx).
		Model(&domain.Campaign{}).
		Where("key = ?", c.Key).
		Select("variants", "targeting", "dependencies", "rollout_percent",
			"enable_at", "disable_at", "min_sample_per_variant", "primary_metric", "updated_at").
		Updates(c)
	if res.Error != nil {
		return fmt.Errorf("failed to update campaign: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.Join(domain.ErrCampaignNotFound, fmt.Errorf("campaign %q", c.Key))
	}
	return nil
}

func (r *CampaignRepository) UpdateStatus(ctx context.Context, key string, status domain.CampaignStatus) error {
	return r.updateColumn(ctx, key, "status", status)
}

func (r *CampaignRepository) UpdateSeed(ctx context.Context, key string, seed string) error {
	return r.updateColumn(ctx, key, "seed", seed)
}

func (r *CampaignRepository) updateColumn(ctx context.Context, key, column string, value any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	res := r.DB.WithContext(ctx).
		Model(&domain.Campaign{}).
		Where("key = ?", key).
		Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("failed to update campaign %s: %w", column, res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.Join(domain.ErrCampaignNotFound, fmt.Errorf("campaign %q", key))
	}
	return nil
}
