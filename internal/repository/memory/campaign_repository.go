package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"splitEngine/domain"
)

type CampaignRepository struct {
	db *DB
}

func NewCampaignRepository(db *DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

func (r *CampaignRepository) Create(ctx context.Context, c *domain.Campaign) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.campaigns[c.Key]; ok {
		return errors.Join(domain.ErrCampaignExists, fmt.Errorf("campaign %q already exists", c.Key))
	}
	for _, existing := range r.db.campaigns {
		if existing.Seed == c.Seed {
			return errors.Join(domain.ErrCampaignExists, errors.New("seed already in use"))
		}
	}

	now := time.Now()
	c.ID = r.db.id()
	c.CreatedAt = now
	c.UpdatedAt = now
	r.db.campaigns[c.Key] = c.Clone()
	return nil
}

func (r *CampaignRepository) FindByKey(ctx context.Context, key string) (domain.Campaign, error) {
	if err := ctx.Err(); err != nil {
		return domain.Campaign{}, fmt.Errorf("context error: %w", err)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	c, ok := r.db.campaigns[key]
	if !ok {
		return domain.Campaign{}, errors.Join(domain.ErrCampaignNotFound, fmt.Errorf("campaign %q", key))
	}
	return *c.Clone(), nil
}

// FindAll returns campaigns ordered by ID. An empty kind returns every campaign.
func (r *CampaignRepository) FindAll(ctx context.Context, kind domain.CampaignKind) ([]domain.Campaign, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	out := make([]domain.Campaign, 0, len(r.db.campaigns))
	for _, c := range r.db.campaigns {
		if kind != "" && c.Kind != kind {
			continue
		}
		out = append(out, *c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *CampaignRepository) Update(ctx context.Context, c *domain.Campaign) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	current, ok := r.db.campaigns[c.Key]
	if !ok {
		return errors.Join(domain.ErrCampaignNotFound, fmt.Errorf("campaign %q", c.Key))
	}

	next := c.Clone()
	next.ID = current.ID
	next.Seed = current.Seed
	next.Status = current.Status
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = time.Now()
	r.db.campaigns[c.Key] = next
	c.UpdatedAt = next.UpdatedAt
	return nil
}

func (r *CampaignRepository) UpdateStatus(ctx context.Context, key string, status domain.CampaignStatus) error {
	return r.mutate(ctx, key, func(c *domain.Campaign) { c.Status = status })
}

func (r *CampaignRepository) UpdateSeed(ctx context.Context, key string, seed string) error {
	return r.mutate(ctx, key, func(c *domain.Campaign) { c.Seed = seed })
}

func (r *CampaignRepository) mutate(ctx context.Context, key string, fn func(c *domain.Campaign)) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	c, ok := r.db.campaigns[key]
	if !ok {
		return errors.Join(domain.ErrCampaignNotFound, fmt.Errorf("campaign %q", key))
	}
	fn(c)
	c.UpdatedAt = time.Now()
	return nil
}
