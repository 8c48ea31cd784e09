package memory

import (
	"context"
	"sync"
	"time"

	"splitEngine/domain"
)

type cacheEntry struct {
	campaign  *domain.Campaign
	expiresAt time.Time
}

// CampaignCache is a process-local TTL cache for campaign config.
type CampaignCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func NewCampaignCache() *CampaignCache {
	return &CampaignCache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *CampaignCache) Get(ctx context.Context, key string) (*domain.Campaign, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}
	return e.campaign.Clone(), true, nil
}

func (c *CampaignCache) Set(ctx context.Context, key string, campaign *domain.Campaign, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{campaign: campaign.Clone(), expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

func (c *CampaignCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}
