package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"splitEngine/business/campaign"
	"splitEngine/domain"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "campaign:config:"

// CampaignCache shares campaign config across replicas with a TTL, so an
// administrative write on one replica is visible to all within the TTL.
type CampaignCache struct {
	client *redis.Client
}

var _ campaign.Cache = (*CampaignCache)(nil)

func NewCampaignCache(client *redis.Client) *CampaignCache {
	return &CampaignCache{
		client: client,
	}
}

func cacheKey(key string) string {
	return keyPrefix + key
}

func (r *CampaignCache) Set(ctx context.Context, key string, c *domain.Campaign, ttl time.Duration) error {
	jsonData, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal campaign: %w", err)
	}

	if err := r.client.Set(ctx, cacheKey(key), jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store campaign in Redis: %w", err)
	}

	return nil
}

// Get reports a miss as ok=false with no error.
func (r *CampaignCache) Get(ctx context.Context, key string) (*domain.Campaign, bool, error) {
	val, err := r.client.Get(ctx, cacheKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get campaign from Redis: %w", err)
	}

	var c domain.Campaign
	if err := json.Unmarshal(val, &c); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal campaign: %w", err)
	}

	return &c, true, nil
}

func (r *CampaignCache) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, cacheKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete campaign from Redis: %w", err)
	}
	return nil
}
