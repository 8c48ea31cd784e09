package campaign

import (
	"context"
	"errors"
	"time"

	"splitEngine/domain"
	"splitEngine/pkg/logger"
	"splitEngine/pkg/metrics"

	"golang.org/x/sync/singleflight"
)

// Finder loads the authoritative campaign config.
type Finder interface {
	FindByKey(ctx context.Context, key string) (domain.Campaign, error)
}

// Cache stores campaign config for a bounded time. Get reports a miss with
// ok=false and a nil error.
type Cache interface {
	Get(ctx context.Context, key string) (*domain.Campaign, bool, error)
	Set(ctx context.Context, key string, campaign *domain.Campaign, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CachedReader is a read-through config source. Callers may observe config up
// to ttl old after an administrative write on another replica.
type CachedReader struct {
	finder Finder
	cache  Cache
	ttl    time.Duration
	group  singleflight.Group
}

func NewCachedReader(finder Finder, cache Cache, ttl time.Duration) *CachedReader {
	return &CachedReader{
		finder: finder,
		cache:  cache,
		ttl:    ttl,
	}
}

// GetCampaign returns a copy the caller may keep.
func (r *CachedReader) GetCampaign(ctx context.Context, key string) (*domain.Campaign, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if r.cache != nil {
		c, ok, err := r.cache.Get(ctx, key)
		switch {
		case err != nil:
			metrics.ConfigCacheLookups.WithLabelValues("error").Inc()
			logger.Warn("campaign_cache_get_failed", "key", key, "error", err)
		case ok:
			metrics.ConfigCacheLookups.WithLabelValues("hit").Inc()
			return c.Clone(), nil
		default:
			metrics.ConfigCacheLookups.WithLabelValues("miss").Inc()
		}
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		c, err := r.finder.FindByKey(ctx, key)
		if err != nil {
			return nil, err
		}
		if r.cache != nil {
			if err := r.cache.Set(ctx, key, &c, r.ttl); err != nil {
				logger.Warn("campaign_cache_set_failed", "key", key, "error", err)
			}
		}
		return &c, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.Campaign).Clone(), nil
}

// Invalidate drops the local cache entry for key.
func (r *CachedReader) Invalidate(ctx context.Context, key string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Delete(ctx, key); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("campaign_cache_invalidate_failed", "key", key, "error", err)
	}
}
