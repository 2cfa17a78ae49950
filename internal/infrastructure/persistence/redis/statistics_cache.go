package redis

import (
	"context"
	"errors"
	"time"

	"github.com/captus-hub/captus-engine/internal/domain/statistics"
)

// DefaultStatisticsTTL bounds how stale a cached dashboard can get when an
// invalidation is missed.
const DefaultStatisticsTTL = 2 * time.Minute

// StatisticsCache stores built dashboards per user.
type StatisticsCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewStatisticsCache creates a new StatisticsCache.
func NewStatisticsCache(cache *Cache, ttl time.Duration) *StatisticsCache {
	if ttl <= 0 {
		ttl = DefaultStatisticsTTL
	}
	return &StatisticsCache{cache: cache, ttl: ttl}
}

// Get returns the cached dashboard. A miss is (nil, false, nil).
func (s *StatisticsCache) Get(ctx context.Context, userID string) (*statistics.Dashboard, bool, error) {
	var d statistics.Dashboard
	err := s.cache.Get(ctx, StatisticsKey(userID), &d)
	if errors.Is(err, ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &d, true, nil
}

// Set caches d under its user id.
func (s *StatisticsCache) Set(ctx context.Context, d *statistics.Dashboard) error {
	if d == nil {
		return ErrCacheNilValue
	}
	return s.cache.Set(ctx, StatisticsKey(d.UserID), d, s.ttl)
}

// Invalidate drops the user's cached dashboard.
func (s *StatisticsCache) Invalidate(ctx context.Context, userID string) error {
	return s.cache.Delete(ctx, StatisticsKey(userID))
}
