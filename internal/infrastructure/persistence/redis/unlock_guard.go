package redis

import (
	"context"
	"time"
)

// DefaultUnlockDedupeTTL is how long an announced unlock is remembered.
const DefaultUnlockDedupeTTL = 30 * 24 * time.Hour

// UnlockGuard makes unlock announcements idempotent across replicas with
// SETNX on a per-pair key.
type UnlockGuard struct {
	cache *Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewUnlockGuard creates a new UnlockGuard.
func NewUnlockGuard(cache *Cache, ttl time.Duration) *UnlockGuard {
	if ttl <= 0 {
		ttl = DefaultUnlockDedupeTTL
	}
	return &UnlockGuard{cache: cache, ttl: ttl, now: time.Now}
}

// Acquire reports true for the first caller of a (user, achievement) pair.
func (g *UnlockGuard) Acquire(ctx context.Context, userID, achievementID string) (bool, error) {
	return g.cache.SetNX(ctx, UnlockKey(userID, achievementID), g.now().UTC().Format(time.RFC3339), g.ttl)
}

// Release forgets a claim made by Acquire.
func (g *UnlockGuard) Release(ctx context.Context, userID, achievementID string) error {
	return g.cache.Delete(ctx, UnlockKey(userID, achievementID))
}
