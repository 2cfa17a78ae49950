package redis

import (
	"context"
	"fmt"

	"github.com/captus-hub/captus-engine/internal/domain/shared"
)

// UnlockPublisher forwards unlocks to the external notifier over pub/sub.
// Messages are shared.EventEnvelope JSON.
type UnlockPublisher struct {
	cache   *Cache
	channel string
}

// NewUnlockPublisher creates a publisher on ChannelAchievementsUnlocked.
func NewUnlockPublisher(cache *Cache) *UnlockPublisher {
	return &UnlockPublisher{cache: cache, channel: ChannelAchievementsUnlocked}
}

// Channel returns the pub/sub channel name.
func (p *UnlockPublisher) Channel() string {
	return p.channel
}

// PublishUnlock publishes one envelope.
func (p *UnlockPublisher) PublishUnlock(ctx context.Context, event shared.AchievementUnlockedEvent) error {
	env, err := shared.NewEnvelope(event)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return p.cache.Publish(ctx, p.channel, env)
}
