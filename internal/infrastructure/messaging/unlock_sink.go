package messaging

import (
	"context"

	"github.com/captus-hub/captus-engine/internal/domain/achievement"
	"github.com/captus-hub/captus-engine/internal/domain/shared"
)

// BusUnlockSink adapts an event publisher to achievement.UnlockSink so
// unlock transitions reach bus subscribers as achievement.unlocked events.
type BusUnlockSink struct {
	publisher shared.EventPublisher
}

// NewBusUnlockSink creates a sink publishing to the given bus.
func NewBusUnlockSink(publisher shared.EventPublisher) *BusUnlockSink {
	return &BusUnlockSink{publisher: publisher}
}

// EmitUnlock implements achievement.UnlockSink.
func (s *BusUnlockSink) EmitUnlock(ctx context.Context, e achievement.UnlockEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	event := shared.NewAchievementUnlockedEvent(
		e.UserID, e.AchievementID, e.Name, e.Metric.String(), e.Progress, e.Target, e.UnlockedAt)
	return s.publisher.Publish(event)
}

var _ achievement.UnlockSink = (*BusUnlockSink)(nil)
