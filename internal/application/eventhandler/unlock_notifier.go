package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/captus-hub/captus-engine/internal/domain/shared"
	"github.com/captus-hub/captus-engine/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// UNLOCK NOTIFIER
// Bridges the in-process bus to the outside world. An unlock is forwarded
// once to the notification channel; unlocks and streak changes both make
// the cached statistics dashboard stale.
// ═══════════════════════════════════════════════════════════════════════════

// FlagUnlockDedupe gates the unlock guard.
const FlagUnlockDedupe = "engine.unlock_dedupe"

// UnlockGuard claims the right to announce an unlock exactly once.
// Release gives a claim back so a replay can try again.
type UnlockGuard interface {
	Acquire(ctx context.Context, userID, achievementID string) (bool, error)
	Release(ctx context.Context, userID, achievementID string) error
}

// UnlockPublisher forwards an unlock to external notifiers.
type UnlockPublisher interface {
	PublishUnlock(ctx context.Context, event shared.AchievementUnlockedEvent) error
}

// StatisticsInvalidator drops a user's cached dashboard.
type StatisticsInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// UnlockNotifierConfig contains configuration for the notifier.
type UnlockNotifierConfig struct {
	Timeout time.Duration
}

// DefaultUnlockNotifierConfig returns default configuration.
func DefaultUnlockNotifierConfig() UnlockNotifierConfig {
	return UnlockNotifierConfig{Timeout: 5 * time.Second}
}

// UnlockNotifier handles achievement.unlocked and streak.* events.
// Any collaborator may be nil.
type UnlockNotifier struct {
	guard      UnlockGuard
	publisher  UnlockPublisher
	statistics StatisticsInvalidator
	gate       FeatureGate
	logger     *slog.Logger
	config     UnlockNotifierConfig
}

// NewUnlockNotifier creates a new UnlockNotifier.
func NewUnlockNotifier(
	guard UnlockGuard,
	publisher UnlockPublisher,
	statistics StatisticsInvalidator,
	gate FeatureGate,
	log *slog.Logger,
	config UnlockNotifierConfig,
) *UnlockNotifier {
	if config.Timeout <= 0 {
		config.Timeout = DefaultUnlockNotifierConfig().Timeout
	}
	return &UnlockNotifier{
		guard:      guard,
		publisher:  publisher,
		statistics: statistics,
		gate:       gate,
		logger:     logger.Or(log).With(logger.Component("unlock_notifier")),
		config:     config,
	}
}

// Register subscribes the notifier to the bus.
func (n *UnlockNotifier) Register(bus shared.EventSubscriber) error {
	if err := bus.Subscribe(shared.EventAchievementUnlocked, n.HandleUnlock); err != nil {
		return fmt.Errorf("subscribe %s: %w", shared.EventAchievementUnlocked, err)
	}
	for _, t := range []shared.EventType{
		shared.EventStreakStarted,
		shared.EventStreakExtended,
		shared.EventStreakRestarted,
		shared.EventStreakBroken,
		shared.EventStreakGoalUpdated,
	} {
		if err := bus.Subscribe(t, n.HandleStreakChange); err != nil {
			return fmt.Errorf("subscribe %s: %w", t, err)
		}
	}
	return nil
}

// HandleUnlock forwards an unlock. A guard failure lets the event through:
// a duplicate notification is better than a lost one. For the same reason a
// failed forward releases the claim.
func (n *UnlockNotifier) HandleUnlock(event shared.Event) error {
	var e shared.AchievementUnlockedEvent
	switch v := event.(type) {
	case shared.AchievementUnlockedEvent:
		e = v
	case *shared.AchievementUnlockedEvent:
		e = *v
	default:
		return fmt.Errorf("unexpected event %T for %s", event, shared.EventAchievementUnlocked)
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.config.Timeout)
	defer cancel()

	log := n.logger.With(logger.UserID(e.UserID), logger.AchievementID(e.AchievementID))
	n.invalidate(ctx, log, e.UserID)

	claimed := false
	if n.guard != nil && (n.gate == nil || n.gate.Enabled(FlagUnlockDedupe, e.UserID)) {
		first, err := n.guard.Acquire(ctx, e.UserID, e.AchievementID)
		switch {
		case err != nil:
			log.Warn("unlock guard unavailable, forwarding anyway", logger.Err(err))
		case !first:
			log.Debug("duplicate unlock suppressed")
			return nil
		default:
			claimed = true
		}
	}

	if n.publisher == nil {
		return nil
	}
	if err := n.publisher.PublishUnlock(ctx, e); err != nil {
		log.Error("failed to forward unlock", logger.Err(err))
		if claimed {
			if relErr := n.guard.Release(ctx, e.UserID, e.AchievementID); relErr != nil {
				log.Warn("failed to release unlock claim", logger.Err(relErr))
			}
		}
		return err
	}
	log.Info("achievement unlock forwarded", slog.String("name", e.Name))
	return nil
}

// HandleStreakChange invalidates the dashboard of the event's user.
func (n *UnlockNotifier) HandleStreakChange(event shared.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), n.config.Timeout)
	defer cancel()
	n.invalidate(ctx, n.logger.With(logger.UserID(event.AggregateID())), event.AggregateID())
	return nil
}

func (n *UnlockNotifier) invalidate(ctx context.Context, log *slog.Logger, userID string) {
	if n.statistics == nil || userID == "" {
		return
	}
	if err := n.statistics.Invalidate(ctx, userID); err != nil {
		log.Warn("failed to invalidate statistics cache", logger.Err(err))
	}
}
