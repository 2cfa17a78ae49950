package command

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/captus-hub/captus-engine/internal/domain/activity"
	"github.com/captus-hub/captus-engine/internal/domain/shared"
	"github.com/captus-hub/captus-engine/internal/domain/streak"
	"github.com/captus-hub/captus-engine/pkg/logger"
	"github.com/captus-hub/captus-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK TRACKER
// Runs the daily streak transition and daily goal changes against the
// streak store. Writes are compare-and-set; a lost race is retried on a
// fresh read.
// ══════════════════════════════════════════════════════════════════════════════

// maxStreakAttempts bounds compare-and-set retries.
const maxStreakAttempts = 3

// StreakTrackerConfig contains configuration for the tracker.
type StreakTrackerConfig struct {
	DefaultDailyGoal int
	Location         *time.Location
	Clock            timeutil.Clock
}

// DefaultStreakTrackerConfig returns default configuration.
func DefaultStreakTrackerConfig() StreakTrackerConfig {
	return StreakTrackerConfig{
		DefaultDailyGoal: streak.DefaultDailyGoal,
		Location:         time.UTC,
		Clock:            timeutil.SystemClock,
	}
}

// StreakTracker owns streak state transitions.
type StreakTracker struct {
	store     streak.Store
	counter   activity.CompletionCounter
	publisher shared.EventPublisher
	logger    *slog.Logger
	config    StreakTrackerConfig
}

// NewStreakTracker creates a new StreakTracker. publisher may be nil.
func NewStreakTracker(
	store streak.Store,
	counter activity.CompletionCounter,
	publisher shared.EventPublisher,
	log *slog.Logger,
	config StreakTrackerConfig,
) *StreakTracker {
	if config.Clock == nil {
		config.Clock = timeutil.SystemClock
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.DefaultDailyGoal < streak.MinDailyGoal {
		config.DefaultDailyGoal = streak.DefaultDailyGoal
	}
	return &StreakTracker{
		store:     store,
		counter:   counter,
		publisher: publisher,
		logger:    logger.Or(log).With(logger.Component("streak_tracker")),
		config:    config,
	}
}

// State returns the stored state, or the defaults when the user has none yet.
func (t *StreakTracker) State(ctx context.Context, userID string) (streak.State, error) {
	if strings.TrimSpace(userID) == "" {
		return streak.State{}, shared.ErrEmptyUserID
	}
	stored, err := t.store.GetStreakState(ctx, userID)
	if err != nil {
		return streak.State{}, shared.NewStorageError("streak", "GetStreakState", err)
	}
	if stored == nil {
		return streak.NewState(userID, t.config.DefaultDailyGoal), nil
	}
	return *stored, nil
}

// CheckDaily runs the daily transition for today in the tracker's time zone.
// The state is persisted only when it changed.
func (t *StreakTracker) CheckDaily(ctx context.Context, userID string) (streak.Outcome, error) {
	var lastErr error
	for attempt := 1; attempt <= maxStreakAttempts; attempt++ {
		outcome, err := t.checkOnce(ctx, userID)
		if err == nil {
			return outcome, nil
		}
		if !shared.IsConflict(err) {
			return streak.Outcome{}, err
		}
		lastErr = err
		t.logger.Debug("streak write lost a race, retrying",
			logger.UserID(userID), slog.Int("attempt", attempt))
	}
	return streak.Outcome{}, lastErr
}

func (t *StreakTracker) checkOnce(ctx context.Context, userID string) (streak.Outcome, error) {
	state, err := t.State(ctx, userID)
	if err != nil {
		return streak.Outcome{}, err
	}

	now := t.config.Clock()
	today := now.In(t.config.Location)
	from := timeutil.StartOfDay(today, t.config.Location)
	to := timeutil.AddDays(from, 1, t.config.Location)

	completed, err := t.counter.CountCompletedBetween(ctx, userID, from, to)
	if err != nil {
		return streak.Outcome{}, shared.NewStorageError("streak", "CountCompletedBetween", err)
	}

	outcome := streak.Check(state, today, completed)
	if !outcome.Changed {
		return outcome, nil
	}

	outcome.State.UpdatedAt = now.UTC()
	if err := t.store.UpsertStreakState(ctx, outcome.State); err != nil {
		if shared.IsConflict(err) {
			return streak.Outcome{}, err
		}
		return streak.Outcome{}, shared.NewStorageError("streak", "UpsertStreakState", err)
	}
	outcome.State.Version++

	t.logger.Info("streak updated",
		logger.UserID(userID),
		slog.String("transition", string(outcome.Transition)),
		slog.Int("previous", outcome.PreviousStreak),
		slog.Int("current", outcome.State.CurrentStreak),
		slog.Int("completed_today", completed),
	)
	t.publish(outcome, today, now)
	return outcome, nil
}

// UpdateDailyGoal sets a new goal. Goals below streak.MinDailyGoal are
// rejected with a validation error and nothing is written.
func (t *StreakTracker) UpdateDailyGoal(ctx context.Context, userID string, goal int) (streak.State, error) {
	if goal < streak.MinDailyGoal {
		return streak.State{}, shared.ErrDailyGoalTooLow
	}

	var lastErr error
	for attempt := 1; attempt <= maxStreakAttempts; attempt++ {
		state, err := t.State(ctx, userID)
		if err != nil {
			return streak.State{}, err
		}
		if state.DailyGoal == goal && state.Version > 0 {
			return state, nil
		}
		if err := state.SetDailyGoal(goal); err != nil {
			return streak.State{}, err
		}

		now := t.config.Clock()
		state.UpdatedAt = now.UTC()
		err = t.store.UpsertStreakState(ctx, state)
		if err == nil {
			state.Version++
			if t.publisher != nil {
				event := shared.NewStreakUpdatedEvent(shared.EventStreakGoalUpdated, userID,
					state.CurrentStreak, state.CurrentStreak, state.BestStreak, state.DailyGoal,
					timeutil.DayKey(now, t.config.Location), now)
				if pubErr := t.publisher.Publish(event); pubErr != nil {
					t.logger.Warn("failed to publish goal update", logger.UserID(userID), logger.Err(pubErr))
				}
			}
			return state, nil
		}
		if !shared.IsConflict(err) {
			return streak.State{}, shared.NewStorageError("streak", "UpsertStreakState", err)
		}
		lastErr = err
	}
	return streak.State{}, lastErr
}

func (t *StreakTracker) publish(outcome streak.Outcome, today, now time.Time) {
	if t.publisher == nil {
		return
	}

	var eventType shared.EventType
	switch outcome.Transition {
	case streak.TransitionStarted:
		eventType = shared.EventStreakStarted
	case streak.TransitionExtended:
		eventType = shared.EventStreakExtended
	case streak.TransitionRestarted:
		eventType = shared.EventStreakRestarted
	case streak.TransitionBroken:
		eventType = shared.EventStreakBroken
	default:
		return
	}

	s := outcome.State
	event := shared.NewStreakUpdatedEvent(eventType, s.UserID, outcome.PreviousStreak,
		s.CurrentStreak, s.BestStreak, s.DailyGoal, today.Format(timeutil.DateLayout), now)
	if err := t.publisher.Publish(event); err != nil {
		t.logger.Warn("failed to publish streak event", logger.UserID(s.UserID), logger.Err(err))
	}
}
