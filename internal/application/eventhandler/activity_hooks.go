// Package eventhandler wires activity notifications and domain events to the
// engine's bookkeeping.
package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/captus-hub/captus-engine/internal/domain/achievement"
	"github.com/captus-hub/captus-engine/internal/domain/activity"
	"github.com/captus-hub/captus-engine/internal/domain/streak"
	"github.com/captus-hub/captus-engine/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ACTIVITY HOOKS
// Called by the task surface after a task or subtask changes. Every hook
// returns immediately; the streak check and achievement validation run in
// the background so a failure here never fails the user's action. Each run
// ends by dropping the user's cached dashboard.
// ═══════════════════════════════════════════════════════════════════════════

// FlagActivityHooks gates all hooks.
const FlagActivityHooks = "engine.activity_hooks"

// EventValidator runs the achievement subset bound to an activity kind.
type EventValidator interface {
	ValidateForEvent(ctx context.Context, userID string, kind activity.EventKind) ([]achievement.Result, error)
}

// DailyChecker runs the daily streak transition.
type DailyChecker interface {
	CheckDaily(ctx context.Context, userID string) (streak.Outcome, error)
}

// FeatureGate reports whether a named flag is on for a user.
type FeatureGate interface {
	Enabled(flag, userID string) bool
}

// ActivityHooksConfig contains configuration for the hooks.
type ActivityHooksConfig struct {
	// Timeout bounds one hook run, detached from the caller's context.
	Timeout time.Duration
}

// DefaultActivityHooksConfig returns default configuration.
func DefaultActivityHooksConfig() ActivityHooksConfig {
	return ActivityHooksConfig{Timeout: 30 * time.Second}
}

// ActivityHooks dispatches fire-and-forget bookkeeping for activity events.
type ActivityHooks struct {
	validator  EventValidator
	streaks    DailyChecker
	statistics StatisticsInvalidator
	gate       FeatureGate
	logger     *slog.Logger
	config     ActivityHooksConfig

	wg sync.WaitGroup
}

// NewActivityHooks creates the hooks. statistics may be nil when no
// dashboard cache is configured. gate may be nil, in which case hooks
// always run.
func NewActivityHooks(
	validator EventValidator,
	streaks DailyChecker,
	statistics StatisticsInvalidator,
	gate FeatureGate,
	log *slog.Logger,
	config ActivityHooksConfig,
) *ActivityHooks {
	if config.Timeout <= 0 {
		config.Timeout = DefaultActivityHooksConfig().Timeout
	}
	return &ActivityHooks{
		validator:  validator,
		streaks:    streaks,
		statistics: statistics,
		gate:       gate,
		logger:     logger.Or(log).With(logger.Component("activity_hooks")),
		config:     config,
	}
}

// OnTaskCompleted checks the streak first, then the completion achievements.
// When the streak moved, the streak achievements are re-validated as well.
func (h *ActivityHooks) OnTaskCompleted(ctx context.Context, userID string) {
	h.dispatch(ctx, userID, activity.EventTaskCompleted, func(ctx context.Context, log *slog.Logger) {
		outcome, err := h.streaks.CheckDaily(ctx, userID)
		if err != nil {
			log.Warn("streak check failed", logger.Err(err))
		}

		h.validate(ctx, log, userID, activity.EventTaskCompleted)
		if err == nil && outcome.Changed {
			h.validate(ctx, log, userID, activity.EventDailyCheck)
		}
	})
}

// OnTaskCreated validates the creation achievements.
func (h *ActivityHooks) OnTaskCreated(ctx context.Context, userID string) {
	h.run(ctx, userID, activity.EventTaskCreated)
}

// OnSubtaskCreated validates the subtask creation achievements.
func (h *ActivityHooks) OnSubtaskCreated(ctx context.Context, userID string) {
	h.run(ctx, userID, activity.EventSubtaskCreated)
}

// OnSubtaskCompleted validates the subtask completion achievements.
func (h *ActivityHooks) OnSubtaskCompleted(ctx context.Context, userID string) {
	h.run(ctx, userID, activity.EventSubtaskCompleted)
}

// OnDailyCheck runs the streak transition on its own and then validates the
// streak achievements against the fresh state. A failed check still
// validates, against whatever state is stored.
func (h *ActivityHooks) OnDailyCheck(ctx context.Context, userID string) {
	h.dispatch(ctx, userID, activity.EventDailyCheck, func(ctx context.Context, log *slog.Logger) {
		if _, err := h.streaks.CheckDaily(ctx, userID); err != nil {
			log.Warn("streak check failed", logger.Err(err))
		}
		h.validate(ctx, log, userID, activity.EventDailyCheck)
	})
}

// Handle dispatches by kind. Unknown kinds are reported to the caller.
func (h *ActivityHooks) Handle(ctx context.Context, userID string, kind activity.EventKind) error {
	switch kind {
	case activity.EventTaskCompleted:
		h.OnTaskCompleted(ctx, userID)
	case activity.EventTaskCreated:
		h.OnTaskCreated(ctx, userID)
	case activity.EventSubtaskCreated:
		h.OnSubtaskCreated(ctx, userID)
	case activity.EventSubtaskCompleted:
		h.OnSubtaskCompleted(ctx, userID)
	case activity.EventDailyCheck:
		h.OnDailyCheck(ctx, userID)
	default:
		return fmt.Errorf("unknown activity kind %q", kind)
	}
	return nil
}

// Wait blocks until in-flight hooks finish or ctx is done.
func (h *ActivityHooks) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *ActivityHooks) run(ctx context.Context, userID string, kind activity.EventKind) {
	h.dispatch(ctx, userID, kind, func(ctx context.Context, log *slog.Logger) {
		h.validate(ctx, log, userID, kind)
	})
}

func (h *ActivityHooks) validate(ctx context.Context, log *slog.Logger, userID string, kind activity.EventKind) {
	results, err := h.validator.ValidateForEvent(ctx, userID, kind)
	if err != nil {
		log.Warn("achievement validation failed", logger.EventKind(string(kind)), logger.Err(err))
		return
	}

	unlocked := 0
	for _, r := range results {
		if r.Err != nil {
			log.Warn("achievement item failed",
				logger.EventKind(string(kind)), logger.AchievementID(r.AchievementID), logger.Err(r.Err))
		}
		if r.WasUnlocked {
			unlocked++
		}
	}
	log.Debug("achievements validated",
		logger.EventKind(string(kind)), slog.Int("checked", len(results)), slog.Int("unlocked", unlocked))
}

func (h *ActivityHooks) dispatch(ctx context.Context, userID string, kind activity.EventKind, fn func(context.Context, *slog.Logger)) {
	if userID == "" {
		return
	}
	if h.gate != nil && !h.gate.Enabled(FlagActivityHooks, userID) {
		return
	}

	log := h.logger.With(logger.UserID(userID), logger.EventKind(string(kind)))
	base := context.WithoutCancel(ctx)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error("activity hook panicked",
					slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			}
		}()

		runCtx, cancel := context.WithTimeout(base, h.config.Timeout)
		defer cancel()
		defer h.invalidate(runCtx, log, userID)
		fn(runCtx, log)
	}()
}

// invalidate runs even when fn panics: progress rows may already be written.
func (h *ActivityHooks) invalidate(ctx context.Context, log *slog.Logger, userID string) {
	if h.statistics == nil {
		return
	}
	if err := h.statistics.Invalidate(ctx, userID); err != nil {
		log.Warn("failed to invalidate statistics cache", logger.Err(err))
	}
}
