// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/captus-hub/captus-engine/internal/domain/achievement"
	"github.com/captus-hub/captus-engine/internal/domain/activity"
	"github.com/captus-hub/captus-engine/internal/domain/shared"
	"github.com/captus-hub/captus-engine/internal/domain/streak"
	"github.com/captus-hub/captus-engine/pkg/logger"
	"github.com/captus-hub/captus-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT VALIDATOR
// Loads prior progress, runs the calculators, applies the monotonic unlock
// rule, persists the result and emits exactly one unlock event per
// (user, achievement) transition.
// ══════════════════════════════════════════════════════════════════════════════

// AchievementValidatorConfig contains configuration for the validator.
type AchievementValidatorConfig struct {
	// HighPriorityLabel is the priority label counted by high_priority_tasks.
	HighPriorityLabel string

	// Location is the time zone for hour and calendar-day rules.
	Location *time.Location

	// Clock stamps unlocks. Defaults to the system clock.
	Clock timeutil.Clock
}

// DefaultAchievementValidatorConfig returns default configuration.
func DefaultAchievementValidatorConfig() AchievementValidatorConfig {
	return AchievementValidatorConfig{
		HighPriorityLabel: "Alta",
		Location:          time.UTC,
		Clock:             timeutil.SystemClock,
	}
}

// AchievementValidatorDeps groups the collaborators of the validator.
// Priorities and Streaks may be nil; the affected metrics then read as 0.
type AchievementValidatorDeps struct {
	Catalog    *achievement.Catalog
	Triggers   achievement.Triggers
	Source     activity.Source
	Progress   achievement.ProgressStore
	Streaks    streak.Store
	Priorities achievement.PriorityResolver
	Sink       achievement.UnlockSink
	Logger     *slog.Logger
}

// AchievementValidator is safe for concurrent use: all per-user data is
// passed explicitly into every call.
type AchievementValidator struct {
	catalog    *achievement.Catalog
	triggers   achievement.Triggers
	source     activity.Source
	progress   achievement.ProgressStore
	streaks    streak.Store
	priorities achievement.PriorityResolver
	sink       achievement.UnlockSink
	logger     *slog.Logger
	config     AchievementValidatorConfig
}

// NewAchievementValidator creates a new AchievementValidator.
func NewAchievementValidator(deps AchievementValidatorDeps, config AchievementValidatorConfig) *AchievementValidator {
	if config.Clock == nil {
		config.Clock = timeutil.SystemClock
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if deps.Triggers == nil {
		deps.Triggers = achievement.DefaultTriggers()
	}
	return &AchievementValidator{
		catalog:    deps.Catalog,
		triggers:   deps.Triggers,
		source:     deps.Source,
		progress:   deps.Progress,
		streaks:    deps.Streaks,
		priorities: deps.Priorities,
		sink:       deps.Sink,
		logger:     logger.Or(deps.Logger).With(logger.Component("achievement_validator")),
		config:     config,
	}
}

// pass is the per-call calculator input, built once and shared by every
// achievement validated in the same call.
type pass struct {
	inputs      achievement.Inputs
	priorityErr error
}

// ValidateOne validates a single achievement. Errors are also reported in
// Result.Err; the result then carries zero progress and no unlock.
func (v *AchievementValidator) ValidateOne(ctx context.Context, userID, achievementID string, snapshot *activity.Snapshot) (achievement.Result, error) {
	if strings.TrimSpace(userID) == "" {
		return achievement.Result{AchievementID: achievementID, Err: shared.ErrEmptyUserID}, shared.ErrEmptyUserID
	}
	if strings.TrimSpace(achievementID) == "" {
		return achievement.Result{Err: shared.ErrEmptyAchievementID}, shared.ErrEmptyAchievementID
	}
	def, ok := v.catalog.Get(achievementID)
	if !ok {
		return achievement.Result{AchievementID: achievementID, Err: shared.ErrUnknownAchievement}, shared.ErrUnknownAchievement
	}
	if snapshot == nil {
		return achievement.Result{AchievementID: achievementID, Err: shared.ErrNilSnapshot}, shared.ErrNilSnapshot
	}

	p := v.preparePass(ctx, userID, snapshot, []achievement.Definition{def})
	res := v.validate(ctx, userID, def, p)
	return res, res.Err
}

// ValidateSubset validates the listed achievements against one snapshot.
// Unknown ids and per-item failures are logged and reported in their
// Result; they never stop the remaining items.
func (v *AchievementValidator) ValidateSubset(ctx context.Context, userID string, achievementIDs []string, snapshot *activity.Snapshot) ([]achievement.Result, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, shared.ErrEmptyUserID
	}
	if snapshot == nil {
		return nil, shared.ErrNilSnapshot
	}

	defs := make([]achievement.Definition, 0, len(achievementIDs))
	results := make([]achievement.Result, 0, len(achievementIDs))
	for _, id := range achievementIDs {
		def, ok := v.catalog.Get(id)
		if !ok {
			v.logger.Warn("skipping unknown achievement", logger.UserID(userID), logger.AchievementID(id))
			results = append(results, achievement.Result{AchievementID: id, Err: shared.ErrUnknownAchievement})
			continue
		}
		defs = append(defs, def)
	}

	p := v.preparePass(ctx, userID, snapshot, defs)
	for _, def := range defs {
		if err := ctx.Err(); err != nil {
			results = append(results, achievement.Result{AchievementID: def.ID, Err: err})
			continue
		}
		results = append(results, v.validate(ctx, userID, def, p))
	}
	return results, nil
}

// ValidateAll validates the whole catalog.
func (v *AchievementValidator) ValidateAll(ctx context.Context, userID string, snapshot *activity.Snapshot) ([]achievement.Result, error) {
	return v.ValidateSubset(ctx, userID, v.catalog.IDs(), snapshot)
}

// ValidateForEvent fetches one snapshot and validates the achievements
// triggered by kind.
func (v *AchievementValidator) ValidateForEvent(ctx context.Context, userID string, kind activity.EventKind) ([]achievement.Result, error) {
	if !kind.IsValid() {
		return nil, shared.NewValidationInputError("achievement", "ValidateForEvent", "unknown event kind "+string(kind))
	}
	ids := v.triggers.For(kind)
	if len(ids) == 0 {
		return nil, nil
	}
	snapshot, err := v.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	return v.ValidateSubset(ctx, userID, ids, snapshot)
}

// Recompute fetches one snapshot and validates the whole catalog.
// Used by the periodic sweep and the forced-recompute endpoint.
func (v *AchievementValidator) Recompute(ctx context.Context, userID string) ([]achievement.Result, error) {
	snapshot, err := v.snapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	return v.ValidateAll(ctx, userID, snapshot)
}

func (v *AchievementValidator) snapshot(ctx context.Context, userID string) (*activity.Snapshot, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, shared.ErrEmptyUserID
	}
	snapshot, err := v.source.Snapshot(ctx, userID)
	if err != nil {
		return nil, shared.NewStorageError("achievement", "Snapshot", err)
	}
	if snapshot == nil {
		snapshot = activity.NewSnapshot(userID, nil, v.config.Clock())
	}
	return snapshot, nil
}

// preparePass reads the streak and priority labels once, and only when a
// definition in defs needs them.
func (v *AchievementValidator) preparePass(ctx context.Context, userID string, snapshot *activity.Snapshot, defs []achievement.Definition) *pass {
	p := &pass{inputs: achievement.Inputs{
		Snapshot:          snapshot,
		HighPriorityLabel: v.config.HighPriorityLabel,
		Location:          v.config.Location,
	}}

	needStreak, needPriorities := false, false
	for _, def := range defs {
		switch def.Type {
		case achievement.MetricStreak:
			needStreak = true
		case achievement.MetricHighPriorityTasks:
			needPriorities = true
		}
	}

	if needStreak && v.streaks != nil {
		state, err := v.streaks.GetStreakState(ctx, userID)
		switch {
		case err != nil:
			// Fail open: an unreadable streak counts as no streak.
			v.logger.Warn("streak read failed, using 0",
				logger.UserID(userID), logger.Err(err))
		case state != nil:
			p.inputs.CurrentStreak = state.CurrentStreak
		}
	}

	if needPriorities && v.priorities != nil {
		if ids := snapshot.PriorityIDs(); len(ids) > 0 {
			labels, err := v.priorities.ResolvePriorityLabels(ctx, ids)
			if err != nil {
				p.priorityErr = shared.NewStorageError("achievement", "ResolvePriorityLabels", err)
				v.logger.Warn("priority labels unavailable",
					logger.UserID(userID), logger.Err(err))
			} else {
				p.inputs.PriorityLabels = labels
			}
		}
	}

	return p
}

// validate runs one achievement. It never returns an error directly: every
// failure is logged and isolated in Result.Err.
func (v *AchievementValidator) validate(ctx context.Context, userID string, def achievement.Definition, p *pass) achievement.Result {
	log := v.logger.With(logger.UserID(userID), logger.AchievementID(def.ID), logger.Metric(def.Type.String()))
	failed := func(msg string, err error) achievement.Result {
		log.Error(msg, logger.Err(err))
		return achievement.Result{AchievementID: def.ID, Err: err}
	}

	// Step 1: load prior progress. A failed read is treated as no record;
	// the guarded upsert keeps that safe.
	stored, err := v.progress.GetProgress(ctx, userID, def.ID)
	if err != nil {
		log.Warn("progress read failed, treating as no record", logger.Err(err))
		stored = nil
	}

	// Step 2: compute.
	if def.Type == achievement.MetricHighPriorityTasks && p.priorityErr != nil {
		return failed("priority resolver failed", p.priorityErr)
	}
	value, err := achievement.Calculate(def.Type, p.inputs)
	if err != nil {
		return failed("progress calculation failed", err)
	}

	now := v.config.Clock().UTC()

	// Step 3a: already unlocked. Ratchet progress only; never re-stamp.
	if stored != nil && stored.IsCompleted {
		if value <= stored.Progress {
			return achievement.Result{AchievementID: def.ID, Progress: stored.Progress}
		}
		res, err := v.progress.UpsertProgress(ctx, achievement.Progress{
			UserID:        userID,
			AchievementID: def.ID,
			Progress:      value,
			IsCompleted:   true,
			UnlockedAt:    stored.UnlockedAt,
			UpdatedAt:     now,
		})
		if err != nil {
			return failed("progress write failed", shared.NewStorageError("achievement", "UpsertProgress", err))
		}
		return achievement.Result{AchievementID: def.ID, Progress: res.Stored.Progress}
	}

	// Step 3b: target reached. The store decides whether this write is the
	// one that unlocked it.
	if def.IsReached(value) {
		res, err := v.progress.UpsertProgress(ctx, achievement.Progress{
			UserID:        userID,
			AchievementID: def.ID,
			Progress:      value,
			IsCompleted:   true,
			UnlockedAt:    &now,
			UpdatedAt:     now,
		})
		if err != nil {
			return failed("unlock write failed", shared.NewStorageError("achievement", "UpsertProgress", err))
		}
		if res.Unlocked {
			v.emitUnlock(ctx, log, userID, def, res.Stored, now)
		}
		return achievement.Result{AchievementID: def.ID, WasUnlocked: res.Unlocked, Progress: res.Stored.Progress}
	}

	// Step 3c: still locked. Skip writes that would not change anything.
	if stored == nil && value == 0 {
		return achievement.Result{AchievementID: def.ID}
	}
	if stored != nil && value <= stored.Progress {
		return achievement.Result{AchievementID: def.ID, Progress: stored.Progress}
	}
	res, err := v.progress.UpsertProgress(ctx, achievement.Progress{
		UserID:        userID,
		AchievementID: def.ID,
		Progress:      value,
		UpdatedAt:     now,
	})
	if err != nil {
		return failed("progress write failed", shared.NewStorageError("achievement", "UpsertProgress", err))
	}
	return achievement.Result{AchievementID: def.ID, Progress: res.Stored.Progress}
}

func (v *AchievementValidator) emitUnlock(ctx context.Context, log *slog.Logger, userID string, def achievement.Definition, stored achievement.Progress, now time.Time) {
	unlockedAt := now
	if stored.UnlockedAt != nil {
		unlockedAt = *stored.UnlockedAt
	}
	log.Info("achievement unlocked", slog.Int("progress", stored.Progress))

	if v.sink == nil {
		return
	}
	// The unlock is already committed; a sink failure only loses the notification.
	err := v.sink.EmitUnlock(ctx, achievement.UnlockEvent{
		UserID:        userID,
		AchievementID: def.ID,
		UnlockedAt:    unlockedAt,
		Name:          def.Name,
		Metric:        def.Type,
		Progress:      stored.Progress,
		Target:        def.TargetValue,
	})
	if err != nil {
		log.Error("failed to emit unlock event", logger.Err(err))
	}
}
