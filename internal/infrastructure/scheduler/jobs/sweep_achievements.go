// Package jobs contains the engine's scheduled jobs.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/captus-hub/captus-engine/internal/domain/achievement"
	"github.com/captus-hub/captus-engine/pkg/logger"
)

// FlagPeriodicSweep gates the sweep. Checked once per run with no user.
const FlagPeriodicSweep = "engine.periodic_sweep"

// ══════════════════════════════════════════════════════════════════════════════
// SWEEP ACHIEVEMENTS JOB
// Re-validates the full catalog for every user with activity. Streaks are
// deliberately untouched: breaks are applied lazily on the user's next
// check, never by the sweep.
// ══════════════════════════════════════════════════════════════════════════════

// UserLister pages through user IDs in ascending order.
type UserLister interface {
	ListUserIDs(ctx context.Context, after string, limit int) ([]string, error)
}

// CatalogValidator re-validates every catalog entry for one user.
type CatalogValidator interface {
	Recompute(ctx context.Context, userID string) ([]achievement.Result, error)
}

// FeatureGate reports whether a flag is on.
type FeatureGate interface {
	Enabled(flag, userID string) bool
}

// SweepAchievementsConfig contains configuration for the sweep.
type SweepAchievementsConfig struct {
	// Concurrency bounds users processed in parallel.
	Concurrency int

	PageSize int

	// Timeout caps the whole run.
	Timeout time.Duration

	// MaxFailureRate fails the run when exceeded (default 0.5).
	MaxFailureRate float64
}

// DefaultSweepAchievementsConfig returns sensible defaults.
func DefaultSweepAchievementsConfig() SweepAchievementsConfig {
	return SweepAchievementsConfig{
		Concurrency:    8,
		PageSize:       500,
		Timeout:        30 * time.Minute,
		MaxFailureRate: 0.5,
	}
}

// SweepStats summarizes one run.
type SweepStats struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Users       int
	Failed      int
	Unlocked    int
	Skipped     bool
}

// SweepAchievementsJob implements scheduler.Job.
type SweepAchievementsJob struct {
	users     UserLister
	validator CatalogValidator
	gate      FeatureGate
	logger    *slog.Logger
	config    SweepAchievementsConfig

	lastStats atomic.Pointer[SweepStats]
}

// NewSweepAchievementsJob creates the job. gate may be nil.
func NewSweepAchievementsJob(
	users UserLister,
	validator CatalogValidator,
	gate FeatureGate,
	log *slog.Logger,
	config SweepAchievementsConfig,
) *SweepAchievementsJob {
	defaults := DefaultSweepAchievementsConfig()
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.MaxFailureRate <= 0 {
		config.MaxFailureRate = defaults.MaxFailureRate
	}
	return &SweepAchievementsJob{
		users:     users,
		validator: validator,
		gate:      gate,
		logger:    logger.Or(log).With(logger.Component("sweep_achievements")),
		config:    config,
	}
}

func (j *SweepAchievementsJob) Name() string { return "sweep_achievements" }

func (j *SweepAchievementsJob) Description() string {
	return "Re-validates every catalog achievement for all users with activity"
}

// LastStats returns the stats of the previous run, or nil.
func (j *SweepAchievementsJob) LastStats() *SweepStats {
	return j.lastStats.Load()
}

// Run executes the sweep.
func (j *SweepAchievementsJob) Run(ctx context.Context) error {
	stats := &SweepStats{StartedAt: time.Now()}
	defer func() {
		stats.CompletedAt = time.Now()
		stats.Duration = stats.CompletedAt.Sub(stats.StartedAt)
		j.lastStats.Store(stats)
	}()

	if j.gate != nil && !j.gate.Enabled(FlagPeriodicSweep, "") {
		stats.Skipped = true
		j.logger.Debug("sweep disabled by feature flag")
		return nil
	}

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	var failed, unlocked atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.config.Concurrency)

	after := ""
	for {
		page, err := j.users.ListUserIDs(gctx, after, j.config.PageSize)
		if err != nil {
			// Let in-flight users finish before reporting.
			_ = g.Wait()
			return fmt.Errorf("list users after %q: %w", after, err)
		}

		for _, userID := range page {
			userID := userID
			stats.Users++
			g.Go(func() error {
				n, err := j.sweepUser(gctx, userID)
				if err != nil {
					failed.Add(1)
					j.logger.Warn("sweep failed for user", logger.UserID(userID), logger.Err(err))
					return nil
				}
				unlocked.Add(int64(n))
				return nil
			})
		}

		if len(page) < j.config.PageSize {
			break
		}
		after = page[len(page)-1]
	}

	_ = g.Wait()
	stats.Failed = int(failed.Load())
	stats.Unlocked = int(unlocked.Load())

	j.logger.Info("sweep completed",
		slog.Int("users", stats.Users),
		slog.Int("failed", stats.Failed),
		slog.Int("unlocked", stats.Unlocked),
		logger.Latency(time.Since(stats.StartedAt)),
	)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("sweep interrupted: %w", err)
	}
	if stats.Users > 0 && float64(stats.Failed)/float64(stats.Users) > j.config.MaxFailureRate {
		return fmt.Errorf("sweep failed for %d of %d users", stats.Failed, stats.Users)
	}
	return nil
}

// sweepUser returns the number of new unlocks. Per-achievement failures
// inside a pass count as a user failure only when every entry failed.
func (j *SweepAchievementsJob) sweepUser(ctx context.Context, userID string) (int, error) {
	results, err := j.validator.Recompute(ctx, userID)
	if err != nil {
		return 0, err
	}

	var unlocked, errored int
	var firstErr error
	for _, r := range results {
		if r.Err != nil {
			errored++
			if firstErr == nil {
				firstErr = r.Err
			}
			continue
		}
		if r.WasUnlocked {
			unlocked++
		}
	}
	if len(results) > 0 && errored == len(results) {
		return 0, firstErr
	}
	return unlocked, nil
}
