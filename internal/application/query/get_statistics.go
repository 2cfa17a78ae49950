// Package query contains read operations.
package query

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/captus-hub/captus-engine/internal/domain/achievement"
	"github.com/captus-hub/captus-engine/internal/domain/activity"
	"github.com/captus-hub/captus-engine/internal/domain/shared"
	"github.com/captus-hub/captus-engine/internal/domain/statistics"
	"github.com/captus-hub/captus-engine/internal/domain/streak"
	"github.com/captus-hub/captus-engine/pkg/logger"
	"github.com/captus-hub/captus-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STATISTICS QUERY
// Builds the user's statistics dashboard: task totals, streak, achievement
// progress, favorite category and the seven day productivity chart.
// Nothing is written; the optional cache is a read-through copy.
// ══════════════════════════════════════════════════════════════════════════════

// FlagStatisticsCache gates the dashboard cache.
const FlagStatisticsCache = "engine.statistics_cache"

// StreakReader returns a user's streak state, defaults included.
type StreakReader interface {
	State(ctx context.Context, userID string) (streak.State, error)
}

// DashboardCache stores built dashboards.
type DashboardCache interface {
	Get(ctx context.Context, userID string) (*statistics.Dashboard, bool, error)
	Set(ctx context.Context, dashboard *statistics.Dashboard) error
}

// FeatureGate reports whether a named flag is on for a user.
type FeatureGate interface {
	Enabled(flag, userID string) bool
}

// GetStatisticsConfig contains configuration for the handler.
type GetStatisticsConfig struct {
	Location *time.Location
	Clock    timeutil.Clock
}

// GetStatisticsHandler answers statistics queries.
type GetStatisticsHandler struct {
	source   activity.Source
	progress achievement.ProgressStore
	streaks  StreakReader
	catalog  *achievement.Catalog
	cache    DashboardCache
	gate     FeatureGate
	logger   *slog.Logger
	config   GetStatisticsConfig
}

// NewGetStatisticsHandler creates a new handler. cache and gate may be nil.
func NewGetStatisticsHandler(
	source activity.Source,
	progress achievement.ProgressStore,
	streaks StreakReader,
	catalog *achievement.Catalog,
	cache DashboardCache,
	gate FeatureGate,
	log *slog.Logger,
	config GetStatisticsConfig,
) *GetStatisticsHandler {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.Clock == nil {
		config.Clock = timeutil.SystemClock
	}
	return &GetStatisticsHandler{
		source:   source,
		progress: progress,
		streaks:  streaks,
		catalog:  catalog,
		cache:    cache,
		gate:     gate,
		logger:   logger.Or(log).With(logger.Component("get_statistics")),
		config:   config,
	}
}

// Handle returns the dashboard for userID.
func (h *GetStatisticsHandler) Handle(ctx context.Context, userID string) (*statistics.Dashboard, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, shared.ErrEmptyUserID
	}

	cached := h.cacheEnabled(userID)
	if cached {
		d, ok, err := h.cache.Get(ctx, userID)
		switch {
		case err != nil:
			h.logger.Warn("statistics cache read failed", logger.UserID(userID), logger.Err(err))
		case ok:
			return d, nil
		}
	}

	snapshot, err := h.source.Snapshot(ctx, userID)
	if err != nil {
		return nil, shared.NewStorageError("statistics", "Snapshot", err)
	}
	if snapshot == nil {
		snapshot = activity.NewSnapshot(userID, nil, h.config.Clock())
	}

	rows, err := h.progress.ListProgress(ctx, userID)
	if err != nil {
		return nil, shared.NewStorageError("statistics", "ListProgress", err)
	}

	state, err := h.streaks.State(ctx, userID)
	if err != nil {
		return nil, err
	}

	d := statistics.BuildDashboard(statistics.DashboardInput{
		UserID:   userID,
		Snapshot: snapshot,
		Streak:   state,
		Progress: rows,
		Catalog:  h.catalog,
		Now:      h.config.Clock(),
		Location: h.config.Location,
	})

	if cached {
		if err := h.cache.Set(ctx, d); err != nil {
			h.logger.Warn("statistics cache write failed", logger.UserID(userID), logger.Err(err))
		}
	}
	return d, nil
}

func (h *GetStatisticsHandler) cacheEnabled(userID string) bool {
	if h.cache == nil {
		return false
	}
	return h.gate == nil || h.gate.Enabled(FlagStatisticsCache, userID)
}
