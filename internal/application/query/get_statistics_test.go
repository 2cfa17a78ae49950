package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/captus-hub/captus-engine/internal/domain/achievement"
	"github.com/captus-hub/captus-engine/internal/domain/activity"
	"github.com/captus-hub/captus-engine/internal/domain/shared"
	"github.com/captus-hub/captus-engine/internal/domain/statistics"
	"github.com/captus-hub/captus-engine/internal/domain/streak"
	"github.com/captus-hub/captus-engine/pkg/logger"
)

var now = time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC)

type stubSource struct {
	snapshot *activity.Snapshot
	err      error
	calls    int
}

func (s *stubSource) Snapshot(context.Context, string) (*activity.Snapshot, error) {
	s.calls++
	return s.snapshot, s.err
}

type stubProgress struct {
	rows []achievement.Progress
	err  error
}

func (s *stubProgress) GetProgress(context.Context, string, string) (*achievement.Progress, error) {
	return nil, nil
}

func (s *stubProgress) UpsertProgress(_ context.Context, p achievement.Progress) (achievement.UpsertResult, error) {
	return achievement.UpsertResult{Stored: p}, nil
}

func (s *stubProgress) ListProgress(context.Context, string) ([]achievement.Progress, error) {
	return s.rows, s.err
}

type stubStreaks struct {
	state streak.State
	err   error
}

func (s stubStreaks) State(context.Context, string) (streak.State, error) { return s.state, s.err }

type memCache struct {
	items  map[string]*statistics.Dashboard
	getErr error
	sets   int
}

func (c *memCache) Get(_ context.Context, userID string) (*statistics.Dashboard, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	d, ok := c.items[userID]
	return d, ok, nil
}

func (c *memCache) Set(_ context.Context, d *statistics.Dashboard) error {
	c.sets++
	c.items[d.UserID] = d
	return nil
}

type gate map[string]bool

func (g gate) Enabled(flag, _ string) bool { return g[flag] }

func fixture() (*stubSource, *stubProgress, stubStreaks) {
	done := now.Add(-time.Hour)
	snap := activity.NewSnapshot("u-1", []activity.Task{
		{ID: 1, Completed: true, CreatedAt: done, UpdatedAt: done, CategoryID: 2, CategoryName: "Trabajo"},
		{ID: 2, CreatedAt: done, CategoryID: 2, CategoryName: "Trabajo"},
	}, now)
	unlocked := done
	progress := &stubProgress{rows: []achievement.Progress{
		{UserID: "u-1", AchievementID: "first_task", Progress: 1, IsCompleted: true, UnlockedAt: &unlocked},
	}}
	state := streak.NewState("u-1", 5)
	state.CurrentStreak, state.BestStreak = 2, 4
	return &stubSource{snapshot: snap}, progress, stubStreaks{state: state}
}

func newHandler(src *stubSource, p *stubProgress, s stubStreaks, cache DashboardCache, g FeatureGate) *GetStatisticsHandler {
	return NewGetStatisticsHandler(src, p, s, achievement.MustDefaultCatalog(), cache, g, logger.Discard(),
		GetStatisticsConfig{Location: time.UTC, Clock: func() time.Time { return now }})
}

func TestGetStatisticsHandler_BuildsDashboard(t *testing.T) {
	src, p, s := fixture()

	d, err := newHandler(src, p, s, nil, nil).Handle(context.Background(), "u-1")
	require.NoError(t, err)

	assert.Equal(t, 2, d.Tasks.Total)
	assert.Equal(t, 1, d.Tasks.CompletedToday)
	assert.Equal(t, 50, d.Tasks.CompletionRate)
	assert.Equal(t, 2, d.Streak.Current)
	assert.Equal(t, 4, d.Streak.Best)
	assert.Equal(t, 1, d.Achievements.Completed)
	assert.Equal(t, 17, d.Achievements.Total)
	require.NotNil(t, d.Favorite)
	assert.Equal(t, "Trabajo", d.Favorite.Name)
	assert.Len(t, d.Productivity, statistics.ProductivityWindowDays)
}

func TestGetStatisticsHandler_ReadThroughCache(t *testing.T) {
	src, p, s := fixture()
	cache := &memCache{items: map[string]*statistics.Dashboard{}}
	h := newHandler(src, p, s, cache, gate{FlagStatisticsCache: true})

	first, err := h.Handle(context.Background(), "u-1")
	require.NoError(t, err)
	second, err := h.Handle(context.Background(), "u-1")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, 1, cache.sets)
}

func TestGetStatisticsHandler_CacheFlagOffOrBroken(t *testing.T) {
	src, p, s := fixture()
	cache := &memCache{items: map[string]*statistics.Dashboard{}}
	h := newHandler(src, p, s, cache, gate{})

	_, err := h.Handle(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Zero(t, cache.sets)

	cache.getErr = errors.New("redis down")
	h = newHandler(src, p, s, cache, nil)
	_, err = h.Handle(context.Background(), "u-1")
	require.NoError(t, err)
}

func TestGetStatisticsHandler_Errors(t *testing.T) {
	src, p, s := fixture()
	ctx := context.Background()

	_, err := newHandler(src, p, s, nil, nil).Handle(ctx, " ")
	assert.True(t, shared.IsValidationInput(err))

	_, err = newHandler(&stubSource{err: errors.New("db down")}, p, s, nil, nil).Handle(ctx, "u-1")
	assert.True(t, shared.IsStorage(err))

	_, err = newHandler(src, &stubProgress{err: errors.New("db down")}, s, nil, nil).Handle(ctx, "u-1")
	assert.True(t, shared.IsStorage(err))
}

func TestGetStatisticsHandler_NoActivity(t *testing.T) {
	_, p, s := fixture()

	d, err := newHandler(&stubSource{}, p, s, nil, nil).Handle(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Zero(t, d.Tasks.Total)
	assert.Nil(t, d.Favorite)
}
