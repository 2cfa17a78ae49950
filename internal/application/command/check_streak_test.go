package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/captus-hub/captus-engine/internal/domain/shared"
	"github.com/captus-hub/captus-engine/internal/domain/streak"
	"github.com/captus-hub/captus-engine/pkg/logger"
)

func newTracker(store *memStreaks, counter *fakeCounter, pub *recordingPublisher, now time.Time, loc *time.Location) *StreakTracker {
	var publisher shared.EventPublisher
	if pub != nil {
		publisher = pub
	}
	return NewStreakTracker(store, counter, publisher, logger.Discard(), StreakTrackerConfig{
		DefaultDailyGoal: streak.DefaultDailyGoal,
		Location:         loc,
		Clock:            func() time.Time { return now },
	})
}

func civil(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestStreakTracker_CheckDailyExtends(t *testing.T) {
	store := newMemStreaks()
	store.rows["u-1"] = streak.State{UserID: "u-1", CurrentStreak: 2, BestStreak: 2, LastStreakDate: civil(2024, 3, 10), DailyGoal: 5, Version: 4}
	counter := &fakeCounter{n: 5}
	pub := &recordingPublisher{}

	tr := newTracker(store, counter, pub, fixedNow, time.UTC)
	out, err := tr.CheckDaily(context.Background(), "u-1")
	require.NoError(t, err)

	assert.Equal(t, streak.TransitionExtended, out.Transition)
	assert.Equal(t, 3, out.State.CurrentStreak)
	assert.Equal(t, int64(5), store.rows["u-1"].Version)
	assert.Equal(t, *civil(2024, 3, 11), *store.rows["u-1"].LastStreakDate)
	assert.Equal(t, []shared.EventType{shared.EventStreakExtended}, pub.types())

	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), counter.from)
	assert.Equal(t, time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC), counter.to)
}

func TestStreakTracker_CheckDailyUsesLocalDay(t *testing.T) {
	// 02:00 UTC on the 12th is still the 11th in Bogotá.
	bogota := time.FixedZone("COT", -5*3600)
	now := time.Date(2024, 3, 12, 2, 0, 0, 0, time.UTC)
	store := newMemStreaks()
	counter := &fakeCounter{n: 5}

	out, err := newTracker(store, counter, nil, now, bogota).CheckDaily(context.Background(), "u-1")
	require.NoError(t, err)

	assert.Equal(t, streak.TransitionStarted, out.Transition)
	assert.Equal(t, *civil(2024, 3, 11), *out.State.LastStreakDate)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, bogota), counter.from)
}

func TestStreakTracker_NoChangeNoWrite(t *testing.T) {
	store := newMemStreaks()
	pub := &recordingPublisher{}

	out, err := newTracker(store, &fakeCounter{n: 1}, pub, fixedNow, time.UTC).CheckDaily(context.Background(), "u-1")
	require.NoError(t, err)

	assert.False(t, out.Changed)
	assert.Zero(t, store.upserts)
	assert.Empty(t, pub.types())
}

func TestStreakTracker_BreakIsLazy(t *testing.T) {
	store := newMemStreaks()
	store.rows["u-1"] = streak.State{UserID: "u-1", CurrentStreak: 6, BestStreak: 6, LastStreakDate: civil(2024, 3, 9), DailyGoal: 5, Version: 1}
	pub := &recordingPublisher{}

	out, err := newTracker(store, &fakeCounter{n: 2}, pub, fixedNow, time.UTC).CheckDaily(context.Background(), "u-1")
	require.NoError(t, err)

	assert.Equal(t, streak.TransitionBroken, out.Transition)
	assert.Zero(t, store.rows["u-1"].CurrentStreak)
	assert.Nil(t, store.rows["u-1"].LastStreakDate)
	assert.Equal(t, 6, store.rows["u-1"].BestStreak)
	assert.Equal(t, []shared.EventType{shared.EventStreakBroken}, pub.types())
}

func TestStreakTracker_RetriesLostRace(t *testing.T) {
	store := newMemStreaks()
	store.conflicts = 2

	out, err := newTracker(store, &fakeCounter{n: 5}, nil, fixedNow, time.UTC).CheckDaily(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, 1, out.State.CurrentStreak)
	assert.Equal(t, 1, store.upserts)

	store.conflicts = maxStreakAttempts
	store.rows = map[string]streak.State{}
	_, err = newTracker(store, &fakeCounter{n: 5}, nil, fixedNow, time.UTC).CheckDaily(context.Background(), "u-2")
	assert.True(t, shared.IsConflict(err))
}

func TestStreakTracker_StorageErrors(t *testing.T) {
	store := newMemStreaks()
	store.readErr = errDown
	_, err := newTracker(store, &fakeCounter{n: 5}, nil, fixedNow, time.UTC).CheckDaily(context.Background(), "u-1")
	assert.True(t, shared.IsStorage(err))

	_, err = newTracker(newMemStreaks(), &fakeCounter{err: errDown}, nil, fixedNow, time.UTC).CheckDaily(context.Background(), "u-1")
	assert.True(t, shared.IsStorage(err))
}

func TestStreakTracker_UpdateDailyGoal(t *testing.T) {
	store := newMemStreaks()
	pub := &recordingPublisher{}
	tr := newTracker(store, &fakeCounter{}, pub, fixedNow, time.UTC)
	ctx := context.Background()

	_, err := tr.UpdateDailyGoal(ctx, "u-1", 2)
	assert.True(t, shared.IsValidationInput(err))
	assert.Zero(t, store.upserts)

	state, err := tr.UpdateDailyGoal(ctx, "u-1", 8)
	require.NoError(t, err)
	assert.Equal(t, 8, state.DailyGoal)
	assert.Equal(t, 8, store.rows["u-1"].DailyGoal)
	assert.Equal(t, []shared.EventType{shared.EventStreakGoalUpdated}, pub.types())

	// Same goal again is a no-op.
	_, err = tr.UpdateDailyGoal(ctx, "u-1", 8)
	require.NoError(t, err)
	assert.Equal(t, 1, store.upserts)
}

func TestStreakTracker_StateDefaults(t *testing.T) {
	tr := newTracker(newMemStreaks(), &fakeCounter{}, nil, fixedNow, time.UTC)

	s, err := tr.State(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, streak.DefaultDailyGoal, s.DailyGoal)
	assert.Zero(t, s.CurrentStreak)

	_, err = tr.State(context.Background(), "")
	assert.True(t, shared.IsValidationInput(err))
}
