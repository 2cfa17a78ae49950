package streak

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/captus-hub/captus-engine/internal/domain/shared"
)

var today = time.Date(2024, 6, 15, 18, 30, 0, 0, time.FixedZone("UTC-5", -5*3600))

func daysAgo(n int) *time.Time {
	d := time.Date(2024, 6, 15-n, 0, 0, 0, 0, time.UTC)
	return &d
}

func TestCheck_ExtendsFromYesterday(t *testing.T) {
	s := State{UserID: "u", CurrentStreak: 4, BestStreak: 4, LastStreakDate: daysAgo(1), DailyGoal: 5}

	out := Check(s, today, 5)

	assert.True(t, out.Changed)
	assert.Equal(t, TransitionExtended, out.Transition)
	assert.Equal(t, 5, out.State.CurrentStreak)
	assert.Equal(t, 5, out.State.BestStreak)
	assert.Equal(t, 4, out.PreviousStreak)
	require.NotNil(t, out.State.LastStreakDate)
	assert.Equal(t, *daysAgo(0), *out.State.LastStreakDate)

	// Input state is not mutated.
	assert.Equal(t, *daysAgo(1), *s.LastStreakDate)
}

func TestCheck_ResetsToOneAfterGap(t *testing.T) {
	s := State{UserID: "u", CurrentStreak: 9, BestStreak: 12, LastStreakDate: daysAgo(3), DailyGoal: 5}

	out := Check(s, today, 6)

	assert.Equal(t, TransitionRestarted, out.Transition)
	assert.Equal(t, 1, out.State.CurrentStreak)
	assert.Equal(t, 12, out.State.BestStreak)
	assert.Equal(t, *daysAgo(0), *out.State.LastStreakDate)
}

func TestCheck_BreaksWhenGoalMissedAfterGap(t *testing.T) {
	s := State{UserID: "u", CurrentStreak: 3, BestStreak: 3, LastStreakDate: daysAgo(2), DailyGoal: 5}

	out := Check(s, today, 2)

	assert.Equal(t, TransitionBroken, out.Transition)
	assert.Zero(t, out.State.CurrentStreak)
	assert.Nil(t, out.State.LastStreakDate)
	assert.Equal(t, 3, out.State.BestStreak)
}

func TestCheck_NoChangeCases(t *testing.T) {
	tests := []struct {
		name      string
		state     State
		completed int
	}{
		{"already counted today", State{CurrentStreak: 2, BestStreak: 2, LastStreakDate: daysAgo(0), DailyGoal: 5}, 9},
		{"goal open, yesterday still alive", State{CurrentStreak: 2, BestStreak: 2, LastStreakDate: daysAgo(1), DailyGoal: 5}, 1},
		{"inactive stays inactive", State{DailyGoal: 5}, 0},
		{"future date treated as today", State{CurrentStreak: 1, BestStreak: 1, LastStreakDate: daysAgo(-1), DailyGoal: 5}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Check(tt.state, today, tt.completed)
			assert.False(t, out.Changed)
			assert.Equal(t, TransitionNone, out.Transition)
			assert.True(t, out.State.Equal(tt.state))
		})
	}
}

func TestCheck_StartsFromNothing(t *testing.T) {
	out := Check(NewState("u", DefaultDailyGoal), today, 5)
	assert.Equal(t, TransitionStarted, out.Transition)
	assert.Equal(t, 1, out.State.CurrentStreak)
	assert.Equal(t, 1, out.State.BestStreak)
}

func TestCheck_UsesLocalCalendarDay(t *testing.T) {
	// 23:30 local on June 15 is already June 16 in UTC; the local date wins.
	late := time.Date(2024, 6, 15, 23, 30, 0, 0, time.FixedZone("UTC-5", -5*3600))
	s := State{CurrentStreak: 1, BestStreak: 1, LastStreakDate: daysAgo(1), DailyGoal: 3}

	out := Check(s, late, 3)
	assert.Equal(t, TransitionExtended, out.Transition)
	assert.Equal(t, *daysAgo(0), *out.State.LastStreakDate)
}

func TestCheck_BestStreakNeverDecreases(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	s := NewState("u", DefaultDailyGoal)
	day := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	best := 0
	for i := 0; i < 500; i++ {
		day = day.AddDate(0, 0, 1+rng.Intn(2))
		out := Check(s, day, rng.Intn(8))
		assert.GreaterOrEqual(t, out.State.BestStreak, best)
		assert.GreaterOrEqual(t, out.State.BestStreak, out.State.CurrentStreak)
		best = out.State.BestStreak
		s = out.State
	}
}

func TestSetDailyGoal(t *testing.T) {
	s := NewState("u", 0)
	assert.Equal(t, DefaultDailyGoal, s.DailyGoal)

	err := s.SetDailyGoal(2)
	assert.ErrorIs(t, err, shared.ErrDailyGoalTooLow)
	assert.True(t, shared.IsValidationInput(err))
	assert.Equal(t, DefaultDailyGoal, s.DailyGoal)

	require.NoError(t, s.SetDailyGoal(3))
	assert.Equal(t, 3, s.DailyGoal)
}

func TestAtRisk(t *testing.T) {
	assert.True(t, State{CurrentStreak: 2, LastStreakDate: daysAgo(1)}.AtRisk(today))
	assert.False(t, State{CurrentStreak: 2, LastStreakDate: daysAgo(0)}.AtRisk(today))
	assert.False(t, State{}.AtRisk(today))
}

func TestBandFor(t *testing.T) {
	cases := map[int]Band{
		0: BandNone, 1: BandStarting, 2: BandStarting, 3: BandBuilding, 6: BandBuilding,
		7: BandStrong, 14: BandStrong, 15: BandElite, 29: BandElite, 30: BandLegendary, 365: BandLegendary,
	}
	for streak, want := range cases {
		assert.Equal(t, want, BandFor(streak), streak)
	}
}
