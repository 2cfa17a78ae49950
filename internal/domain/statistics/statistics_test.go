package statistics

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/captus-hub/captus-engine/internal/domain/achievement"
	"github.com/captus-hub/captus-engine/internal/domain/activity"
	"github.com/captus-hub/captus-engine/internal/domain/streak"
)

func TestScoreCategory(t *testing.T) {
	_, a := ScoreCategory(activity.CategoryActivity{TotalTasks: 10, CompletedTasks: 9})
	_, b := ScoreCategory(activity.CategoryActivity{TotalTasks: 100, CompletedTasks: 50})

	assert.InDelta(t, 2.16, a, 0.01)
	assert.InDelta(t, 2.31, b, 0.01)

	rate, score := ScoreCategory(activity.CategoryActivity{})
	assert.Zero(t, rate)
	assert.Zero(t, score)
}

func TestFavorite_PicksHighestScore(t *testing.T) {
	fav := Favorite([]activity.CategoryActivity{
		{CategoryID: 1, Name: "Estudio", TotalTasks: 10, CompletedTasks: 9},
		{CategoryID: 2, Name: "Trabajo", TotalTasks: 100, CompletedTasks: 50},
	})
	require.NotNil(t, fav)
	assert.Equal(t, int64(2), fav.CategoryID)
	assert.InDelta(t, 0.5, fav.CompletionRate, 1e-9)
}

func TestFavorite_TieKeepsFirst(t *testing.T) {
	fav := Favorite([]activity.CategoryActivity{
		{CategoryID: 0, TotalTasks: 0},
		{CategoryID: 5, TotalTasks: 4, CompletedTasks: 2},
		{CategoryID: 6, TotalTasks: 4, CompletedTasks: 2},
	})
	require.NotNil(t, fav)
	assert.Equal(t, int64(5), fav.CategoryID)
}

func TestFavorite_NilWithoutTasks(t *testing.T) {
	assert.Nil(t, Favorite(nil))
	assert.Nil(t, Favorite([]activity.CategoryActivity{{CategoryID: 1}}))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		fav  FavoriteCategory
		want Verdict
	}{
		{FavoriteCategory{CompletionRate: 0.9, TotalTasks: 10}, VerdictExcellent},
		{FavoriteCategory{CompletionRate: 0.9, TotalTasks: 9}, VerdictBalanced},
		{FavoriteCategory{CompletionRate: 0.7, TotalTasks: 3}, VerdictBalanced},
		{FavoriteCategory{CompletionRate: 0.5, TotalTasks: 20}, VerdictMostActive},
		{FavoriteCategory{CompletionRate: 0.5, TotalTasks: 19}, VerdictGettingStarted},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.fav), "%+v", tt.fav)
	}
}

func TestCompletionPercent(t *testing.T) {
	assert.Equal(t, 0, CompletionPercent(3, 0))
	assert.Equal(t, 33, CompletionPercent(1, 3))
	assert.Equal(t, 67, CompletionPercent(2, 3))
	assert.Equal(t, 100, CompletionPercent(17, 17))
}

func TestProductivitySeries(t *testing.T) {
	today := time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC) // Wednesday
	s := activity.NewSnapshot("u", []activity.Task{
		{CreatedAt: time.Date(2024, 3, 13, 9, 0, 0, 0, time.UTC), Completed: true, UpdatedAt: time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC)},
		{CreatedAt: time.Date(2024, 3, 7, 9, 0, 0, 0, time.UTC)},
		{CreatedAt: time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC)}, // outside the window
		{CreatedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), Completed: true, UpdatedAt: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)},
	}, today)

	series := ProductivitySeries(s, today, time.UTC, 7)
	require.Len(t, series, 7)
	assert.Equal(t, DayBucket{Date: "2024-03-07", Day: "Thu", Created: 1}, series[0])
	assert.Equal(t, DayBucket{Date: "2024-03-10", Day: "Sun", Completed: 1}, series[3])
	assert.Equal(t, DayBucket{Date: "2024-03-13", Day: "Wed", Created: 1, Completed: 1}, series[6])

	assert.Equal(t, 100, WeeklyCompletionRate(series))
	assert.Len(t, ProductivitySeries(nil, today, nil, 7), 7)
	assert.Nil(t, ProductivitySeries(s, today, nil, 0))
}

func TestBuildDashboard(t *testing.T) {
	now := time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC)
	yesterday := time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)
	unlocked := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	var tasks []activity.Task
	for i := 0; i < 4; i++ {
		tasks = append(tasks, activity.Task{ID: int64(i), CategoryID: 1, CategoryName: "Casa", Completed: i < 3, CreatedAt: now.Add(-time.Hour), UpdatedAt: now})
	}

	d := BuildDashboard(DashboardInput{
		UserID:   "u-1",
		Snapshot: activity.NewSnapshot("u-1", tasks, now),
		Streak:   streak.State{UserID: "u-1", CurrentStreak: 3, BestStreak: 8, LastStreakDate: &yesterday, DailyGoal: 5},
		Progress: []achievement.Progress{
			{AchievementID: "first_task", Progress: 3, IsCompleted: true, UnlockedAt: &unlocked},
			{AchievementID: "productivo", Progress: 3},
			{AchievementID: "retired_badge", Progress: 99, IsCompleted: true},
		},
		Catalog:  achievement.MustDefaultCatalog(),
		Now:      now,
		Location: time.UTC,
	})

	assert.Equal(t, TaskTotals{Total: 4, Completed: 3, Pending: 1, CreatedToday: 4, CompletedToday: 3, CompletionRate: 75}, d.Tasks)
	assert.Equal(t, 3, d.Streak.Current)
	assert.Equal(t, "2024-03-12", d.Streak.LastStreakDate)
	assert.True(t, d.Streak.AtRisk)
	assert.False(t, d.Streak.GoalReachedToday)
	assert.Equal(t, streak.BandBuilding, d.Streak.Band)

	assert.Equal(t, 1, d.Achievements.Completed)
	assert.Equal(t, 17, d.Achievements.Total)
	assert.Equal(t, 6, d.Achievements.Percent)
	require.Len(t, d.Achievements.Items, 17)
	assert.Equal(t, 100, d.Achievements.Items[0].Percent)
	assert.Equal(t, 12, d.Achievements.Items[4].Percent) // productivo: 3/25

	require.NotNil(t, d.Favorite)
	assert.Equal(t, "Casa", d.Favorite.Name)
	assert.Equal(t, VerdictBalanced, d.FavoriteVerdict)
	assert.Equal(t, []CategoryStat{{CategoryID: 1, Name: "Casa", TotalTasks: 4, CompletedTasks: 3, CompletionRate: 75}}, d.Categories)

	raw, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"metric":"completed_tasks"`)
}
