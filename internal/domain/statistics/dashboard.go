package statistics

import (
	"time"

	"github.com/captus-hub/captus-engine/internal/domain/achievement"
	"github.com/captus-hub/captus-engine/internal/domain/activity"
	"github.com/captus-hub/captus-engine/internal/domain/streak"
	"github.com/captus-hub/captus-engine/pkg/timeutil"
)

// Dashboard is the per-user statistics read model.
type Dashboard struct {
	UserID      string    `json:"user_id"`
	GeneratedAt time.Time `json:"generated_at"`

	Tasks        TaskTotals         `json:"tasks"`
	Streak       StreakSummary      `json:"streak"`
	Achievements AchievementSummary `json:"achievements"`

	Favorite        *FavoriteCategory `json:"favorite_category"`
	FavoriteVerdict Verdict           `json:"favorite_verdict,omitempty"`
	Categories      []CategoryStat    `json:"categories"`

	Productivity         []DayBucket `json:"productivity"`
	WeeklyCompletionRate int         `json:"weekly_completion_rate"`
}

// TaskTotals holds plain task counters.
type TaskTotals struct {
	Total          int `json:"total"`
	Completed      int `json:"completed"`
	Pending        int `json:"pending"`
	CreatedToday   int `json:"created_today"`
	CompletedToday int `json:"completed_today"`
	CompletionRate int `json:"completion_rate"`
}

// StreakSummary is the streak state as shown to the user.
type StreakSummary struct {
	Current          int         `json:"current"`
	Best             int         `json:"best"`
	LastStreakDate   string      `json:"last_streak_date,omitempty"`
	DailyGoal        int         `json:"daily_goal"`
	CompletedToday   int         `json:"completed_today"`
	GoalReachedToday bool        `json:"goal_reached_today"`
	AtRisk           bool        `json:"at_risk"`
	Band             streak.Band `json:"band"`
}

// AchievementSummary aggregates catalog progress.
type AchievementSummary struct {
	Completed int                   `json:"completed"`
	Total     int                   `json:"total"`
	Percent   int                   `json:"percent"`
	Items     []AchievementProgress `json:"items"`
}

// AchievementProgress is one catalog entry joined with the user's row.
type AchievementProgress struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Icon        string                 `json:"icon"`
	Difficulty  achievement.Difficulty `json:"difficulty"`
	Color       string                 `json:"color"`
	Metric      achievement.MetricType `json:"metric"`
	Target      int                    `json:"target"`
	Progress    int                    `json:"progress"`
	Percent     int                    `json:"percent"`
	IsCompleted bool                   `json:"is_completed"`
	UnlockedAt  *time.Time             `json:"unlocked_at,omitempty"`
}

// CategoryStat is the per-category completion table.
type CategoryStat struct {
	CategoryID     int64  `json:"category_id"`
	Name           string `json:"name"`
	TotalTasks     int    `json:"total_tasks"`
	CompletedTasks int    `json:"completed_tasks"`
	CompletionRate int    `json:"completion_rate"`
}

// DashboardInput is everything BuildDashboard composes.
type DashboardInput struct {
	UserID   string
	Snapshot *activity.Snapshot
	Streak   streak.State
	Progress []achievement.Progress
	Catalog  *achievement.Catalog
	Now      time.Time
	Location *time.Location
}

// BuildDashboard merges already-loaded state into a Dashboard.
func BuildDashboard(in DashboardInput) *Dashboard {
	today := in.Now.In(locationOrUTC(in.Location))

	d := &Dashboard{
		UserID:      in.UserID,
		GeneratedAt: in.Now.UTC(),
	}

	d.Tasks = TaskTotals{
		Total:          in.Snapshot.TotalCount(),
		Completed:      in.Snapshot.CompletedCount(),
		CreatedToday:   in.Snapshot.CreatedOn(today, in.Location),
		CompletedToday: in.Snapshot.CompletedOn(today, in.Location),
	}
	d.Tasks.Pending = d.Tasks.Total - d.Tasks.Completed
	d.Tasks.CompletionRate = CompletionPercent(d.Tasks.Completed, d.Tasks.Total)

	d.Streak = StreakSummary{
		Current:          in.Streak.CurrentStreak,
		Best:             in.Streak.BestStreak,
		DailyGoal:        in.Streak.DailyGoal,
		CompletedToday:   d.Tasks.CompletedToday,
		GoalReachedToday: in.Streak.DailyGoal > 0 && d.Tasks.CompletedToday >= in.Streak.DailyGoal,
		AtRisk:           in.Streak.AtRisk(today),
		Band:             streak.BandFor(in.Streak.CurrentStreak),
	}
	if in.Streak.LastStreakDate != nil {
		d.Streak.LastStreakDate = in.Streak.LastStreakDate.Format(timeutil.DateLayout)
	}

	d.Achievements = summarizeAchievements(in.Catalog, in.Progress)

	categories := in.Snapshot.Categories()
	d.Categories = make([]CategoryStat, 0, len(categories))
	for _, c := range categories {
		d.Categories = append(d.Categories, CategoryStat{
			CategoryID:     c.CategoryID,
			Name:           c.Name,
			TotalTasks:     c.TotalTasks,
			CompletedTasks: c.CompletedTasks,
			CompletionRate: CompletionPercent(c.CompletedTasks, c.TotalTasks),
		})
	}
	if fav := Favorite(categories); fav != nil {
		d.Favorite = fav
		d.FavoriteVerdict = Classify(*fav)
	}

	d.Productivity = ProductivitySeries(in.Snapshot, today, in.Location, ProductivityWindowDays)
	d.WeeklyCompletionRate = WeeklyCompletionRate(d.Productivity)

	return d
}

func summarizeAchievements(catalog *achievement.Catalog, rows []achievement.Progress) AchievementSummary {
	if catalog == nil {
		return AchievementSummary{Items: []AchievementProgress{}}
	}

	byID := make(map[string]achievement.Progress, len(rows))
	for _, p := range rows {
		byID[p.AchievementID] = p
	}

	defs := catalog.All()
	out := AchievementSummary{Total: len(defs), Items: make([]AchievementProgress, 0, len(defs))}
	for _, def := range defs {
		p := byID[def.ID]
		if p.IsCompleted {
			out.Completed++
		}
		out.Items = append(out.Items, AchievementProgress{
			ID:          def.ID,
			Name:        def.Name,
			Description: def.Description,
			Icon:        def.Icon,
			Difficulty:  def.Difficulty,
			Color:       def.Color,
			Metric:      def.Type,
			Target:      def.TargetValue,
			Progress:    p.Progress,
			Percent:     p.Percent(def.TargetValue),
			IsCompleted: p.IsCompleted,
			UnlockedAt:  p.UnlockedAt,
		})
	}
	out.Percent = CompletionPercent(out.Completed, out.Total)
	return out
}

func locationOrUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
