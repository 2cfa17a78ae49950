package statistics

import (
	"math"
	"time"

	"github.com/captus-hub/captus-engine/internal/domain/activity"
	"github.com/captus-hub/captus-engine/pkg/timeutil"
)

// ProductivityWindowDays is the length of the trailing productivity chart.
const ProductivityWindowDays = 7

// DayBucket is one point of the productivity chart.
type DayBucket struct {
	Date      string `json:"date"` // YYYY-MM-DD, local
	Day       string `json:"day"`  // Mon, Tue, ...
	Created   int    `json:"created"`
	Completed int    `json:"completed"`
}

// CompletionPercent returns completed/total*100 rounded half away from zero.
// A zero total yields 0.
func CompletionPercent(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}

// ProductivitySeries buckets created and completed tasks by local calendar day
// for the trailing window ending today (inclusive), oldest first.
func ProductivitySeries(s *activity.Snapshot, today time.Time, loc *time.Location, days int) []DayBucket {
	if days <= 0 {
		return nil
	}

	start := timeutil.AddDays(timeutil.StartOfDay(today, loc), -(days - 1), loc)
	buckets := make([]DayBucket, days)
	index := make(map[string]int, days)
	for i := 0; i < days; i++ {
		d := timeutil.AddDays(start, i, loc)
		key := timeutil.DayKey(d, loc)
		index[key] = i
		buckets[i] = DayBucket{Date: key, Day: timeutil.WeekdayShort(timeutil.LocalWeekday(d, loc))}
	}

	if s == nil {
		return buckets
	}
	for _, t := range s.Tasks {
		if !t.CreatedAt.IsZero() {
			if i, ok := index[timeutil.DayKey(t.CreatedAt, loc)]; ok {
				buckets[i].Created++
			}
		}
		if t.Completed && !t.UpdatedAt.IsZero() {
			if i, ok := index[timeutil.DayKey(t.UpdatedAt, loc)]; ok {
				buckets[i].Completed++
			}
		}
	}
	return buckets
}

// WeeklyCompletionRate is completed/created inside the series window, rounded.
// It can exceed 100 when older tasks are finished this week.
func WeeklyCompletionRate(series []DayBucket) int {
	created, completed := 0, 0
	for _, b := range series {
		created += b.Created
		completed += b.Completed
	}
	return CompletionPercent(completed, created)
}
