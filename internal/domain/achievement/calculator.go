package achievement

import (
	"time"

	"github.com/captus-hub/captus-engine/internal/domain/activity"
	"github.com/captus-hub/captus-engine/internal/domain/shared"
	"github.com/captus-hub/captus-engine/pkg/timeutil"
)

// EarlyHourCutoff: a due time strictly before this local hour counts as early.
const EarlyHourCutoff = 9

// Inputs is everything a calculator may read. It is assembled once per
// validation pass; calculators never perform I/O.
type Inputs struct {
	Snapshot *activity.Snapshot

	// CurrentStreak is the persisted streak, read by the caller.
	CurrentStreak int

	// PriorityLabels maps priority ids found in the snapshot to their labels.
	PriorityLabels    map[int64]string
	HighPriorityLabel string

	// Location is the user's time zone for hour and calendar-day rules.
	// Nil means UTC.
	Location *time.Location
}

// Calculator turns inputs into a progress value for one metric.
type Calculator func(in Inputs) (int, error)

// calculators is indexed by MetricType.
var calculators = [...]Calculator{
	MetricCompletedTasks:    completedTasks,
	MetricHighPriorityTasks: highPriorityTasks,
	MetricSubtasksCreated:   subtasksCreated,
	MetricTasksCreated:      tasksCreated,
	MetricStreak:            currentStreak,
	MetricEarlyTasks:        earlyTasks,
	MetricSubtasksCompleted: subtasksCompleted,
	MetricTasksInDay:        tasksInDay,
	MetricSoloTasks:         soloTasks,
	MetricSundayTasks:       sundayTasks,
}

const (
	_ = uint(len(calculators) - int(metricTypeCount))
	_ = uint(int(metricTypeCount) - len(calculators))
)

// Calculate runs the calculator registered for metric.
func Calculate(metric MetricType, in Inputs) (int, error) {
	if !metric.IsValid() || calculators[metric] == nil {
		return 0, shared.ErrUnknownMetric
	}
	if in.Snapshot == nil && metric != MetricStreak {
		return 0, shared.ErrNilSnapshot
	}
	return calculators[metric](in)
}

func completedTasks(in Inputs) (int, error) {
	return in.Snapshot.CompletedCount(), nil
}

func highPriorityTasks(in Inputs) (int, error) {
	want := in.HighPriorityLabel
	if want == "" || len(in.PriorityLabels) == 0 {
		return 0, nil
	}
	n := 0
	for _, t := range in.Snapshot.Tasks {
		if t.PriorityID == 0 {
			continue
		}
		if label, ok := in.PriorityLabels[t.PriorityID]; ok && label == want {
			n++
		}
	}
	return n, nil
}

func subtasksCreated(in Inputs) (int, error) {
	sum := 0
	for _, t := range in.Snapshot.Tasks {
		if t.Subtasks.Created < 0 {
			return 0, shared.ErrNegativeSubtasks
		}
		sum += t.Subtasks.Created
	}
	return sum, nil
}

func tasksCreated(in Inputs) (int, error) {
	return in.Snapshot.TotalCount(), nil
}

func currentStreak(in Inputs) (int, error) {
	if in.CurrentStreak < 0 {
		return 0, nil
	}
	return in.CurrentStreak, nil
}

func earlyTasks(in Inputs) (int, error) {
	n := 0
	for _, t := range in.Snapshot.Tasks {
		if t.HasDueDate() && timeutil.LocalHour(*t.DueDate, in.Location) < EarlyHourCutoff {
			n++
		}
	}
	return n, nil
}

// subtasksCompleted is the best single parent task, not the sum.
func subtasksCompleted(in Inputs) (int, error) {
	best := 0
	for _, t := range in.Snapshot.Tasks {
		if t.Subtasks.Completed < 0 {
			return 0, shared.ErrNegativeSubtasks
		}
		if t.Subtasks.Completed > best {
			best = t.Subtasks.Completed
		}
	}
	return best, nil
}

// tasksInDay groups completions by the local day of UpdatedAt.
func tasksInDay(in Inputs) (int, error) {
	perDay := make(map[string]int)
	best := 0
	for _, t := range in.Snapshot.Tasks {
		// No completion timestamp means no day to credit.
		if !t.Completed || t.UpdatedAt.IsZero() {
			continue
		}
		key := timeutil.DayKey(t.UpdatedAt, in.Location)
		perDay[key]++
		if perDay[key] > best {
			best = perDay[key]
		}
	}
	return best, nil
}

func soloTasks(in Inputs) (int, error) {
	n := 0
	for _, t := range in.Snapshot.Tasks {
		if t.Completed && !t.HasSubtasks() {
			n++
		}
	}
	return n, nil
}

func sundayTasks(in Inputs) (int, error) {
	n := 0
	for _, t := range in.Snapshot.Tasks {
		if t.HasDueDate() && timeutil.LocalWeekday(*t.DueDate, in.Location) == time.Sunday {
			n++
		}
	}
	return n, nil
}
