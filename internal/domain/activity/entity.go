// Package activity contains the read-only view of a user's tasks and subtasks
// that every engine calculation starts from.
// This is a pure domain layer with zero external dependencies.
package activity

import (
	"time"

	"github.com/captus-hub/captus-engine/pkg/timeutil"
)

// EventKind names the task/subtask mutation that triggered bookkeeping.
type EventKind string

const (
	EventTaskCompleted    EventKind = "task_completed"
	EventTaskCreated      EventKind = "task_created"
	EventSubtaskCreated   EventKind = "subtask_created"
	EventSubtaskCompleted EventKind = "subtask_completed"
	EventDailyCheck       EventKind = "daily_check"
)

// AllEventKinds lists every kind in a stable order.
var AllEventKinds = []EventKind{
	EventTaskCompleted,
	EventTaskCreated,
	EventSubtaskCreated,
	EventSubtaskCompleted,
	EventDailyCheck,
}

// IsValid checks the kind is one of the known kinds.
func (k EventKind) IsValid() bool {
	for _, known := range AllEventKinds {
		if k == known {
			return true
		}
	}
	return false
}

// String returns the string representation.
func (k EventKind) String() string {
	return string(k)
}

// SubtaskCounts summarizes the subtasks of one parent task.
type SubtaskCounts struct {
	Created   int
	Completed int
}

// Task is the engine's view of one task row.
// PriorityID and CategoryID are zero when the task has none.
type Task struct {
	ID           int64
	Completed    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DueDate      *time.Time
	PriorityID   int64
	CategoryID   int64
	CategoryName string
	Subtasks     SubtaskCounts
}

// HasDueDate reports whether a due timestamp is set.
func (t Task) HasDueDate() bool {
	return t.DueDate != nil && !t.DueDate.IsZero()
}

// HasSubtasks reports whether the task was ever split into subtasks.
func (t Task) HasSubtasks() bool {
	return t.Subtasks.Created > 0
}

// Snapshot is a point-in-time copy of a user's activity. It is assembled
// once per validation pass and shared by reference with every calculator.
type Snapshot struct {
	UserID  string
	Tasks   []Task
	TakenAt time.Time
}

// NewSnapshot creates a snapshot taken at the given time.
func NewSnapshot(userID string, tasks []Task, takenAt time.Time) *Snapshot {
	return &Snapshot{UserID: userID, Tasks: tasks, TakenAt: takenAt}
}

// IsEmpty reports whether the user has no tasks at all.
func (s *Snapshot) IsEmpty() bool {
	return s == nil || len(s.Tasks) == 0
}

// TotalCount returns the number of tasks, completed or not.
func (s *Snapshot) TotalCount() int {
	if s == nil {
		return 0
	}
	return len(s.Tasks)
}

// CompletedCount returns the number of completed tasks.
func (s *Snapshot) CompletedCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, t := range s.Tasks {
		if t.Completed {
			n++
		}
	}
	return n
}

// CompletedOn counts tasks completed on the given local calendar day.
// A completed task's UpdatedAt is its completion time.
func (s *Snapshot) CompletedOn(day time.Time, loc *time.Location) int {
	if s == nil {
		return 0
	}
	n := 0
	for _, t := range s.Tasks {
		if t.Completed && !t.UpdatedAt.IsZero() && timeutil.IsSameDay(t.UpdatedAt, day, loc) {
			n++
		}
	}
	return n
}

// CreatedOn counts tasks created on the given local calendar day.
func (s *Snapshot) CreatedOn(day time.Time, loc *time.Location) int {
	if s == nil {
		return 0
	}
	n := 0
	for _, t := range s.Tasks {
		if !t.CreatedAt.IsZero() && timeutil.IsSameDay(t.CreatedAt, day, loc) {
			n++
		}
	}
	return n
}

// CategoryActivity aggregates tasks per category.
type CategoryActivity struct {
	CategoryID     int64
	Name           string
	TotalTasks     int
	CompletedTasks int
}

// Categories aggregates the snapshot per category, in order of first
// appearance. Uncategorized tasks are skipped.
func (s *Snapshot) Categories() []CategoryActivity {
	if s == nil {
		return nil
	}

	index := make(map[int64]int)
	var out []CategoryActivity
	for _, t := range s.Tasks {
		if t.CategoryID == 0 {
			continue
		}
		i, ok := index[t.CategoryID]
		if !ok {
			i = len(out)
			index[t.CategoryID] = i
			out = append(out, CategoryActivity{CategoryID: t.CategoryID, Name: t.CategoryName})
		}
		out[i].TotalTasks++
		if t.Completed {
			out[i].CompletedTasks++
		}
	}
	return out
}

// PriorityIDs returns the distinct non-zero priority ids in first-seen order.
func (s *Snapshot) PriorityIDs() []int64 {
	if s == nil {
		return nil
	}
	seen := make(map[int64]struct{})
	var ids []int64
	for _, t := range s.Tasks {
		if t.PriorityID == 0 {
			continue
		}
		if _, ok := seen[t.PriorityID]; ok {
			continue
		}
		seen[t.PriorityID] = struct{}{}
		ids = append(ids, t.PriorityID)
	}
	return ids
}
