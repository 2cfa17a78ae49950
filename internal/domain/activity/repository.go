package activity

import (
	"context"
	"time"
)

// Source builds activity snapshots. The engine never mutates tasks or subtasks
// through it.
type Source interface {
	// Snapshot returns every task of the user with subtask counts filled in.
	// A user with no tasks yields an empty snapshot, not an error.
	Snapshot(ctx context.Context, userID string) (*Snapshot, error)
}

// CompletionCounter counts completed tasks in a time window without
// loading a full snapshot. Used by the daily streak check.
type CompletionCounter interface {
	// CountCompletedBetween counts tasks completed in [from, to).
	CountCompletedBetween(ctx context.Context, userID string, from, to time.Time) (int, error)
}

// UserLister pages through every user that owns at least one task.
// Keyset pagination: pass the last id of the previous page as after.
type UserLister interface {
	ListUserIDs(ctx context.Context, after string, limit int) ([]string, error)
}
