package achievement

import (
	"time"
)

// Progress is the persisted state of one (user, achievement) pair.
// Invariant: IsCompleted implies UnlockedAt != nil. Progress never
// decreases and IsCompleted never goes back to false.
type Progress struct {
	UserID        string
	AchievementID string
	Progress      int
	IsCompleted   bool
	UnlockedAt    *time.Time
	UpdatedAt     time.Time
}

// Merge applies the monotonic ratchet: the larger progress wins, completion
// is sticky and the first unlock timestamp is kept. A nil stored row means
// there was no prior record.
func Merge(stored *Progress, incoming Progress) Progress {
	if stored == nil {
		return incoming
	}

	out := *stored
	if incoming.Progress > out.Progress {
		out.Progress = incoming.Progress
	}
	if incoming.IsCompleted && !out.IsCompleted {
		out.IsCompleted = true
	}
	if out.UnlockedAt == nil && incoming.UnlockedAt != nil {
		t := *incoming.UnlockedAt
		out.UnlockedAt = &t
	}
	if incoming.UpdatedAt.After(out.UpdatedAt) {
		out.UpdatedAt = incoming.UpdatedAt
	}
	return out
}

// Percent returns progress toward target as 0..100.
func (p Progress) Percent(target int) int {
	if target <= 0 {
		return 0
	}
	if p.IsCompleted || p.Progress >= target {
		return 100
	}
	if p.Progress <= 0 {
		return 0
	}
	return p.Progress * 100 / target
}

// Result is what a single validation reports back.
type Result struct {
	AchievementID string
	WasUnlocked   bool
	Progress      int
	Err           error
}

// UpsertResult reports what a progress write did.
type UpsertResult struct {
	// Stored is the row after the write.
	Stored Progress
	// Unlocked is true only for the write that flipped IsCompleted to true.
	Unlocked bool
}

// UnlockEvent is handed to the UnlockSink once per transition.
type UnlockEvent struct {
	UserID        string
	AchievementID string
	UnlockedAt    time.Time

	// Descriptive fields copied from the catalog for downstream notifiers.
	Name     string
	Metric   MetricType
	Progress int
	Target   int
}
