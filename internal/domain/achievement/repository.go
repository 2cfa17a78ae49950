package achievement

import (
	"context"
)

// ProgressStore persists Progress rows.
// Implementations must make UpsertProgress a monotonic guarded upsert so
// concurrent or retried writes for the same pair are idempotent.
type ProgressStore interface {
	// GetProgress returns nil, nil when no row exists.
	GetProgress(ctx context.Context, userID, achievementID string) (*Progress, error)

	// UpsertProgress merges p into the stored row (see Merge) and reports
	// whether this call performed the unlock transition.
	UpsertProgress(ctx context.Context, p Progress) (UpsertResult, error)

	// ListProgress returns every stored row for the user.
	ListProgress(ctx context.Context, userID string) ([]Progress, error)
}

// PriorityResolver maps priority ids to display labels.
type PriorityResolver interface {
	ResolvePriorityLabels(ctx context.Context, ids []int64) (map[int64]string, error)
}

// UnlockSink receives one event per unlock transition.
type UnlockSink interface {
	EmitUnlock(ctx context.Context, event UnlockEvent) error
}
