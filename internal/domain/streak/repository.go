package streak

import (
	"context"
)

// Store persists streak state. Implementations return nil, nil when the
// user has no row yet.
//
// UpsertStreakState is a compare-and-set on Version: it succeeds only when
// the stored version still equals s.Version (0 for a new row), and fails with
// shared.ErrConcurrentUpdate otherwise. BestStreak never decreases in storage.
type Store interface {
	GetStreakState(ctx context.Context, userID string) (*State, error)
	UpsertStreakState(ctx context.Context, s State) error
}
