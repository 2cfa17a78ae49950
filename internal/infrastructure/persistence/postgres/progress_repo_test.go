package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/captus-hub/captus-engine/internal/domain/achievement"
)

type statement struct {
	sql  string
	args []any
}

// scriptedQuerier answers Exec with the queued command tags and QueryRow
// with a fixed progress row, recording every statement.
type scriptedQuerier struct {
	tags  []string
	row   achievement.Progress
	calls []statement
}

func (q *scriptedQuerier) record(sql string, args []any) {
	q.calls = append(q.calls, statement{sql: strings.Join(strings.Fields(sql), " "), args: args})
}

func (q *scriptedQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.record(sql, args)
	if len(q.tags) == 0 {
		return pgconn.CommandTag{}, errors.New("unexpected Exec")
	}
	tag := q.tags[0]
	q.tags = q.tags[1:]
	return pgconn.NewCommandTag(tag), nil
}

func (q *scriptedQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("unexpected Query")
}

func (q *scriptedQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.record(sql, args)
	return progressRow(q.row)
}

type progressRow achievement.Progress

func (r progressRow) Scan(dest ...any) error {
	if len(dest) != 6 {
		return fmt.Errorf("scan: want 6 columns, got %d", len(dest))
	}
	*dest[0].(*string) = r.UserID
	*dest[1].(*string) = r.AchievementID
	*dest[2].(*int) = r.Progress
	*dest[3].(*bool) = r.IsCompleted
	*dest[4].(**time.Time) = r.UnlockedAt
	*dest[5].(*time.Time) = r.UpdatedAt
	return nil
}

func completedProgress() achievement.Progress {
	at := time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC)
	return achievement.Progress{
		UserID:        "u-1",
		AchievementID: "first_task",
		Progress:      1,
		IsCompleted:   true,
		UnlockedAt:    &at,
		UpdatedAt:     at,
	}
}

func TestUpsertProgressTx_FirstInsertUnlocks(t *testing.T) {
	p := completedProgress()
	q := &scriptedQuerier{tags: []string{"INSERT 0 1"}}

	res, err := upsertProgressTx(context.Background(), q, p)
	require.NoError(t, err)

	assert.True(t, res.Unlocked)
	assert.Equal(t, p, res.Stored)
	require.Len(t, q.calls, 1)
	assert.Contains(t, q.calls[0].sql, "ON CONFLICT (user_id, achievement_id) DO NOTHING")
	assert.Equal(t, []any{p.UserID, p.AchievementID, p.Progress, p.IsCompleted, p.UnlockedAt, p.UpdatedAt}, q.calls[0].args)
}

func TestUpsertProgressTx_GuardedUnlockOnExistingRow(t *testing.T) {
	p := completedProgress()
	q := &scriptedQuerier{tags: []string{"INSERT 0 0", "UPDATE 1"}, row: p}

	res, err := upsertProgressTx(context.Background(), q, p)
	require.NoError(t, err)
	assert.True(t, res.Unlocked)
	require.Len(t, q.calls, 3)

	guard := q.calls[1]
	assert.Contains(t, guard.sql, "SET is_completed = TRUE")
	assert.Contains(t, guard.sql, "unlocked_at = COALESCE(unlocked_at, $3)")
	assert.Contains(t, guard.sql, "progress = GREATEST(progress, $4)")
	assert.Contains(t, guard.sql, "WHERE user_id = $1 AND achievement_id = $2 AND NOT is_completed")
	assert.Equal(t, []any{p.UserID, p.AchievementID, p.UnlockedAt, p.Progress, p.UpdatedAt}, guard.args)

	ratchet := q.calls[2]
	assert.Contains(t, ratchet.sql, "progress = GREATEST(progress, $3)")
	assert.Contains(t, ratchet.sql, "is_completed = is_completed OR $4")
	assert.Contains(t, ratchet.sql, "unlocked_at = COALESCE(unlocked_at, $5)")
	assert.Contains(t, ratchet.sql, "updated_at = GREATEST(updated_at, $6)")
	assert.Contains(t, ratchet.sql, "RETURNING "+progressColumns)
	assert.Equal(t, []any{p.UserID, p.AchievementID, p.Progress, p.IsCompleted, p.UnlockedAt, p.UpdatedAt}, ratchet.args)
}

func TestUpsertProgressTx_LosingWriterDoesNotUnlock(t *testing.T) {
	p := completedProgress()
	earlier := p.UpdatedAt.Add(-time.Hour)
	stored := p
	stored.Progress = 4
	stored.UnlockedAt = &earlier
	q := &scriptedQuerier{tags: []string{"INSERT 0 0", "UPDATE 0"}, row: stored}

	res, err := upsertProgressTx(context.Background(), q, p)
	require.NoError(t, err)

	assert.False(t, res.Unlocked)
	assert.Equal(t, 4, res.Stored.Progress)
	assert.Equal(t, earlier, *res.Stored.UnlockedAt)
}

func TestUpsertProgressTx_PartialProgressSkipsGuard(t *testing.T) {
	p := completedProgress()
	p.IsCompleted = false
	p.UnlockedAt = nil
	q := &scriptedQuerier{tags: []string{"INSERT 0 0"}, row: p}

	res, err := upsertProgressTx(context.Background(), q, p)
	require.NoError(t, err)

	assert.False(t, res.Unlocked)
	require.Len(t, q.calls, 2)
	assert.Contains(t, q.calls[1].sql, "RETURNING")
}
