package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/captus-hub/captus-engine/internal/domain/activity"
	"github.com/captus-hub/captus-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY REPOSITORY
// Read-only view over the task application's tables. Implements
// activity.Source, activity.CompletionCounter and activity.UserLister.
// ══════════════════════════════════════════════════════════════════════════════

// ActivityRepository reads task activity from PostgreSQL.
type ActivityRepository struct {
	conn    *Connection
	retrier *retry.Retrier
	now     func() time.Time
}

// NewActivityRepository creates a new ActivityRepository.
func NewActivityRepository(conn *Connection) *ActivityRepository {
	return &ActivityRepository{conn: conn, retrier: newRetrier(), now: time.Now}
}

// Snapshot loads every task of the user with its category name and
// subtask counters in one round trip.
func (r *ActivityRepository) Snapshot(ctx context.Context, userID string) (*activity.Snapshot, error) {
	query := `
		SELECT
			t.id,
			t.completed,
			t.created_at,
			t.updated_at,
			t.due_date,
			COALESCE(t.priority_id, 0),
			COALESCE(t.category_id, 0),
			COALESCE(c.name, ''),
			COALESCE(s.created, 0),
			COALESCE(s.completed, 0)
		FROM tasks t
		LEFT JOIN categories c ON c.id = t.category_id
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS created, COUNT(*) FILTER (WHERE st.completed) AS completed
			FROM subtasks st
			WHERE st.task_id = t.id
		) s ON TRUE
		WHERE t.user_id = $1
		ORDER BY t.id
	`

	return retry.DoWithData(ctx, r.retrier, func(ctx context.Context) (*activity.Snapshot, error) {
		rows, err := r.conn.Query(ctx, query, userID)
		if err != nil {
			return nil, fmt.Errorf("load snapshot %s: %w", userID, err)
		}
		defer rows.Close()

		var tasks []activity.Task
		for rows.Next() {
			var t activity.Task
			if err := rows.Scan(
				&t.ID,
				&t.Completed,
				&t.CreatedAt,
				&t.UpdatedAt,
				&t.DueDate,
				&t.PriorityID,
				&t.CategoryID,
				&t.CategoryName,
				&t.Subtasks.Created,
				&t.Subtasks.Completed,
			); err != nil {
				return nil, fmt.Errorf("scan task: %w", err)
			}
			tasks = append(tasks, t)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate tasks: %w", err)
		}

		return activity.NewSnapshot(userID, tasks, r.now().UTC()), nil
	})
}

// CountCompletedBetween counts tasks completed in [from, to).
func (r *ActivityRepository) CountCompletedBetween(ctx context.Context, userID string, from, to time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM tasks
		WHERE user_id = $1 AND completed AND updated_at >= $2 AND updated_at < $3
	`

	return retry.DoWithData(ctx, r.retrier, func(ctx context.Context) (int, error) {
		var n int
		if err := r.conn.QueryRow(ctx, query, userID, from, to).Scan(&n); err != nil {
			return 0, fmt.Errorf("count completed %s: %w", userID, err)
		}
		return n, nil
	})
}

// ListUserIDs pages through users that have at least one task, ordered by
// id. after is exclusive; "" starts from the beginning.
func (r *ActivityRepository) ListUserIDs(ctx context.Context, after string, limit int) ([]string, error) {
	query := `
		SELECT DISTINCT user_id
		FROM tasks
		WHERE user_id > $1
		ORDER BY user_id
		LIMIT $2
	`

	return retry.DoWithData(ctx, r.retrier, func(ctx context.Context) ([]string, error) {
		rows, err := r.conn.Query(ctx, query, after, limit)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		defer rows.Close()

		ids := make([]string, 0, limit)
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return nil, fmt.Errorf("scan user id: %w", err)
			}
			ids = append(ids, id)
		}
		return ids, rows.Err()
	})
}
