package postgres

import (
	"context"
	"fmt"

	"github.com/captus-hub/captus-engine/pkg/retry"
)

// PriorityRepository resolves priority ids to their labels.
// Implements achievement.PriorityResolver.
type PriorityRepository struct {
	conn    *Connection
	retrier *retry.Retrier
}

// NewPriorityRepository creates a new PriorityRepository.
func NewPriorityRepository(conn *Connection) *PriorityRepository {
	return &PriorityRepository{conn: conn, retrier: newRetrier()}
}

// ResolvePriorityLabels returns labels for the known ids. Unknown ids are
// simply absent from the result.
func (r *PriorityRepository) ResolvePriorityLabels(ctx context.Context, ids []int64) (map[int64]string, error) {
	if len(ids) == 0 {
		return map[int64]string{}, nil
	}

	return retry.DoWithData(ctx, r.retrier, func(ctx context.Context) (map[int64]string, error) {
		rows, err := r.conn.Query(ctx, `SELECT id, name FROM priorities WHERE id = ANY($1)`, ids)
		if err != nil {
			return nil, fmt.Errorf("resolve priorities: %w", err)
		}
		defer rows.Close()

		labels := make(map[int64]string, len(ids))
		for rows.Next() {
			var id int64
			var name string
			if err := rows.Scan(&id, &name); err != nil {
				return nil, fmt.Errorf("scan priority: %w", err)
			}
			labels[id] = name
		}
		return labels, rows.Err()
	})
}
