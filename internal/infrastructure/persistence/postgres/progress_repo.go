package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/captus-hub/captus-engine/internal/domain/achievement"
	"github.com/captus-hub/captus-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPOSITORY
// Implements achievement.ProgressStore. Every write is a ratchet:
// progress = GREATEST, is_completed = OR, unlocked_at = COALESCE. The unlock
// transition itself is a guarded statement whose affected row count decides
// UpsertResult.Unlocked, so two racing writers cannot both report it.
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements achievement.ProgressStore for PostgreSQL.
type ProgressRepository struct {
	conn    *Connection
	retrier *retry.Retrier
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection) *ProgressRepository {
	return &ProgressRepository{conn: conn, retrier: newRetrier()}
}

const progressColumns = `user_id, achievement_id, progress, is_completed, unlocked_at, updated_at`

func scanProgress(row pgx.Row) (achievement.Progress, error) {
	var p achievement.Progress
	err := row.Scan(&p.UserID, &p.AchievementID, &p.Progress, &p.IsCompleted, &p.UnlockedAt, &p.UpdatedAt)
	return p, err
}

// GetProgress returns the stored row, or nil when none exists.
func (r *ProgressRepository) GetProgress(ctx context.Context, userID, achievementID string) (*achievement.Progress, error) {
	query := `SELECT ` + progressColumns + ` FROM user_achievements WHERE user_id = $1 AND achievement_id = $2`

	return retry.DoWithData(ctx, r.retrier, func(ctx context.Context) (*achievement.Progress, error) {
		p, err := scanProgress(r.conn.QueryRow(ctx, query, userID, achievementID))
		if IsNoRows(err) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("get progress %s/%s: %w", userID, achievementID, err)
		}
		return &p, nil
	})
}

// ListProgress returns all rows for a user ordered by achievement id.
func (r *ProgressRepository) ListProgress(ctx context.Context, userID string) ([]achievement.Progress, error) {
	query := `SELECT ` + progressColumns + ` FROM user_achievements WHERE user_id = $1 ORDER BY achievement_id`

	return retry.DoWithData(ctx, r.retrier, func(ctx context.Context) ([]achievement.Progress, error) {
		rows, err := r.conn.Query(ctx, query, userID)
		if err != nil {
			return nil, fmt.Errorf("list progress %s: %w", userID, err)
		}
		defer rows.Close()

		var out []achievement.Progress
		for rows.Next() {
			p, err := scanProgress(rows)
			if err != nil {
				return nil, fmt.Errorf("scan progress: %w", err)
			}
			out = append(out, p)
		}
		return out, rows.Err()
	})
}

// UpsertProgress merges p into storage and reports whether this call
// completed the achievement.
func (r *ProgressRepository) UpsertProgress(ctx context.Context, p achievement.Progress) (achievement.UpsertResult, error) {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	if p.IsCompleted && p.UnlockedAt == nil {
		at := p.UpdatedAt
		p.UnlockedAt = &at
	}
	if !p.IsCompleted {
		p.UnlockedAt = nil
	}

	return retry.DoWithData(ctx, r.retrier, func(ctx context.Context) (achievement.UpsertResult, error) {
		var result achievement.UpsertResult
		err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
			var err error
			result, err = upsertProgressTx(ctx, tx, p)
			return err
		})
		if err != nil {
			return achievement.UpsertResult{}, fmt.Errorf("upsert progress %s/%s: %w", p.UserID, p.AchievementID, err)
		}
		return result, nil
	})
}

func upsertProgressTx(ctx context.Context, q Querier, p achievement.Progress) (achievement.UpsertResult, error) {
	tag, err := q.Exec(ctx, `
		INSERT INTO user_achievements (`+progressColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, achievement_id) DO NOTHING
	`, p.UserID, p.AchievementID, p.Progress, p.IsCompleted, p.UnlockedAt, p.UpdatedAt)
	if err != nil {
		return achievement.UpsertResult{}, err
	}
	if tag.RowsAffected() == 1 {
		return achievement.UpsertResult{Stored: p, Unlocked: p.IsCompleted}, nil
	}

	unlocked := false
	if p.IsCompleted {
		tag, err = q.Exec(ctx, `
			UPDATE user_achievements
			SET is_completed = TRUE,
				unlocked_at = COALESCE(unlocked_at, $3),
				progress = GREATEST(progress, $4),
				updated_at = $5
			WHERE user_id = $1 AND achievement_id = $2 AND NOT is_completed
		`, p.UserID, p.AchievementID, p.UnlockedAt, p.Progress, p.UpdatedAt)
		if err != nil {
			return achievement.UpsertResult{}, err
		}
		unlocked = tag.RowsAffected() == 1
	}

	stored, err := scanProgress(q.QueryRow(ctx, `
		UPDATE user_achievements
		SET progress = GREATEST(progress, $3),
			is_completed = is_completed OR $4,
			unlocked_at = COALESCE(unlocked_at, $5),
			updated_at = GREATEST(updated_at, $6)
		WHERE user_id = $1 AND achievement_id = $2
		RETURNING `+progressColumns,
		p.UserID, p.AchievementID, p.Progress, p.IsCompleted, p.UnlockedAt, p.UpdatedAt))
	if err != nil {
		return achievement.UpsertResult{}, err
	}

	return achievement.UpsertResult{Stored: stored, Unlocked: unlocked}, nil
}
