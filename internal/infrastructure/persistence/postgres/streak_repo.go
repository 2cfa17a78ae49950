package postgres

import (
	"context"
	"fmt"

	"github.com/captus-hub/captus-engine/internal/domain/shared"
	"github.com/captus-hub/captus-engine/internal/domain/streak"
	"github.com/captus-hub/captus-engine/pkg/retry"
	"github.com/captus-hub/captus-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK REPOSITORY
// Implements streak.Store. Writes are compare-and-set on the version column;
// best_streak is GREATEST-merged so it never goes down.
// ══════════════════════════════════════════════════════════════════════════════

// StreakRepository implements streak.Store for PostgreSQL.
type StreakRepository struct {
	conn    *Connection
	retrier *retry.Retrier
}

// NewStreakRepository creates a new StreakRepository.
func NewStreakRepository(conn *Connection) *StreakRepository {
	return &StreakRepository{conn: conn, retrier: newRetrier()}
}

// GetStreakState returns the stored state, or nil when the user has none.
func (r *StreakRepository) GetStreakState(ctx context.Context, userID string) (*streak.State, error) {
	query := `
		SELECT user_id, current_streak, best_streak, last_streak_date, daily_goal, updated_at, version
		FROM user_streaks
		WHERE user_id = $1
	`

	return retry.DoWithData(ctx, r.retrier, func(ctx context.Context) (*streak.State, error) {
		var s streak.State
		err := r.conn.QueryRow(ctx, query, userID).Scan(
			&s.UserID, &s.CurrentStreak, &s.BestStreak, &s.LastStreakDate, &s.DailyGoal, &s.UpdatedAt, &s.Version)
		if IsNoRows(err) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("get streak %s: %w", userID, err)
		}
		if s.LastStreakDate != nil {
			d := timeutil.CivilDate(*s.LastStreakDate)
			s.LastStreakDate = &d
		}
		return &s, nil
	})
}

// UpsertStreakState writes s if the stored version still equals s.Version.
// Version 0 means "no row yet".
func (r *StreakRepository) UpsertStreakState(ctx context.Context, s streak.State) error {
	var lastDate any
	if s.LastStreakDate != nil {
		lastDate = timeutil.CivilDate(*s.LastStreakDate)
	}

	return r.retrier.Do(ctx, func(ctx context.Context) error {
		var (
			affected int64
			err      error
		)
		if s.Version == 0 {
			tag, execErr := r.conn.Exec(ctx, `
				INSERT INTO user_streaks (user_id, current_streak, best_streak, last_streak_date, daily_goal, updated_at, version)
				VALUES ($1, $2, GREATEST($2, $3), $4, $5, $6, 1)
				ON CONFLICT (user_id) DO NOTHING
			`, s.UserID, s.CurrentStreak, s.BestStreak, lastDate, s.DailyGoal, s.UpdatedAt)
			affected, err = tag.RowsAffected(), execErr
		} else {
			tag, execErr := r.conn.Exec(ctx, `
				UPDATE user_streaks
				SET current_streak = $2,
					best_streak = GREATEST(best_streak, $3, $2),
					last_streak_date = $4,
					daily_goal = $5,
					updated_at = $6,
					version = version + 1
				WHERE user_id = $1 AND version = $7
			`, s.UserID, s.CurrentStreak, s.BestStreak, lastDate, s.DailyGoal, s.UpdatedAt, s.Version)
			affected, err = tag.RowsAffected(), execErr
		}
		if err != nil {
			return fmt.Errorf("upsert streak %s: %w", s.UserID, err)
		}
		if affected == 0 {
			return retry.Permanent(shared.ErrConcurrentUpdate)
		}
		return nil
	})
}
