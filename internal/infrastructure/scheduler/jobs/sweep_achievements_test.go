package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/captus-hub/captus-engine/internal/domain/achievement"
	"github.com/captus-hub/captus-engine/pkg/logger"
)

type pagedUsers struct {
	ids   []string
	err   error
	pages int
}

func (p *pagedUsers) ListUserIDs(_ context.Context, after string, limit int) ([]string, error) {
	p.pages++
	if p.err != nil {
		return nil, p.err
	}
	i := sort.SearchStrings(p.ids, after)
	if i < len(p.ids) && p.ids[i] == after {
		i++
	}
	end := i + limit
	if end > len(p.ids) {
		end = len(p.ids)
	}
	return p.ids[i:end], nil
}

type recomputer struct {
	mu       sync.Mutex
	seen     map[string]int
	fail     map[string]bool
	inFlight atomic.Int32
	peak     atomic.Int32
}

func newRecomputer() *recomputer {
	return &recomputer{seen: map[string]int{}, fail: map[string]bool{}}
}

func (r *recomputer) Recompute(_ context.Context, userID string) ([]achievement.Result, error) {
	n := r.inFlight.Add(1)
	defer r.inFlight.Add(-1)
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)

	r.mu.Lock()
	r.seen[userID]++
	fail := r.fail[userID]
	r.mu.Unlock()

	if fail {
		return nil, errors.New("snapshot unavailable")
	}
	return []achievement.Result{
		{AchievementID: "first_task", WasUnlocked: true, Progress: 1},
		{AchievementID: "tasks_10", Progress: 4},
	}, nil
}

type gate bool

func (g gate) Enabled(string, string) bool { return bool(g) }

func userIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("u-%03d", i)
	}
	return ids
}

func TestSweep_VisitsEveryUserOnceAcrossPages(t *testing.T) {
	users := &pagedUsers{ids: userIDs(25)}
	rec := newRecomputer()
	job := NewSweepAchievementsJob(users, rec, gate(true), logger.Discard(),
		SweepAchievementsConfig{Concurrency: 3, PageSize: 10})

	require.NoError(t, job.Run(context.Background()))

	assert.Len(t, rec.seen, 25)
	for id, n := range rec.seen {
		assert.Equal(t, 1, n, id)
	}
	assert.Equal(t, 3, users.pages)
	assert.LessOrEqual(t, rec.peak.Load(), int32(3))

	stats := job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 25, stats.Users)
	assert.Equal(t, 25, stats.Unlocked)
	assert.Zero(t, stats.Failed)
}

func TestSweep_ToleratesMinorityFailures(t *testing.T) {
	rec := newRecomputer()
	rec.fail["u-000"] = true
	rec.fail["u-001"] = true
	job := NewSweepAchievementsJob(&pagedUsers{ids: userIDs(10)}, rec, nil, logger.Discard(), SweepAchievementsConfig{})

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 2, job.LastStats().Failed)
}

func TestSweep_FailsWhenMostUsersFail(t *testing.T) {
	rec := newRecomputer()
	for _, id := range userIDs(4)[:3] {
		rec.fail[id] = true
	}
	job := NewSweepAchievementsJob(&pagedUsers{ids: userIDs(4)}, rec, nil, logger.Discard(), SweepAchievementsConfig{})

	err := job.Run(context.Background())
	assert.ErrorContains(t, err, "3 of 4")
}

func TestSweep_ListErrorAborts(t *testing.T) {
	job := NewSweepAchievementsJob(&pagedUsers{err: errors.New("db down")}, newRecomputer(), nil, logger.Discard(), SweepAchievementsConfig{})
	assert.ErrorContains(t, job.Run(context.Background()), "db down")
}

func TestSweep_DisabledByFlag(t *testing.T) {
	users := &pagedUsers{ids: userIDs(3)}
	rec := newRecomputer()
	job := NewSweepAchievementsJob(users, rec, gate(false), logger.Discard(), SweepAchievementsConfig{})

	require.NoError(t, job.Run(context.Background()))
	assert.Zero(t, users.pages)
	assert.Empty(t, rec.seen)
	assert.True(t, job.LastStats().Skipped)
}

func TestSweep_EmptyPageStops(t *testing.T) {
	users := &pagedUsers{ids: userIDs(10)}
	job := NewSweepAchievementsJob(users, newRecomputer(), nil, logger.Discard(), SweepAchievementsConfig{PageSize: 5})

	require.NoError(t, job.Run(context.Background()))
	// Two full pages then an empty one.
	assert.Equal(t, 3, users.pages)
}
