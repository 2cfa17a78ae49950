package command

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/captus-hub/captus-engine/internal/domain/achievement"
	"github.com/captus-hub/captus-engine/internal/domain/activity"
	"github.com/captus-hub/captus-engine/internal/domain/shared"
	"github.com/captus-hub/captus-engine/internal/domain/streak"
)

var errDown = errors.New("connection refused")

// memProgress is a ProgressStore with the same ratchet semantics as the
// postgres repository.
type memProgress struct {
	mu       sync.Mutex
	rows     map[string]achievement.Progress
	readErr  error
	writeErr map[string]error
	upserts  int
}

func newMemProgress() *memProgress {
	return &memProgress{rows: make(map[string]achievement.Progress), writeErr: make(map[string]error)}
}

func (m *memProgress) key(userID, id string) string { return userID + "/" + id }

func (m *memProgress) GetProgress(_ context.Context, userID, id string) (*achievement.Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	p, ok := m.rows[m.key(userID, id)]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memProgress) UpsertProgress(_ context.Context, p achievement.Progress) (achievement.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.writeErr[p.AchievementID]; err != nil {
		return achievement.UpsertResult{}, err
	}
	m.upserts++

	k := m.key(p.UserID, p.AchievementID)
	var stored *achievement.Progress
	if cur, ok := m.rows[k]; ok {
		stored = &cur
	}
	wasCompleted := stored != nil && stored.IsCompleted
	merged := achievement.Merge(stored, p)
	m.rows[k] = merged
	return achievement.UpsertResult{Stored: merged, Unlocked: merged.IsCompleted && !wasCompleted}, nil
}

func (m *memProgress) ListProgress(_ context.Context, userID string) ([]achievement.Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []achievement.Progress
	for _, p := range m.rows {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memProgress) row(userID, id string) (achievement.Progress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[m.key(userID, id)]
	return p, ok
}

// memStreaks is a compare-and-set streak store.
type memStreaks struct {
	mu        sync.Mutex
	rows      map[string]streak.State
	readErr   error
	conflicts int // next N upserts fail with a conflict
	upserts   int
}

func newMemStreaks() *memStreaks {
	return &memStreaks{rows: make(map[string]streak.State)}
}

func (m *memStreaks) GetStreakState(_ context.Context, userID string) (*streak.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	s, ok := m.rows[userID]
	if !ok {
		return nil, nil
	}
	s = s.Clone()
	return &s, nil
}

func (m *memStreaks) UpsertStreakState(_ context.Context, s streak.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflicts > 0 {
		m.conflicts--
		return shared.ErrConcurrentUpdate
	}
	cur, ok := m.rows[s.UserID]
	if (ok && cur.Version != s.Version) || (!ok && s.Version != 0) {
		return shared.ErrConcurrentUpdate
	}
	if ok && cur.BestStreak > s.BestStreak {
		s.BestStreak = cur.BestStreak
	}
	s = s.Clone()
	s.Version++
	m.rows[s.UserID] = s
	m.upserts++
	return nil
}

type fakeSource struct {
	snapshot *activity.Snapshot
	err      error
	calls    int
	mu       sync.Mutex
}

func (f *fakeSource) Snapshot(_ context.Context, userID string) (*activity.Snapshot, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshot, nil
}

type fakeCounter struct {
	n    int
	err  error
	from time.Time
	to   time.Time
}

func (f *fakeCounter) CountCompletedBetween(_ context.Context, _ string, from, to time.Time) (int, error) {
	f.from, f.to = from, to
	return f.n, f.err
}

type fakeResolver struct {
	labels map[int64]string
	err    error
	calls  int
}

func (f *fakeResolver) ResolvePriorityLabels(_ context.Context, ids []int64) (map[int64]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[int64]string, len(ids))
	for _, id := range ids {
		if l, ok := f.labels[id]; ok {
			out[id] = l
		}
	}
	return out, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []achievement.UnlockEvent
	err    error
}

func (r *recordingSink) EmitUnlock(_ context.Context, e achievement.UnlockEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingSink) count(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.AchievementID == id {
			n++
		}
	}
	return n
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (r *recordingPublisher) Publish(e shared.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) types() []shared.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]shared.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.EventType()
	}
	return out
}
