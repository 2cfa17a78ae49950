// Package cache holds in-process caches in front of slow lookups.
package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/captus-hub/captus-engine/internal/domain/achievement"
)

const (
	defaultPriorityCacheSize = 256
	defaultPriorityCacheTTL  = 10 * time.Minute
)

type cachedLabel struct {
	label     string
	timestamp time.Time
}

// PriorityLabelCache is an achievement.PriorityResolver that remembers
// labels returned by the wrapped resolver. Priorities are a small, rarely
// edited table, so the same few ids are resolved on every pass.
type PriorityLabelCache struct {
	next   achievement.PriorityResolver
	cache  *lru.Cache
	expiry time.Duration
	now    func() time.Time
}

// NewPriorityLabelCache wraps next. size and expiry fall back to defaults
// when not positive.
func NewPriorityLabelCache(next achievement.PriorityResolver, size int, expiry time.Duration) *PriorityLabelCache {
	if size <= 0 {
		size = defaultPriorityCacheSize
	}
	if expiry <= 0 {
		expiry = defaultPriorityCacheTTL
	}
	c, _ := lru.New(size)
	return &PriorityLabelCache{next: next, cache: c, expiry: expiry, now: time.Now}
}

// ResolvePriorityLabels serves fresh entries from memory and asks the wrapped
// resolver only for the rest. A resolver error is returned as is and nothing
// from that call is cached.
func (p *PriorityLabelCache) ResolvePriorityLabels(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	var missing []int64

	now := p.now()
	for _, id := range ids {
		if cached, ok := p.cache.Get(id); ok {
			if c, ok := cached.(cachedLabel); ok && now.Sub(c.timestamp) < p.expiry {
				out[id] = c.label
				continue
			}
		}
		missing = append(missing, id)
	}

	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := p.next.ResolvePriorityLabels(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, label := range fetched {
		p.cache.Add(id, cachedLabel{label: label, timestamp: now})
		out[id] = label
	}
	return out, nil
}

// Purge drops every cached label.
func (p *PriorityLabelCache) Purge() {
	p.cache.Purge()
}
