package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingResolver struct {
	labels map[int64]string
	asked  [][]int64
	err    error
}

func (c *countingResolver) ResolvePriorityLabels(_ context.Context, ids []int64) (map[int64]string, error) {
	c.asked = append(c.asked, append([]int64(nil), ids...))
	if c.err != nil {
		return nil, c.err
	}
	out := map[int64]string{}
	for _, id := range ids {
		if l, ok := c.labels[id]; ok {
			out[id] = l
		}
	}
	return out, nil
}

func TestPriorityLabelCache_ServesFromMemory(t *testing.T) {
	inner := &countingResolver{labels: map[int64]string{1: "Baja", 3: "Alta"}}
	c := NewPriorityLabelCache(inner, 8, time.Minute)
	ctx := context.Background()

	got, err := c.ResolvePriorityLabels(ctx, []int64{1, 3})
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{1: "Baja", 3: "Alta"}, got)

	got, err = c.ResolvePriorityLabels(ctx, []int64{3, 9})
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{3: "Alta"}, got)

	require.Len(t, inner.asked, 2)
	assert.Equal(t, []int64{9}, inner.asked[1])
}

func TestPriorityLabelCache_Expiry(t *testing.T) {
	inner := &countingResolver{labels: map[int64]string{3: "Alta"}}
	c := NewPriorityLabelCache(inner, 0, time.Minute)
	now := time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := c.ResolvePriorityLabels(ctx, []int64{3})
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	_, err = c.ResolvePriorityLabels(ctx, []int64{3})
	require.NoError(t, err)

	assert.Len(t, inner.asked, 2)
}

func TestPriorityLabelCache_ErrorNotCached(t *testing.T) {
	inner := &countingResolver{labels: map[int64]string{3: "Alta"}, err: errors.New("db down")}
	c := NewPriorityLabelCache(inner, 8, time.Minute)

	_, err := c.ResolvePriorityLabels(context.Background(), []int64{3})
	assert.Error(t, err)

	inner.err = nil
	got, err := c.ResolvePriorityLabels(context.Background(), []int64{3})
	require.NoError(t, err)
	assert.Equal(t, "Alta", got[3])

	c.Purge()
	_, err = c.ResolvePriorityLabels(context.Background(), []int64{3})
	require.NoError(t, err)
	assert.Len(t, inner.asked, 3)
}
