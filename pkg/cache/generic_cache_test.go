package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_SetGetTake(t *testing.T) {
	ctx := context.Background()
	c := New[string, int]()
	defer c.Stop()

	c.Set(ctx, "a", 1, 0)
	v, ok := c.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = c.Take(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get(ctx, "a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Count())
}

func TestCache_ExpiredItemsAreEvicted(t *testing.T) {
	ctx := context.Background()

	var mu sync.Mutex
	var evicted []string
	c := New[string, int](
		WithCleanupInterval[string, int](5*time.Millisecond),
		WithEvictionCallback[string, int](func(k string, _ int) {
			mu.Lock()
			defer mu.Unlock()
			evicted = append(evicted, k)
		}),
	)
	defer c.Stop()

	c.Set(ctx, "short", 1, 10*time.Millisecond)
	c.Set(ctx, "forever", 2, -1)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(evicted) == 1
	}, time.Second, 5*time.Millisecond)

	_, ok := c.Take(ctx, "short")
	assert.False(t, ok)

	v, ok := c.Get(ctx, "forever")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestCache_TakeDoesNotEvict(t *testing.T) {
	ctx := context.Background()
	calls := 0
	c := New[string, int](WithEvictionCallback[string, int](func(string, int) { calls++ }))
	defer c.Stop()

	c.Set(ctx, "a", 1, 0)
	c.Set(ctx, "b", 2, 0)

	_, _ = c.Take(ctx, "a")
	assert.Equal(t, 0, calls)

	c.Clear(ctx)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, c.Count())
}
