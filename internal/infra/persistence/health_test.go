package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthMonitor_ReportsTransitions(t *testing.T) {
	store := NewMemoryStore(nil)
	var mu sync.Mutex
	var seen []bool
	hm := NewHealthMonitor(store, nil, func(healthy bool) {
		mu.Lock()
		seen = append(seen, healthy)
		mu.Unlock()
	})

	ctx := context.Background()
	assert.True(t, hm.Check(ctx))
	assert.True(t, hm.IsHealthy())

	require.NoError(t, store.Close(ctx))
	assert.False(t, hm.Check(ctx))
	assert.False(t, hm.IsHealthy())
	assert.Error(t, hm.LastError())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, seen)
}

func TestHealthMonitor_RunStopsWithContext(t *testing.T) {
	hm := NewHealthMonitor(NewMemoryStore(nil), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		hm.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
	assert.True(t, hm.IsHealthy())
}
