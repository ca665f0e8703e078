package concurrency

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdaptiveWorkerPool_RunsAllJobs(t *testing.T) {
	pool := NewAdaptiveWorkerPool(2, 8, 16)

	var ran atomic.Int64
	for i := 0; i < 100; i++ {
		require.NoError(t, pool.Submit(func() { ran.Add(1) }))
	}
	pool.Shutdown()

	assert.Equal(t, int64(100), ran.Load())
}

func TestAdaptiveWorkerPool_RejectsAfterShutdown(t *testing.T) {
	pool := NewAdaptiveWorkerPool(1, 1, 1)
	pool.Shutdown()

	err := pool.Submit(func() {})
	require.ErrorIs(t, err, ErrPoolClosed)

	// Shutdown is idempotent.
	pool.Shutdown()
}

func TestAdaptiveWorkerPool_NormalizesBounds(t *testing.T) {
	pool := NewAdaptiveWorkerPool(0, -1, -5)
	defer pool.Shutdown()

	assert.Equal(t, 1, pool.Workers())
}
