package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func fail(ctx context.Context) (int, error)    { return 0, errBoom }
func succeed(ctx context.Context) (int, error) { return 42, nil }

func TestBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := New[int](2, WithResetTimeout[int](time.Hour))
	ctx := context.Background()

	_, err := cb.Execute(ctx, fail)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, StateClosed, cb.State())

	_, err = cb.Execute(ctx, fail)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, StateOpen, cb.State())

	_, err = cb.Execute(ctx, succeed)
	require.ErrorIs(t, err, ErrOpen)
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	cb := New[int](2)
	ctx := context.Background()

	_, _ = cb.Execute(ctx, fail)
	v, err := cb.Execute(ctx, succeed)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	_, _ = cb.Execute(ctx, fail)
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_HalfOpenProbeCloses(t *testing.T) {
	var transitions []State
	cb := New[int](1,
		WithResetTimeout[int](10*time.Millisecond),
		WithStateChange[int](func(from, to State) { transitions = append(transitions, to) }),
	)
	ctx := context.Background()

	_, _ = cb.Execute(ctx, fail)
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)

	_, err := cb.Execute(ctx, succeed)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}
