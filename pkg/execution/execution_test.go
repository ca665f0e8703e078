package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func TestWithRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	got, err := WithRetry(context.Background(), Policy{Attempts: 5, Initial: time.Millisecond, Max: 2 * time.Millisecond},
		func(context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, errFlaky
			}
			return 42, nil
		}, nil)
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_StopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := errors.New("permanent")
	_, err := WithRetry(context.Background(), Policy{Attempts: 5, Initial: time.Millisecond},
		func(context.Context) (int, error) {
			calls++
			return 0, permanent
		}, func(err error) bool { return !errors.Is(err, permanent) })
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_GivesUp(t *testing.T) {
	calls := 0
	_, err := WithRetry(context.Background(), Policy{Attempts: 3, Initial: time.Millisecond},
		func(context.Context) (struct{}, error) {
			calls++
			return struct{}{}, errFlaky
		}, nil)
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_HonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := WithRetry(ctx, Policy{Attempts: 3, Initial: time.Hour},
		func(context.Context) (int, error) { return 0, errFlaky }, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoff(t *testing.T) {
	p := Policy{Initial: 10 * time.Millisecond, Max: 25 * time.Millisecond}
	assert.GreaterOrEqual(t, Backoff(p, 0), 10*time.Millisecond)
	assert.Less(t, Backoff(p, 0), 12*time.Millisecond)
	assert.GreaterOrEqual(t, Backoff(p, 5), 25*time.Millisecond)
	assert.Equal(t, time.Duration(0), Backoff(Policy{}, 3))
}

func TestWithTimeout(t *testing.T) {
	_, err := WithTimeout(context.Background(), time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
