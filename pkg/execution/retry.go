package execution

import (
	"context"
	"math/rand/v2"
	"time"
)

// Policy bounds a retry loop. Delays double from Initial up to Max.
type Policy struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

// RetryableFunc is one attempt of a retried operation.
type RetryableFunc[T any] func(ctx context.Context) (T, error)

// WithRetry calls fn until it succeeds, the attempts run out, ctx ends, or
// retryable reports the error as permanent. A nil retryable retries every error.
func WithRetry[T any](ctx context.Context, p Policy, fn RetryableFunc[T], retryable func(error) bool) (T, error) {
	var result T
	var err error
	attempts := max(p.Attempts, 1)

	for i := range attempts {
		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}
		if retryable != nil && !retryable(err) {
			return result, err
		}
		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(Backoff(p, i)):
		}
	}
	return result, err
}

// Backoff is the delay before retry number attempt (zero based), with up
// to ten percent jitter.
func Backoff(p Policy, attempt int) time.Duration {
	delay := p.Initial << attempt
	if delay <= 0 || (p.Max > 0 && delay > p.Max) {
		delay = p.Max
	}
	if delay <= 0 {
		return 0
	}
	return delay + rand.N(delay/10+1)
}
