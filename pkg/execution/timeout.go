package execution

import (
	"context"
	"time"
)

// WithTimeout runs fn with a context that ends after timeout. fn is
// expected to honor the context.
func WithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}
