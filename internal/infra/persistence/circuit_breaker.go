package persistence

import (
	"context"
	"log/slog"
	"time"

	"github.com/spounge-ai/persistor/internal/domain"
	app_errors "github.com/spounge-ai/persistor/internal/errors"
	"github.com/spounge-ai/persistor/pkg/patterns/circuitbreaker"
)

// CircuitBreakerStore fails fast while the wrapped store keeps failing.
// All operations share one breaker so a dead backend trips every path.
type CircuitBreakerStore struct {
	store   domain.Store
	breaker *circuitbreaker.Breaker[any]
}

var _ domain.Store = (*CircuitBreakerStore)(nil)

func NewCircuitBreakerStore(store domain.Store, maxFailures int, resetTimeout time.Duration, logger *slog.Logger) *CircuitBreakerStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CircuitBreakerStore{
		store: store,
		breaker: circuitbreaker.New(maxFailures,
			circuitbreaker.WithResetTimeout[any](resetTimeout),
			circuitbreaker.WithStateChange[any](func(from, to circuitbreaker.State) {
				logger.Warn("storage circuit breaker changed state", "from", from.String(), "to", to.String())
			}),
		),
	}
}

// State exposes the breaker state for health reporting.
func (cb *CircuitBreakerStore) State() circuitbreaker.State {
	return cb.breaker.State()
}

func execute[T any](ctx context.Context, cb *CircuitBreakerStore, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	res, err := cb.breaker.Execute(ctx, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err == circuitbreaker.ErrOpen {
		var zero T
		return zero, app_errors.Storage(op, err)
	}
	out, _ := res.(T)
	return out, err
}

func (cb *CircuitBreakerStore) void(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := execute(ctx, cb, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func (cb *CircuitBreakerStore) Insert(ctx context.Context, collection string, doc domain.Document, opts domain.WriteOptions) error {
	return cb.void(ctx, "insert", func(ctx context.Context) error {
		return cb.store.Insert(ctx, collection, doc, opts)
	})
}

func (cb *CircuitBreakerStore) Upsert(ctx context.Context, collection string, id any, doc domain.Document, opts domain.WriteOptions) error {
	return cb.void(ctx, "upsert", func(ctx context.Context) error {
		return cb.store.Upsert(ctx, collection, id, doc, opts)
	})
}

func (cb *CircuitBreakerStore) Update(ctx context.Context, collection string, criteria domain.Matcher, objNew domain.Document, opts domain.UpdateOptions) (int64, error) {
	return execute(ctx, cb, "update", func(ctx context.Context) (int64, error) {
		return cb.store.Update(ctx, collection, criteria, objNew, opts)
	})
}

func (cb *CircuitBreakerStore) Query(ctx context.Context, collection string, q domain.Query) (domain.Cursor, error) {
	return execute(ctx, cb, "find", func(ctx context.Context) (domain.Cursor, error) {
		return cb.store.Query(ctx, collection, q)
	})
}

func (cb *CircuitBreakerStore) Count(ctx context.Context, collection string, matcher domain.Matcher) (int64, error) {
	return execute(ctx, cb, "count", func(ctx context.Context) (int64, error) {
		return cb.store.Count(ctx, collection, matcher)
	})
}

func (cb *CircuitBreakerStore) Remove(ctx context.Context, collection string, matcher domain.Matcher, opts domain.WriteOptions) (int64, error) {
	return execute(ctx, cb, "delete", func(ctx context.Context) (int64, error) {
		return cb.store.Remove(ctx, collection, matcher, opts)
	})
}

func (cb *CircuitBreakerStore) RunCommand(ctx context.Context, cmd domain.Command) (domain.Document, error) {
	return execute(ctx, cb, "command", func(ctx context.Context) (domain.Document, error) {
		return cb.store.RunCommand(ctx, cmd)
	})
}

func (cb *CircuitBreakerStore) Collections(ctx context.Context) ([]string, error) {
	return execute(ctx, cb, "getCollections", func(ctx context.Context) ([]string, error) {
		return cb.store.Collections(ctx)
	})
}

func (cb *CircuitBreakerStore) DropCollection(ctx context.Context, collection string) error {
	return cb.void(ctx, "dropCollection", func(ctx context.Context) error {
		return cb.store.DropCollection(ctx, collection)
	})
}

func (cb *CircuitBreakerStore) CollectionStats(ctx context.Context, collection string) (domain.Document, error) {
	return execute(ctx, cb, "collectionStats", func(ctx context.Context) (domain.Document, error) {
		return cb.store.CollectionStats(ctx, collection)
	})
}

// Ping bypasses the breaker so health checks can observe recovery.
func (cb *CircuitBreakerStore) Ping(ctx context.Context) error {
	return cb.store.Ping(ctx)
}

func (cb *CircuitBreakerStore) Close(ctx context.Context) error {
	return cb.store.Close(ctx)
}
