package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spounge-ai/persistor/pkg/execution"
	"github.com/spounge-ai/persistor/pkg/postgres"
)

var txRetryPolicy = execution.Policy{
	Attempts: 5,
	Initial:  10 * time.Millisecond,
	Max:      250 * time.Millisecond,
}

// TransactionManager runs read-modify-write work in serializable
// transactions, retrying when Postgres aborts one on a serialization conflict.
type TransactionManager[T any] struct {
	logger *slog.Logger
}

func NewTransactionManager[T any](logger *slog.Logger) *TransactionManager[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransactionManager[T]{logger: logger}
}

// Execute runs fn inside a transaction and commits it. fn may be invoked
// more than once and must not keep side effects outside the transaction.
func (tm *TransactionManager[T]) Execute(ctx context.Context, db *pgxpool.Pool, fn func(context.Context, pgx.Tx) (T, error)) (T, error) {
	attempt := 0
	result, err := execution.WithRetry(ctx, txRetryPolicy, func(ctx context.Context) (T, error) {
		attempt++
		return tm.attempt(ctx, db, fn)
	}, func(err error) bool {
		if !postgres.IsSerializationFailure(err) {
			return false
		}
		tm.logger.WarnContext(ctx, "serialization conflict, retrying transaction", "attempt", attempt, "max_attempts", txRetryPolicy.Attempts)
		return true
	})
	if err != nil && postgres.IsSerializationFailure(err) {
		return result, fmt.Errorf("transaction failed after %d attempts: %w", attempt, err)
	}
	return result, err
}

func (tm *TransactionManager[T]) attempt(ctx context.Context, db *pgxpool.Pool, fn func(context.Context, pgx.Tx) (T, error)) (T, error) {
	var zero T
	tx, err := db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	result, err := fn(ctx, tx)
	if err != nil {
		return zero, err
	}
	if err := tx.Commit(ctx); err != nil {
		return zero, err
	}
	return result, nil
}
