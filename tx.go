package hive

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ApiTxError carries the HTTP status a failed transaction maps to.
type ApiTxError struct {
	Code int
	Err  error
}

func (e *ApiTxError) Error() string {
	return e.Err.Error()
}

func (e *ApiTxError) Unwrap() error {
	return e.Err
}

type TxFunc func(ctx context.Context, tx pgx.Tx) error

// WithTransaction runs fn inside a transaction, committing only when fn
// returns nil.
func WithTransaction(ctx context.Context, pool *pgxpool.Pool, fn func(tx pgx.Tx) *ApiTxError) *ApiTxError {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return &ApiTxError{
			Code: http.StatusInternalServerError,
			Err:  fmt.Errorf("failed to begin transaction: %w", err),
		}
	}
	defer tx.Rollback(ctx) // no-op after commit

	if txErr := fn(tx); txErr != nil {
		return txErr
	}

	if err := tx.Commit(ctx); err != nil {
		return &ApiTxError{
			Code: http.StatusInternalServerError,
			Err:  fmt.Errorf("failed to commit transaction: %w", err),
		}
	}
	return nil
}

func valueOrNull[T any](ptr *T) any {
	if ptr == nil {
		return nil
	}
	return *ptr
}
