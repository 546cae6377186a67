package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/avelichko/kidlearn/internal/apperrors"
)

// DBTX is the common surface of pgxpool.Pool and pgx.Tx, so every repo
// works the same inside and outside a transaction
type DBTX interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// wrapDBErr marks unexpected database errors as transient so callers can
// map them to a retryable outcome instead of a credential error
func wrapDBErr(err error) error {
	return fmt.Errorf("db error: %w", errors.Join(apperrors.ErrUnavailable, err))
}
