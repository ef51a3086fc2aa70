package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgxQuerier is satisfied by both *pgxpool.Pool and pgx.Tx, enabling shared query helpers.
type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgxRowQuerier extends pgxQuerier with multi-row Query, used by helpers that scan lists.
type pgxRowQuerier interface {
	pgxQuerier
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// maxTxAttempts bounds retries of a transaction aborted by serialization failure or deadlock.
const maxTxAttempts = 3

// runInTx runs fn in a fresh transaction and commits it. When the store aborts the
// transaction for a retryable conflict the whole closure runs again, so fn must read
// everything it depends on through tx.
func runInTx(ctx context.Context, db txBeginner, fn func(tx pgx.Tx) error) error {
	for attempt := 1; ; attempt++ {
		err := runOnce(ctx, db, fn)
		if err == nil || attempt >= maxTxAttempts || !isRetryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
}

func runOnce(ctx context.Context, db txBeginner, fn func(tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
