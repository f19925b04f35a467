package db

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
)

// Beginner is satisfied by *pgxpool.Pool and pgx.Conn.
type Beginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// TxOptions controls how WithTx opens a transaction.
type TxOptions struct {
	// LockTimeout bounds every row-lock wait inside the transaction. Zero keeps the server default.
	LockTimeout time.Duration
}

// WithTx executes fn within a RepeatableRead transaction.
//
// Once the transaction has begun it runs on a context detached from the caller's cancellation:
// a started unit of work either commits or rolls back as a whole. Lock waits are bounded by
// LockTimeout instead, and surface through Classify as ErrRetryable.
func WithTx(ctx context.Context, db Beginner, opts TxOptions, fn func(context.Context, pgx.Tx) error) error {
	tx, err := db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return Classify(fmt.Errorf("platform/db: begin tx: %w", err))
	}
	txCtx := context.WithoutCancel(ctx)

	defer func() {
		_ = tx.Rollback(txCtx)
	}()

	if opts.LockTimeout > 0 {
		ms := strconv.FormatInt(opts.LockTimeout.Milliseconds(), 10) + "ms"
		if _, err := tx.Exec(txCtx, `SELECT set_config('lock_timeout', $1, true)`, ms); err != nil {
			return Classify(fmt.Errorf("platform/db: set lock timeout: %w", err))
		}
	}

	if err := fn(txCtx, tx); err != nil {
		return Classify(err)
	}

	if err := tx.Commit(txCtx); err != nil {
		return Classify(fmt.Errorf("platform/db: commit tx: %w", err))
	}

	return nil
}
