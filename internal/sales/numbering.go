package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

// Sequencer allocates human-readable document numbers. Allocation is autonomous: a number handed
// out is never returned, even when the caller's transaction rolls back.
type Sequencer interface {
	Next(ctx context.Context, docType DocumentType, at time.Time) (string, error)
}

// FormatNumber renders PREFIX-YYYYMM-N.
func FormatNumber(prefix string, at time.Time, n int64) string {
	return fmt.Sprintf("%s-%s-%d", prefix, at.UTC().Format("200601"), n)
}

// RowQuerier is satisfied by *pgxpool.Pool.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGSequencer keeps one counter per type and month in document_sequences.
//
// Next is called while the document transaction holds a connection, so pool must not be the
// pool that serves document transactions: give it a small dedicated pool.
type PGSequencer struct {
	pool RowQuerier
}

// NewPGSequencer constructs PGSequencer.
func NewPGSequencer(pool RowQuerier) *PGSequencer {
	return &PGSequencer{pool: pool}
}

// Next runs as its own statement, outside any document transaction. ctx bounds pool acquisition.
func (s *PGSequencer) Next(ctx context.Context, docType DocumentType, at time.Time) (string, error) {
	tr, ok := docType.Traits()
	if !ok {
		return "", ErrUnknownType
	}
	period := at.UTC().Format("200601")
	var n int64
	err := s.pool.QueryRow(ctx, `INSERT INTO document_sequences (doc_type, period, last_value)
VALUES ($1, $2, $3)
ON CONFLICT (doc_type, period) DO UPDATE SET last_value = document_sequences.last_value + 1
RETURNING last_value`, string(docType), period, tr.SequenceBase).Scan(&n)
	if err != nil {
		return "", db.Classify(fmt.Errorf("sales: allocate number: %w", err))
	}
	return FormatNumber(tr.Prefix, at, n), nil
}
