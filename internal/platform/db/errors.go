package db

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrRetryable marks transient failures the caller may retry unchanged: lock-wait timeouts,
// deadlocks, serialization failures and lost connections.
var ErrRetryable = errors.New("platform/db: transient failure, retry")

// PostgreSQL error codes handled by the platform layer.
const (
	CodeForeignKeyViolation  = "23503"
	CodeUniqueViolation      = "23505"
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
	CodeLockNotAvailable     = "55P03"
	CodeQueryCanceled        = "57014"
	CodeAdminShutdown        = "57P01"
)

// Classify wraps transient database failures with ErrRetryable and returns every other error
// untouched. Errors already classified are returned as is.
func Classify(err error) error {
	if err == nil || errors.Is(err, ErrRetryable) {
		return err
	}
	if isTransient(err) {
		return fmt.Errorf("%w: %w", ErrRetryable, err)
	}
	return err
}

// IsRetryable reports whether err was classified as transient.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetryable)
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	return pgCode(err) == CodeUniqueViolation
}

// IsForeignKeyViolation reports whether err is a foreign key violation.
func IsForeignKeyViolation(err error) bool {
	return pgCode(err) == CodeForeignKeyViolation
}

// IsDeadlock reports whether err was raised by the deadlock detector or a serialization
// conflict; both are safe to replay from the beginning.
func IsDeadlock(err error) bool {
	code := pgCode(err)
	return code == CodeDeadlockDetected || code == CodeSerializationFailure
}

func isTransient(err error) bool {
	switch pgCode(err) {
	case CodeSerializationFailure, CodeDeadlockDetected, CodeLockNotAvailable, CodeQueryCanceled, CodeAdminShutdown:
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connectErr *pgconn.ConnectError
	return errors.As(err, &connectErr)
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
