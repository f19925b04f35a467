package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pgErr(code string) error {
	return fmt.Errorf("query: %w", &pgconn.PgError{Code: code, Message: "boom"})
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"deadlock", pgErr(CodeDeadlockDetected), true},
		{"serialization", pgErr(CodeSerializationFailure), true},
		{"lock timeout", pgErr(CodeLockNotAvailable), true},
		{"canceled statement", pgErr(CodeQueryCanceled), true},
		{"deadline", context.DeadlineExceeded, true},
		{"unique", pgErr(CodeUniqueViolation), false},
		{"foreign key", pgErr(CodeForeignKeyViolation), false},
		{"business", errors.New("sales: invalid state"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.err)
			assert.Equal(t, tc.retryable, IsRetryable(got))
			if tc.err != nil {
				assert.ErrorIs(t, got, tc.err)
			}
		})
	}
}

func TestClassifyKeepsPgError(t *testing.T) {
	err := Classify(pgErr(CodeDeadlockDetected))
	var pg *pgconn.PgError
	require.True(t, errors.As(err, &pg))
	assert.Equal(t, CodeDeadlockDetected, pg.Code)
	assert.True(t, IsDeadlock(err))
	assert.Equal(t, err, Classify(err))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(pgErr(CodeUniqueViolation)))
	assert.False(t, IsUniqueViolation(pgErr(CodeDeadlockDetected)))
	assert.False(t, IsUniqueViolation(errors.New("plain")))
}

func TestIsForeignKeyViolation(t *testing.T) {
	assert.True(t, IsForeignKeyViolation(pgErr(CodeForeignKeyViolation)))
	assert.False(t, IsForeignKeyViolation(pgErr(CodeUniqueViolation)))
	assert.False(t, IsForeignKeyViolation(nil))
}
