package db

import (
	"context"
	"time"
)

// RetryPolicy bounds Retry.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy replays a unit of work up to three times.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Backoff: 25 * time.Millisecond}

// Retry runs fn and replays it from the beginning when it fails with a deadlock or
// serialization conflict. Other errors, including lock-wait timeouts, are returned immediately.
// When attempts run out the last error is returned classified as ErrRetryable.
func Retry(ctx context.Context, policy RetryPolicy, fn func(context.Context) error) error {
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !IsDeadlock(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		wait := time.Duration(attempt) * policy.Backoff
		select {
		case <-ctx.Done():
			return Classify(err)
		case <-time.After(wait):
		}
	}
	return Classify(err)
}
