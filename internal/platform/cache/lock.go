package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLockBusy is returned when another process holds the key.
var ErrLockBusy = errors.New("platform/cache: lock busy")

// Locker hands out short-lived Redis locks keyed by business entity.
type Locker struct {
	client  *redislock.Client
	ttl     time.Duration
	wait    time.Duration
	backoff time.Duration
}

// LockerConfig tunes lock acquisition.
type LockerConfig struct {
	TTL  time.Duration
	Wait time.Duration
}

// NewLocker wraps a Redis client with redislock.
func NewLocker(client redis.UniversalClient, cfg LockerConfig) *Locker {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Locker{client: redislock.New(client), ttl: ttl, wait: cfg.Wait, backoff: 50 * time.Millisecond}
}

// Acquire obtains key, retrying for up to the configured wait. The returned func releases it.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	if l == nil || l.client == nil {
		return func() {}, nil
	}
	opts := &redislock.Options{}
	if l.wait > 0 {
		retries := int(l.wait / l.backoff)
		opts.RetryStrategy = redislock.LimitRetry(redislock.LinearBackoff(l.backoff), retries)
	}
	lock, err := l.client.Obtain(ctx, key, l.ttl, opts)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrLockBusy, key)
	}
	if err != nil {
		return nil, fmt.Errorf("platform/cache: obtain %s: %w", key, err)
	}
	return func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}, nil
}

// DocumentLockKey builds the Redis key guarding a sales document.
func DocumentLockKey(documentID int64) string {
	return fmt.Sprintf("sales:document:%d:lock", documentID)
}
