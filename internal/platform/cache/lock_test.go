package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) *Locker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLocker(client, LockerConfig{TTL: time.Second})
}

func TestLockerExclusive(t *testing.T) {
	locker := newTestLocker(t)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, DocumentLockKey(7))
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, DocumentLockKey(7))
	require.ErrorIs(t, err, ErrLockBusy)

	other, err := locker.Acquire(ctx, DocumentLockKey(8))
	require.NoError(t, err)
	other()

	release()
	again, err := locker.Acquire(ctx, DocumentLockKey(7))
	require.NoError(t, err)
	again()
}

func TestNilLockerIsNoop(t *testing.T) {
	var locker *Locker
	release, err := locker.Acquire(context.Background(), "any")
	require.NoError(t, err)
	assert.NotPanics(t, release)
}
