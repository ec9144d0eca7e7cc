package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdmflow/pkg/logger"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisLock_SingleInstance(t *testing.T) {
	_, client := newClient(t)
	l := NewRedisLock(client, "test-lock", Options{}, logger.NewNop())
	ctx := context.Background()

	acquired, err := l.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.True(t, l.IsHeld())

	require.NoError(t, l.Unlock(ctx))
	assert.False(t, l.IsHeld())

	// a released lock can be taken again
	acquired, err = l.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)
	require.NoError(t, l.Unlock(ctx))
}

func TestRedisLock_MutualExclusion(t *testing.T) {
	_, client := newClient(t)
	l1 := ForExperiment(client, "exp-a", logger.NewNop())
	l2 := ForExperiment(client, "exp-a", logger.NewNop())
	other := ForExperiment(client, "exp-b", logger.NewNop())
	ctx := context.Background()

	acquired, err := l1.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = l2.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, acquired, "second instance must not acquire")

	acquired, err = other.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired, "different experiment is independent")

	require.NoError(t, l1.Unlock(ctx))
	acquired, err = l2.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)

	require.NoError(t, l2.Unlock(ctx))
	require.NoError(t, other.Unlock(ctx))
}

func TestRedisLock_Expires(t *testing.T) {
	mr, client := newClient(t)
	l1 := NewRedisLock(client, "test-expire", Options{TTL: time.Minute}, logger.NewNop())
	l2 := NewRedisLock(client, "test-expire", Options{TTL: time.Minute}, logger.NewNop())
	ctx := context.Background()

	acquired, err := l1.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)

	mr.FastForward(time.Minute + time.Second)

	acquired, err = l2.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired, "lock should be free after TTL")

	// l1 no longer owns the key; its unlock must not delete l2's lock
	require.NoError(t, l1.Unlock(ctx))
	assert.True(t, mr.Exists("test-expire"))
	require.NoError(t, l2.Unlock(ctx))
	assert.False(t, mr.Exists("test-expire"))
}

func TestRedisLock_Renews(t *testing.T) {
	mr, client := newClient(t)
	l := NewRedisLock(client, "test-renew", Options{TTL: 300 * time.Millisecond, RenewInterval: 50 * time.Millisecond}, logger.NewNop())
	ctx := context.Background()

	acquired, err := l.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	// renewals push the TTL back up to the full 300ms
	assert.Eventually(t, func() bool {
		return mr.TTL("test-renew") > 0
	}, time.Second, 20*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.True(t, l.IsHeld())

	require.NoError(t, l.Unlock(ctx))
}

func TestRedisLock_LostWhenTakenOver(t *testing.T) {
	mr, client := newClient(t)
	l := NewRedisLock(client, "test-lost", Options{TTL: time.Second, RenewInterval: 20 * time.Millisecond}, logger.NewNop())
	ctx := context.Background()

	acquired, err := l.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	require.NoError(t, mr.Set("test-lost", "someone-else"))
	assert.Eventually(t, func() bool { return !l.IsHeld() }, time.Second, 10*time.Millisecond)
	require.NoError(t, l.Unlock(ctx))
	got, err := mr.Get("test-lost")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisLock_NilClient(t *testing.T) {
	l := ForJob(nil, "stale-runs", time.Minute, logger.NewNop())
	ctx := context.Background()

	acquired, err := l.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)
	assert.True(t, l.IsHeld())

	require.NoError(t, l.Unlock(ctx))
	assert.False(t, l.IsHeld())
}

func TestRedisLock_NilClientExcludesSameKey(t *testing.T) {
	ctx := context.Background()
	a := ForExperiment(nil, "local-exp", logger.NewNop())
	b := ForExperiment(nil, "local-exp", logger.NewNop())
	other := ForExperiment(nil, "local-other", logger.NewNop())

	acquired, err := a.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	acquired, err = b.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, acquired)
	assert.False(t, b.IsHeld())

	acquired, err = other.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, acquired)
	require.NoError(t, other.Unlock(ctx))

	// unlocking a lock that was never granted leaves the holder in place
	require.NoError(t, b.Unlock(ctx))
	acquired, err = b.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, acquired)

	require.NoError(t, a.Unlock(ctx))
	require.NoError(t, Acquire(ctx, b, 10*time.Millisecond))
	assert.True(t, b.IsHeld())
	require.NoError(t, b.Unlock(ctx))
}

func TestRedisLock_DoubleTryLockByOwner(t *testing.T) {
	_, client := newClient(t)
	l := NewRedisLock(client, "test-double", Options{}, logger.NewNop())
	ctx := context.Background()

	acquired, err := l.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	_, err = l.TryLock(ctx)
	assert.Error(t, err)
	require.NoError(t, l.Unlock(ctx))
}

func TestAcquire_WaitsForRelease(t *testing.T) {
	_, client := newClient(t)
	holder := ForExperiment(client, "exp", logger.NewNop())
	waiter := ForExperiment(client, "exp", logger.NewNop())
	ctx := context.Background()

	acquired, err := holder.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	go func() {
		time.Sleep(50 * time.Millisecond)
		holder.Unlock(ctx)
	}()

	require.NoError(t, Acquire(ctx, waiter, 10*time.Millisecond))
	assert.True(t, waiter.IsHeld())
	require.NoError(t, waiter.Unlock(ctx))
}

func TestAcquire_ContextDone(t *testing.T) {
	_, client := newClient(t)
	holder := ForExperiment(client, "exp", logger.NewNop())
	waiter := ForExperiment(client, "exp", logger.NewNop())

	acquired, err := holder.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, acquired)
	defer holder.Unlock(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, Acquire(ctx, waiter, 10*time.Millisecond), context.DeadlineExceeded)
	assert.False(t, waiter.IsHeld())
}
