package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"pdmflow/pkg/logger"
)

const (
	defaultTTL            = 30 * time.Second
	defaultAcquireTimeout = 5 * time.Second
	defaultRenewInterval  = 10 * time.Second
)

// Key prefixes. Experiment locks allow one training run per experiment at a
// time, job locks keep background jobs to one instance.
const (
	ExperimentLockPrefix = "pdmflow:experiment-lock:"
	JobLockPrefix        = "pdmflow:job-lock:"
)

var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

var renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end
`)

// local holds the owners of nil-client locks, keyed like the redis keys
var local = struct {
	sync.Mutex
	owners map[string]string
}{owners: make(map[string]string)}

// DistributedLock mutual exclusion across instances
type DistributedLock interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
	IsHeld() bool
}

// Options lock timings. MaxHold 0 means the lock is renewed until Unlock.
type Options struct {
	TTL           time.Duration
	RenewInterval time.Duration
	MaxHold       time.Duration
}

// RedisLock SET NX lock with a background renewer. Only the owner value can
// renew or release the key.
type RedisLock struct {
	client *redis.Client
	key    string
	value  string
	opts   Options
	log    *logger.Logger

	mu         sync.Mutex
	held       bool
	acquiredAt time.Time
	stopRenew  chan struct{}
}

// NewRedisLock creates a lock on key. With a nil client the lock only
// excludes holders of the same key inside this process, for single-instance
// deployments without redis.
func NewRedisLock(client *redis.Client, key string, opts Options, log *logger.Logger) *RedisLock {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.RenewInterval <= 0 || opts.RenewInterval >= opts.TTL {
		opts.RenewInterval = opts.TTL / 3
	}
	return &RedisLock{
		client: client,
		key:    key,
		value:  uuid.NewString(),
		opts:   opts,
		log:    log,
	}
}

// ForExperiment returns the lock serializing training runs of an experiment
func ForExperiment(client *redis.Client, experiment string, log *logger.Logger) *RedisLock {
	return NewRedisLock(client, ExperimentLockPrefix+experiment, Options{}, log)
}

// ForJob returns the lock of a background job
func ForJob(client *redis.Client, job string, maxHold time.Duration, log *logger.Logger) *RedisLock {
	return NewRedisLock(client, JobLockPrefix+job, Options{MaxHold: maxHold}, log)
}

// Acquire polls TryLock every interval until the lock is taken or ctx is done
func Acquire(ctx context.Context, l DistributedLock, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		acquired, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Key returns the redis key of the lock
func (l *RedisLock) Key() string {
	return l.key
}

// TryLock implements DistributedLock
func (l *RedisLock) TryLock(ctx context.Context) (bool, error) {
	l.mu.Lock()
	if l.held {
		l.mu.Unlock()
		return false, fmt.Errorf("lock %s already held by this instance", l.key)
	}
	l.mu.Unlock()

	if l.client == nil {
		return l.tryLocal(ctx), nil
	}

	acquireCtx, cancel := context.WithTimeout(ctx, defaultAcquireTimeout)
	defer cancel()

	acquired, err := l.client.SetNX(acquireCtx, l.key, l.value, l.opts.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	if !acquired {
		l.log.DebugCtx(ctx, "lock %s held by another instance", l.key)
		return false, nil
	}

	stop := make(chan struct{})
	l.mu.Lock()
	l.held = true
	l.acquiredAt = time.Now()
	l.stopRenew = stop
	l.mu.Unlock()

	go l.renew(context.WithoutCancel(ctx), stop)

	l.log.DebugCtx(ctx, "lock %s acquired", l.key)
	return true, nil
}

// Unlock implements DistributedLock. Releasing a lock that was lost is not an error.
func (l *RedisLock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	wasHeld := l.held
	l.held = false
	if l.stopRenew != nil {
		close(l.stopRenew)
		l.stopRenew = nil
	}
	l.mu.Unlock()

	if !wasHeld {
		return nil
	}
	if l.client == nil {
		l.unlockLocal()
		return nil
	}

	result, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if result == 0 {
		l.log.WarnCtx(ctx, "lock %s was already released or taken over", l.key)
	}
	return nil
}

func (l *RedisLock) tryLocal(ctx context.Context) bool {
	local.Lock()
	defer local.Unlock()
	if _, taken := local.owners[l.key]; taken {
		l.log.DebugCtx(ctx, "lock %s held in this process", l.key)
		return false
	}
	local.owners[l.key] = l.value

	l.mu.Lock()
	l.held = true
	l.acquiredAt = time.Now()
	l.mu.Unlock()
	l.log.DebugCtx(ctx, "redis client is nil, lock %s acquired in process", l.key)
	return true
}

func (l *RedisLock) unlockLocal() {
	local.Lock()
	defer local.Unlock()
	if local.owners[l.key] == l.value {
		delete(local.owners, l.key)
	}
}

// IsHeld implements DistributedLock
func (l *RedisLock) IsHeld() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

func (l *RedisLock) lost() {
	l.mu.Lock()
	l.held = false
	l.mu.Unlock()
}

func (l *RedisLock) renew(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(l.opts.RenewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			holdFor := time.Since(l.acquiredAt)
			l.mu.Unlock()

			if l.opts.MaxHold > 0 && holdFor > l.opts.MaxHold {
				l.log.WarnCtx(ctx, "lock %s held for %.0fs, no longer renewing", l.key, holdFor.Seconds())
				l.lost()
				return
			}

			result, err := renewScript.Run(ctx, l.client, []string{l.key}, l.value, l.opts.TTL.Milliseconds()).Int64()
			if err != nil {
				l.log.WarnCtx(ctx, "failed to renew lock %s: %v", l.key, err)
				l.lost()
				return
			}
			if result == 0 {
				l.log.WarnCtx(ctx, "lock %s lost", l.key)
				l.lost()
				return
			}
		}
	}
}
