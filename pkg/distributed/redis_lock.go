package distributed

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrLockNotHeld     = errors.New("lock not held")
)

// releaseScript deletes the key only while it still holds the owner's token.
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// RedisLock is a held SETNX lock.
type RedisLock struct {
	client redis.Cmdable
	key    string
	owner  string
}

type RedisLockManager struct {
	client redis.Cmdable
	prefix string
}

func NewRedisLockManager(client redis.Cmdable, prefix string) *RedisLockManager {
	return &RedisLockManager{client: client, prefix: prefix}
}

// AcquireLock makes one SETNX attempt.
func (m *RedisLockManager) AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (*RedisLock, error) {
	key := m.prefix + name
	ok, err := m.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return &RedisLock{client: m.client, key: key, owner: owner}, nil
}

// TryLockWithRetry polls AcquireLock until it succeeds, fails hard or runs out of attempts.
func (m *RedisLockManager) TryLockWithRetry(
	ctx context.Context,
	name, owner string,
	ttl time.Duration,
	maxRetries int,
	retryInterval time.Duration,
) (*RedisLock, error) {
	for i := 0; i < maxRetries; i++ {
		lock, err := m.AcquireLock(ctx, name, owner, ttl)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, ErrLockNotAcquired) {
			return nil, err
		}

		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryInterval):
			}
		}
	}
	return nil, ErrLockNotAcquired
}

func (l *RedisLock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Mutex is a named lock that a periodic job tries once per run.
type Mutex struct {
	manager *RedisLockManager
	name    string
	owner   string
	ttl     time.Duration
}

func (m *RedisLockManager) NewMutex(name, owner string, ttl time.Duration) *Mutex {
	return &Mutex{manager: m, name: name, owner: owner, ttl: ttl}
}

// TryAcquire makes a single attempt. A lock held elsewhere is not an error.
func (x *Mutex) TryAcquire(ctx context.Context) (func(), bool, error) {
	lock, err := x.manager.AcquireLock(ctx, x.name, x.owner, x.ttl)
	if errors.Is(err, ErrLockNotAcquired) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return func() { _ = lock.Release(context.Background()) }, true, nil
}
