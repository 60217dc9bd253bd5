package distributed

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

type RedisSuite struct {
	suite.Suite
	mini   *miniredis.Miniredis
	client *redis.Client
	ctx    context.Context
}

func TestRedisSuite(t *testing.T) {
	suite.Run(t, new(RedisSuite))
}

func (s *RedisSuite) SetupTest() {
	s.mini = miniredis.RunT(s.T())
	s.client = redis.NewClient(&redis.Options{Addr: s.mini.Addr()})
	s.ctx = context.Background()
}

func (s *RedisSuite) TearDownTest() {
	_ = s.client.Close()
	s.mini.Close()
}

func (s *RedisSuite) TestLockAcquireAndRelease() {
	manager := NewRedisLockManager(s.client, "test:")

	lock, err := manager.AcquireLock(s.ctx, "formation", "instance1", 5*time.Second)
	s.Require().NoError(err)

	_, err = manager.AcquireLock(s.ctx, "formation", "instance2", 5*time.Second)
	s.ErrorIs(err, ErrLockNotAcquired)

	s.Require().NoError(lock.Release(s.ctx))
	s.ErrorIs(lock.Release(s.ctx), ErrLockNotHeld)

	again, err := manager.AcquireLock(s.ctx, "formation", "instance3", 5*time.Second)
	s.Require().NoError(err)
	s.NoError(again.Release(s.ctx))
}

func (s *RedisSuite) TestLockExpires() {
	manager := NewRedisLockManager(s.client, "test:")

	_, err := manager.AcquireLock(s.ctx, "formation", "instance1", time.Second)
	s.Require().NoError(err)

	s.mini.FastForward(2 * time.Second)

	lock, err := manager.AcquireLock(s.ctx, "formation", "instance2", time.Second)
	s.Require().NoError(err)
	s.NoError(lock.Release(s.ctx))
}

func (s *RedisSuite) TestLockReleaseOnlyByOwner() {
	manager := NewRedisLockManager(s.client, "test:")

	lock, err := manager.AcquireLock(s.ctx, "formation", "instance1", time.Second)
	s.Require().NoError(err)

	s.mini.FastForward(2 * time.Second)
	other, err := manager.AcquireLock(s.ctx, "formation", "instance2", time.Minute)
	s.Require().NoError(err)

	s.ErrorIs(lock.Release(s.ctx), ErrLockNotHeld)
	s.NoError(other.Release(s.ctx))
}

func (s *RedisSuite) TestTryLockWithRetryGivesUp() {
	manager := NewRedisLockManager(s.client, "test:")

	_, err := manager.AcquireLock(s.ctx, "formation", "instance1", time.Minute)
	s.Require().NoError(err)

	_, err = manager.TryLockWithRetry(s.ctx, "formation", "instance2", time.Minute, 2, 10*time.Millisecond)
	s.ErrorIs(err, ErrLockNotAcquired)
}

func (s *RedisSuite) TestMutexSingleAttempt() {
	manager := NewRedisLockManager(s.client, "test:")
	first := manager.NewMutex("formation", "instance1", time.Minute)
	second := manager.NewMutex("formation", "instance2", time.Minute)

	release, ok, err := first.TryAcquire(s.ctx)
	s.Require().NoError(err)
	s.Require().True(ok)

	_, ok, err = second.TryAcquire(s.ctx)
	s.NoError(err)
	s.False(ok)

	release()
	release2, ok, err := second.TryAcquire(s.ctx)
	s.Require().NoError(err)
	s.True(ok)
	release2()
}
