package distributed

import (
	"time"
)

func (s *RedisSuite) TestTimersPopDueInDeadlineOrder() {
	timers := NewRedisTimers(s.client, "pending")
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	s.Require().NoError(timers.Schedule(s.ctx, "p2", base.Add(2*time.Minute), []byte("second")))
	s.Require().NoError(timers.Schedule(s.ctx, "p1", base.Add(time.Minute), []byte("first")))
	s.Require().NoError(timers.Schedule(s.ctx, "p3", base.Add(time.Hour), []byte("later")))

	due, err := timers.PopDue(s.ctx, base.Add(5*time.Minute))
	s.Require().NoError(err)
	s.Require().Len(due, 2)
	s.Equal("first", string(due[0]))
	s.Equal("second", string(due[1]))

	n, err := timers.Len(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	due, err = timers.PopDue(s.ctx, base.Add(5*time.Minute))
	s.Require().NoError(err)
	s.Empty(due)
}

func (s *RedisSuite) TestTimersScheduleReplaces() {
	timers := NewRedisTimers(s.client, "pending")
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	s.Require().NoError(timers.Schedule(s.ctx, "p1", base.Add(time.Minute), []byte("old")))
	s.Require().NoError(timers.Schedule(s.ctx, "p1", base.Add(time.Hour), []byte("new")))

	due, err := timers.PopDue(s.ctx, base.Add(5*time.Minute))
	s.Require().NoError(err)
	s.Empty(due)

	payload, err := timers.Get(s.ctx, "p1")
	s.Require().NoError(err)
	s.Equal("new", string(payload))
}

func (s *RedisSuite) TestTimersCancel() {
	timers := NewRedisTimers(s.client, "pending")
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	s.Require().NoError(timers.Schedule(s.ctx, "p1", base, []byte("x")))

	cancelled, err := timers.Cancel(s.ctx, "p1")
	s.Require().NoError(err)
	s.True(cancelled)

	cancelled, err = timers.Cancel(s.ctx, "p1")
	s.Require().NoError(err)
	s.False(cancelled)

	payload, err := timers.Get(s.ctx, "p1")
	s.Require().NoError(err)
	s.Nil(payload)
}
