package distributed

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

func (s *RedisSuite) TestEventRelayDeliversToOtherInstances() {
	sender := NewEventRelay(s.client, "events", zap.NewNop())
	receiver := NewEventRelay(s.client, "events", zap.NewNop())

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	var mu sync.Mutex
	var got []Envelope
	record := func(env Envelope) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, env)
	}

	go func() { _ = receiver.Run(ctx, record) }()
	go func() { _ = sender.Run(ctx, record) }()

	// wait for both subscriptions to register
	s.Require().Eventually(func() bool {
		return s.mini.PubSubNumSub("events")["events"] == 2
	}, time.Second, 10*time.Millisecond)

	s.Require().NoError(sender.Publish(s.ctx, []string{"p1"}, "match_found", map[string]string{"matchId": "m1"}))

	s.Require().Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	s.Equal("match_found", got[0].Type)
	s.Equal([]string{"p1"}, got[0].PlayerIDs)
	s.Equal(sender.InstanceID(), got[0].Origin)
	s.JSONEq(`{"matchId":"m1"}`, string(got[0].Payload))
}
