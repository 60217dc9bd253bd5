package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Envelope is one player notification travelling between orchestrator instances.
type Envelope struct {
	Origin    string          `json:"origin"`
	PlayerIDs []string        `json:"playerIds"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// EventRelay fans notifications out over Redis pub/sub so whichever instance
// holds a player's socket can deliver it.
type EventRelay struct {
	client     *redis.Client
	logger     *zap.Logger
	instanceID string
	channel    string
}

func NewEventRelay(client *redis.Client, channel string, logger *zap.Logger) *EventRelay {
	return &EventRelay{
		client:     client,
		logger:     logger,
		instanceID: uuid.New().String(),
		channel:    channel,
	}
}

func (r *EventRelay) InstanceID() string {
	return r.instanceID
}

func (r *EventRelay) Publish(ctx context.Context, playerIDs []string, eventType string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	data, err := json.Marshal(Envelope{
		Origin:    r.instanceID,
		PlayerIDs: playerIDs,
		Type:      eventType,
		Payload:   raw,
		Timestamp: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Run delivers envelopes published by other instances to handler until ctx ends.
func (r *EventRelay) Run(ctx context.Context, handler func(Envelope)) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	r.logger.Info("Event relay started",
		zap.String("instance_id", r.instanceID),
		zap.String("channel", r.channel))

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Error("Failed to unmarshal envelope", zap.Error(err))
				continue
			}
			if env.Origin == r.instanceID {
				continue
			}
			handler(env)

		case <-ctx.Done():
			r.logger.Info("Event relay stopped")
			return nil
		}
	}
}
