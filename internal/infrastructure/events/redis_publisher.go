package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"bintunet/internal/core/domain"
	"bintunet/internal/core/ports"
)

// envelope tags an event with the instance that produced it so subscribers
// can skip their own events.
type envelope struct {
	InstanceID string             `json:"instance_id"`
	Event      domain.StreamEvent `json:"event"`
}

// RedisPublisher publishes stream events to a Redis pub/sub channel and can
// subscribe to events published by other instances.
type RedisPublisher struct {
	client     *redis.Client
	channel    string
	instanceID string
	logger     *zap.SugaredLogger
}

func NewRedisPublisher(client *redis.Client, channel, instanceID string, logger *zap.SugaredLogger) *RedisPublisher {
	return &RedisPublisher{
		client:     client,
		channel:    channel,
		instanceID: instanceID,
		logger:     logger,
	}
}

func (p *RedisPublisher) Publish(ctx context.Context, event domain.StreamEvent) error {
	data, err := json.Marshal(envelope{InstanceID: p.instanceID, Event: event})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debugw("published event",
		"type", event.Type,
		"user_id", event.UserID,
		"stream_id", event.StreamID,
	)
	return nil
}

// Subscribe delivers events from other instances to handler until ctx is done.
func (p *RedisPublisher) Subscribe(ctx context.Context, handler func(domain.StreamEvent)) error {
	pubsub := p.client.Subscribe(ctx, p.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				p.logger.Warnw("failed to unmarshal event", "error", err)
				continue
			}
			if env.InstanceID == p.instanceID {
				continue
			}
			handler(env.Event)
		}
	}
}

var _ ports.EventPublisher = (*RedisPublisher)(nil)
