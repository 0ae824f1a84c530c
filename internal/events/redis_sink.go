package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel events are published to.
const DefaultChannel = "roombook:events"

// RedisSink publishes events as JSON on a Redis pub/sub channel.
type RedisSink struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisSink wraps an existing client. The caller owns the client.
func NewRedisSink(client redis.UniversalClient, channel string) *RedisSink {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Name() string {
	return "redis"
}

func (s *RedisSink) Deliver(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}
	return s.client.Publish(ctx, s.channel, payload).Err()
}
