package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Channels pushed to connected frontends.
const (
	TopicBoxState     = "primebox:box-state"
	TopicWonNotice    = "primebox:won-notice"
	TopicBidPreempted = "primebox:bid-preempted"
	TopicLiveStats    = "primebox:live-stats"
)

// Broadcaster fans application events out to subscribers.
type Broadcaster interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
}

type redisBroadcaster struct {
	client *redis.Client
}

func NewRedisBroadcaster(client *redis.Client) Broadcaster {
	return &redisBroadcaster{client: client}
}

func (b *redisBroadcaster) Publish(ctx context.Context, topic string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, topic, body).Err(); err != nil {
		slog.Error("Failed to publish event",
			slog.String("type", "error"),
			slog.String("topic", topic),
			slog.Any("error", err))
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}
