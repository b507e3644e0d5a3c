package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisFeed carries changes over Redis pub/sub, one channel per table, so
// every server instance sees every write.
type RedisFeed struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

func NewRedisFeed(client *redis.Client, prefix string, logger *slog.Logger) *RedisFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisFeed{client: client, prefix: prefix, logger: logger}
}

func (r *RedisFeed) channel(table string) string {
	return fmt.Sprintf("%s:changes:%s", r.prefix, table)
}

func (r *RedisFeed) Publish(ctx context.Context, c Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("realtime: encode change: %w", err)
	}
	return r.client.Publish(ctx, r.channel(c.Table), payload).Err()
}

func (r *RedisFeed) Subscribe(ctx context.Context, f Filter) (*Subscription, error) {
	pubsub := r.client.Subscribe(ctx, r.channel(f.Table))
	// Wait for the subscription confirmation so no change published after
	// Subscribe returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("realtime: subscribe %s: %w", f, err)
	}

	sub := newSubscription(f, r.logger)
	sub.release = pubsub.Close

	go func() {
		for msg := range pubsub.Channel() {
			var c Change
			if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
				r.logger.Error("Failed to decode change", "channel", msg.Channel, "error", err)
				continue
			}
			sub.deliver(c)
		}
	}()

	return sub, nil
}

// Close is a no-op: the redis client is owned by the caller.
func (r *RedisFeed) Close() error {
	return nil
}
