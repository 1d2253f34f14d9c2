package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/herald/api/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// Connect parses a redis:// URL and checks the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// RedisListener feeds JSON publish events from a Redis pub/sub channel into
// a Bus, so the CMS can announce publications without calling the HTTP API.
type RedisListener struct {
	rdb     *redis.Client
	channel string
	bus     *Bus
	metrics *metrics.Metrics
}

func NewRedisListener(rdb *redis.Client, channel string, bus *Bus, m *metrics.Metrics) *RedisListener {
	return &RedisListener{rdb: rdb, channel: channel, bus: bus, metrics: m}
}

// Run blocks until ctx is cancelled. Malformed messages are logged and
// skipped.
func (l *RedisListener) Run(ctx context.Context) error {
	pubsub := l.rdb.Subscribe(ctx, l.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reading
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", l.channel, err)
	}
	slog.Info("listening for publish events", "component", "events", "channel", l.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			l.handle(ctx, msg.Payload)
		}
	}
}

func (l *RedisListener) handle(ctx context.Context, payload string) {
	var event Published
	if err := json.Unmarshal([]byte(payload), &event); err != nil || event.ContentID == "" {
		slog.Warn("ignoring malformed publish event", "component", "events", "payload", payload)
		l.metrics.Event("redis", fmt.Errorf("malformed event"))
		return
	}

	err := l.bus.Publish(ctx, event)
	l.metrics.Event("redis", err)
	if err != nil {
		slog.Error("failed to dispatch publish event", "component", "events", "content_id", event.ContentID, "error", err)
	}
}

// Announce publishes event on channel; used by tooling and tests.
func Announce(ctx context.Context, rdb *redis.Client, channel string, event Published) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return rdb.Publish(ctx, channel, payload).Err()
}
