package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// channelPrefix namespaces fusion event channels in a shared Redis.
const channelPrefix = "fusion:events:"

// RedisOptions configures the Redis event bus connection.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379").
	URL string

	// ConnectTimeout is the maximum time to wait for connection establishment.
	ConnectTimeout time.Duration

	// WriteTimeout is the maximum time to wait for publish operations.
	WriteTimeout time.Duration
}

// RedisBus publishes events as JSON to per-type Redis pub/sub channels
// (fusion:events:<type>), letting external dashboards and pipelines observe
// refresh and build activity.
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus creates a Redis event bus and verifies connectivity.
func NewRedisBus(opts RedisOptions) (*RedisBus, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisBus{client: client}, nil
}

// Publish serializes the event and publishes it to its type channel.
func (b *RedisBus) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, channelPrefix+string(e.Type), data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe creates a subscription to one event type's channel. The returned
// channel receives events until ctx is cancelled.
func (b *RedisBus) Subscribe(ctx context.Context, t Type) (<-chan Event, error) {
	sub := b.client.Subscribe(ctx, channelPrefix+string(t))
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan Event, 64)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					continue
				}
				select {
				case out <- e:
				default:
				}
			}
		}
	}()
	return out, nil
}

// Close closes the Redis connection.
func (b *RedisBus) Close() error {
	return b.client.Close()
}
