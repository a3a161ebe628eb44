// Package notify broadcasts committed records to real-time subscribers.
// Delivery is best effort: messages published while nobody is subscribed
// are gone, and transport failures never reach the commit path.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Publisher sends payloads to a named broadcast channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payloads ...string) error
}

// RedisPublisher publishes over Redis Pub/Sub.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher parses a redis:// URL. Timeouts are short and client
// retries are off so an unreachable server fails fast.
func NewRedisPublisher(url string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = time.Second
	opts.ReadTimeout = 500 * time.Millisecond
	opts.WriteTimeout = 500 * time.Millisecond
	opts.MaxRetries = -1
	return &RedisPublisher{client: redis.NewClient(opts)}, nil
}

// Publish pipelines every payload in one round trip and returns the first failure.
func (p *RedisPublisher) Publish(ctx context.Context, channel string, payloads ...string) error {
	if len(payloads) == 0 {
		return nil
	}
	pipe := p.client.Pipeline()
	for _, payload := range payloads {
		pipe.Publish(ctx, channel, payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error { return p.client.Close() }
