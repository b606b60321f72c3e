// Package cache stores balance snapshots between reads.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces every key written by [Redis].
const KeyPrefix = "yieldboard:"

// Noop never stores anything.
type Noop struct{}

// Get always misses.
func (Noop) Get(context.Context, string) ([]byte, error) { return nil, nil }

// Set discards the value.
func (Noop) Set(context.Context, string, []byte, time.Duration) error { return nil }

// Delete reports a miss.
func (Noop) Delete(context.Context, string) (bool, error) { return false, nil }

// Close is a no-op.
func (Noop) Close() error { return nil }

// Redis is a Redis-backed cache.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis wraps an existing client.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// Dial parses a redis:// URL, connects and pings.
func Dial(ctx context.Context, rawURL string) (*Redis, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{client: client}, nil
}

// Get returns the cached value, or nil on a miss.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, KeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

// Set stores value for ttl. A zero ttl keeps the key without expiry.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, KeyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes key and reports whether it existed.
func (r *Redis) Delete(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Del(ctx, KeyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis del %s: %w", key, err)
	}
	return n > 0, nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
