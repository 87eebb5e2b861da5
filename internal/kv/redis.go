package kv

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// Redis is a Storage backed by a Redis server. Keys are namespaced with a
// prefix so several dashboards can share one instance.
type Redis struct {
	client *redis.Client
	prefix string
	closed atomic.Bool
}

// NewRedis creates a Redis storage. The connection is established lazily
// by the client; use Ping to check reachability.
func NewRedis(opts *redis.Options, prefix string) *Redis {
	return &Redis{
		client: redis.NewClient(opts),
		prefix: prefix,
	}
}

// Ping checks that the server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (r *Redis) key(k string) string {
	return r.prefix + k
}

// Get returns the value stored under key.
func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrInvalidKey
	}
	if r.closed.Load() {
		return "", false, ErrClosed
	}
	val, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, true, nil
}

// Set stores value under key without expiry.
func (r *Redis) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if r.closed.Load() {
		return ErrClosed
	}
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Remove deletes key.
func (r *Redis) Remove(ctx context.Context, key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if r.closed.Load() {
		return ErrClosed
	}
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis remove %s: %w", key, err)
	}
	return nil
}

// Close closes the client connection pool.
func (r *Redis) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	return r.client.Close()
}
