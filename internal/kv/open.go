package kv

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// Options selects and configures a storage backend.
type Options struct {
	Backend string

	// Path is the JSON file (file) or database directory (badger).
	Path string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// Open creates the configured backend. For redis the server is pinged so
// an unreachable server is reported at startup instead of on first write.
func Open(ctx context.Context, opts Options) (Storage, error) {
	switch strings.ToLower(opts.Backend) {
	case BackendMemory, "":
		return NewMemory(), nil
	case BackendFile:
		f, err := NewFile(opts.Path)
		if err != nil {
			return nil, err
		}
		return f, nil
	case BackendBadger:
		b, err := NewBadger(opts.Path)
		if err != nil {
			return nil, err
		}
		return b, nil
	case BackendRedis:
		r := NewRedis(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		}, opts.RedisPrefix)
		if err := r.Ping(ctx); err != nil {
			r.Close()
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
