// Package kv provides the durable key-value storage used to persist
// client-side state such as the alert read-set.
package kv

import (
	"context"
	"errors"
)

var (
	// ErrClosed is returned by operations on a closed storage.
	ErrClosed = errors.New("kv: storage closed")

	// ErrInvalidKey is returned for an empty key.
	ErrInvalidKey = errors.New("kv: invalid key")
)

// Storage is a string key-value store. Get reports found=false for an
// absent key rather than returning an error.
type Storage interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Close() error
}
