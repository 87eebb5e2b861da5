package kv

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/badger/v3"
)

// Badger is a Storage backed by an embedded BadgerDB.
type Badger struct {
	db     *badger.DB
	closed atomic.Bool
}

// NewBadger opens a BadgerDB at path. An empty path opens an in-memory
// database, which is mostly useful for tests.
func NewBadger(path string) (*Badger, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil // badger logs through its own logger otherwise

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger db: %w", err)
	}
	return &Badger{db: db}, nil
}

// Get returns the value stored under key.
func (b *Badger) Get(_ context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrInvalidKey
	}
	if b.closed.Load() {
		return "", false, ErrClosed
	}

	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("badger get %s: %w", key, err)
	}
	return string(value), true, nil
}

// Set stores value under key.
func (b *Badger) Set(_ context.Context, key, value string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if b.closed.Load() {
		return ErrClosed
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("badger set %s: %w", key, err)
	}
	return nil
}

// Remove deletes key.
func (b *Badger) Remove(_ context.Context, key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if b.closed.Load() {
		return ErrClosed
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("badger remove %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying BadgerDB.
func (b *Badger) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.db.Close()
}
