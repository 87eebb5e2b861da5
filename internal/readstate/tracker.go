// Package readstate tracks which alerts the user has acknowledged and
// mirrors that set to durable storage.
package readstate

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/polyinsider/alertfeed/internal/kv"
	"github.com/polyinsider/alertfeed/internal/metrics"
)

const (
	// DefaultKey is the storage key holding the read-set.
	DefaultKey = "polyinsider.readAlerts"

	// DefaultTimeout bounds each storage operation.
	DefaultTimeout = 2 * time.Second
)

// Tracker is the set of read alert timestamps.
//
// Persistence is best-effort: storage failures are logged and counted but
// never returned, and the in-memory set stays authoritative.
type Tracker struct {
	storage kv.Storage
	key     string
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu   sync.RWMutex
	read map[string]struct{}

	// persistMu orders writes so storage never goes back to an older set.
	persistMu sync.Mutex

	// Background writer, see WithAsyncWrites.
	async        bool
	pendingMu    sync.Mutex
	pending      bool
	pendingClear bool
	wake         chan struct{}
	stop         chan struct{}
	done         chan struct{}
	closeOnce    sync.Once
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithKey overrides the storage key.
func WithKey(key string) Option {
	return func(t *Tracker) {
		if key != "" {
			t.key = key
		}
	}
}

// WithTimeout overrides the per-operation storage timeout.
func WithTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithLogger sets the logger used for storage diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithMetrics records storage failures.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// WithAsyncWrites moves storage writes to a background goroutine. Mutations
// then only touch memory; pending writes coalesce and run in order, and
// Close flushes them.
func WithAsyncWrites() Option {
	return func(t *Tracker) { t.async = true }
}

// New creates an empty tracker persisting to storage. A nil storage keeps
// the read-set in memory only.
func New(storage kv.Storage, opts ...Option) *Tracker {
	t := &Tracker{
		storage: storage,
		key:     DefaultKey,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		read:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.storage == nil {
		t.async = false
	}
	if t.async {
		t.wake = make(chan struct{}, 1)
		t.stop = make(chan struct{})
		t.done = make(chan struct{})
		go t.writer()
	}
	return t
}

// Close stops the background writer after flushing pending writes. It does
// not close the storage.
func (t *Tracker) Close() {
	if !t.async {
		return
	}
	t.closeOnce.Do(func() {
		close(t.stop)
		<-t.done
	})
}

// Load merges the persisted read-set into memory. Absent, corrupt or
// unreadable storage leaves the current set unchanged.
func (t *Tracker) Load(ctx context.Context) {
	if t.storage == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	raw, found, err := t.storage.Get(ctx, t.key)
	if err != nil {
		t.logger.Warn("readstate_load_failed", "key", t.key, "error", err)
		t.metrics.ObserveStorageError("load")
		return
	}
	if !found {
		t.logger.Debug("readstate_empty", "key", t.key)
		return
	}

	loaded, err := decode(raw)
	if err != nil {
		t.logger.Warn("readstate_corrupt", "key", t.key, "error", err)
		t.metrics.ObserveStorageError("load")
		return
	}

	t.mu.Lock()
	extra := false // in-memory entries storage does not know about yet
	for ts := range t.read {
		if _, ok := loaded[ts]; !ok {
			extra = true
			break
		}
	}
	for ts := range loaded {
		t.read[ts] = struct{}{}
	}
	size := len(t.read)
	t.mu.Unlock()

	t.logger.Info("readstate_loaded", "key", t.key, "persisted", len(loaded), "total", size)

	if extra {
		t.persist(ctx)
	}
}

// IsRead reports whether the alert with timestamp ts has been read.
func (t *Tracker) IsRead(ts string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.read[ts]
	return ok
}

// MarkRead adds ts to the read-set. Marking an already read alert is a no-op.
func (t *Tracker) MarkRead(ts string) {
	t.mu.Lock()
	if _, ok := t.read[ts]; ok {
		t.mu.Unlock()
		return
	}
	t.read[ts] = struct{}{}
	t.mu.Unlock()

	t.persist(context.Background())
}

// MarkAllRead adds every timestamp in tss to the read-set.
func (t *Tracker) MarkAllRead(tss []string) {
	t.mu.Lock()
	changed := false
	for _, ts := range tss {
		if _, ok := t.read[ts]; !ok {
			t.read[ts] = struct{}{}
			changed = true
		}
	}
	t.mu.Unlock()

	if changed {
		t.persist(context.Background())
	}
}

// ClearAll erases the persisted read-set and resets memory to exactly tss:
// the given alerts stay read, older read history is forgotten.
func (t *Tracker) ClearAll(tss []string) {
	if t.async {
		t.reset(tss)
		t.schedule(true)
		return
	}

	t.persistMu.Lock()
	defer t.persistMu.Unlock()

	t.removeLocked()
	t.reset(tss)
	t.saveLocked(context.Background())
}

func (t *Tracker) reset(tss []string) {
	t.mu.Lock()
	t.read = make(map[string]struct{}, len(tss))
	for _, ts := range tss {
		t.read[ts] = struct{}{}
	}
	t.mu.Unlock()
}

// removeLocked deletes the stored key. Must be called with persistMu held.
func (t *Tracker) removeLocked() {
	if t.storage == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	if err := t.storage.Remove(ctx, t.key); err != nil {
		t.logger.Warn("readstate_clear_failed", "key", t.key, "error", err)
		t.metrics.ObserveStorageError("clear")
	}
}

// Len returns the number of read timestamps.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.read)
}

// Timestamps returns the read-set sorted.
func (t *Tracker) Timestamps() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sortedKeys(t.read)
}

// persist writes the current set to storage, or queues the write.
func (t *Tracker) persist(ctx context.Context) {
	if t.async {
		t.schedule(false)
		return
	}
	t.persistMu.Lock()
	defer t.persistMu.Unlock()
	t.saveLocked(ctx)
}

// schedule marks a write pending and wakes the writer.
func (t *Tracker) schedule(clear bool) {
	t.pendingMu.Lock()
	t.pending = true
	if clear {
		t.pendingClear = true
	}
	t.pendingMu.Unlock()

	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *Tracker) writer() {
	defer close(t.done)
	for {
		select {
		case <-t.wake:
			t.flushPending()
		case <-t.stop:
			t.flushPending()
			return
		}
	}
}

// flushPending runs the queued write, if any. The saved set is the one in
// memory at write time, so coalesced writes still converge on the latest.
func (t *Tracker) flushPending() {
	t.pendingMu.Lock()
	pending, clear := t.pending, t.pendingClear
	t.pending, t.pendingClear = false, false
	t.pendingMu.Unlock()

	if !pending {
		return
	}

	t.persistMu.Lock()
	defer t.persistMu.Unlock()
	if clear {
		t.removeLocked()
	}
	t.saveLocked(context.Background())
}

// saveLocked writes the current set. Must be called with persistMu held.
func (t *Tracker) saveLocked(ctx context.Context) {
	if t.storage == nil {
		return
	}

	// Snapshot under persistMu so the write reflects the latest state.
	t.mu.RLock()
	tss := sortedKeys(t.read)
	t.mu.RUnlock()

	b, err := json.Marshal(tss)
	if err != nil {
		t.logger.Warn("readstate_encode_failed", "error", err)
		t.metrics.ObserveStorageError("save")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	if err := t.storage.Set(ctx, t.key, string(b)); err != nil {
		t.logger.Warn("readstate_save_failed", "key", t.key, "entries", len(tss), "error", err)
		t.metrics.ObserveStorageError("save")
		return
	}
	t.logger.Debug("readstate_saved", "key", t.key, "entries", len(tss))
}

// decode parses a persisted read-set. Non-string entries are skipped.
func decode(raw string) (map[string]struct{}, error) {
	var items []any
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out[s] = struct{}{}
		}
	}
	return out, nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
