// Package feed wires the alert store, the read-state tracker and the stream
// events into one session: the single owner of panel state.
package feed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/polyinsider/alertfeed/internal/ingest"
	"github.com/polyinsider/alertfeed/internal/metrics"
	"github.com/polyinsider/alertfeed/internal/readstate"
	"github.com/polyinsider/alertfeed/internal/store"
)

// subscriberBuffer is the capacity of each subscription channel. A full
// channel drops the notification instead of blocking the session.
const subscriberBuffer = 8

// PanelEvent is emitted whenever the panel opens or closes.
type PanelEvent struct {
	IsOpen bool
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	Alerts    []store.Alert // newest first
	Connected bool
	Open      bool

	read map[string]struct{}
}

// IsRead reports whether the retained alert ts was read when the snapshot
// was taken.
func (s Snapshot) IsRead(ts string) bool {
	_, ok := s.read[ts]
	return ok
}

// Unread returns the number of unread alerts in the snapshot.
func (s Snapshot) Unread() int {
	return len(s.Alerts) - len(s.read)
}

// Session owns the panel state. All methods are safe for concurrent use;
// stream events and user actions are serialized on one mutex.
type Session struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu          sync.Mutex
	alerts      *store.AlertStore
	tracker     *readstate.Tracker
	connected   bool
	open        bool
	torndown    bool
	subscribers []chan PanelEvent
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records store and read-state gauges.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// New returns a disconnected, closed session with an empty store holding at
// most maxAlerts alerts. A nil tracker keeps read-state in memory. User
// actions call the tracker under the session lock, so a tracker over remote
// storage should use readstate.WithAsyncWrites.
func New(maxAlerts int, tracker *readstate.Tracker, opts ...Option) *Session {
	if tracker == nil {
		tracker = readstate.New(nil)
	}
	s := &Session{
		logger:  slog.Default(),
		alerts:  store.NewAlertStore(maxAlerts),
		tracker: tracker,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run applies events in channel order until ctx is done or events is closed.
func (s *Session) Run(ctx context.Context, events <-chan ingest.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			s.Apply(ev)
		}
	}
}

// Apply applies one stream event. Connectivity events only flip the
// connected flag; retained alerts survive disconnects.
func (s *Session) Apply(ev ingest.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.torndown {
		return
	}

	switch ev.Type {
	case ingest.EventConnected:
		if !s.connected {
			s.logger.Info("feed_connected", "retained", s.alerts.Len())
		}
		s.connected = true
	case ingest.EventDisconnected:
		if s.connected {
			s.logger.Info("feed_disconnected", "retained", s.alerts.Len())
		}
		s.connected = false
	case ingest.EventAlert:
		s.appendLocked(ev.Alert)
	}
	s.metrics.SetConnected(s.connected)
}

func (s *Session) appendLocked(a store.Alert) {
	added, evicted := s.alerts.Append(a)
	if !added {
		s.metrics.ObserveDuplicate()
		s.logger.Debug("alert_duplicate", "timestamp", a.Timestamp)
		return
	}
	if evicted != nil {
		s.metrics.ObserveEvicted()
		s.logger.Debug("alert_evicted", "timestamp", evicted.Timestamp)
	}
	s.logger.Debug("alert_added",
		"timestamp", a.Timestamp,
		"type", a.Type,
		"severity", a.Severity,
	)
	s.updateGaugesLocked()
}

// Toggle flips the panel between open and closed.
func (s *Session) Toggle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.torndown {
		return
	}
	s.setOpenLocked(!s.open)
}

// SetOpen opens or closes the panel.
func (s *Session) SetOpen(open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.torndown {
		return
	}
	s.setOpenLocked(open)
}

// Close closes the panel.
func (s *Session) Close() {
	s.SetOpen(false)
}

func (s *Session) setOpenLocked(open bool) {
	if s.open == open {
		return
	}
	s.open = open

	ev := PanelEvent{IsOpen: open}
	for _, ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// MarkRead marks one alert as read and returns the alert's link, or "" when
// the alert has none or is no longer retained.
func (s *Session) MarkRead(ts string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.torndown {
		return ""
	}

	s.tracker.MarkRead(ts)
	s.updateGaugesLocked()

	for _, a := range s.alerts.All() {
		if a.Timestamp == ts {
			return a.PolymarketURL
		}
	}
	return ""
}

// MarkAllRead marks every currently retained alert as read.
func (s *Session) MarkAllRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.torndown {
		return
	}
	s.tracker.MarkAllRead(s.alerts.Timestamps())
	s.updateGaugesLocked()
}

// ClearAll forgets the persisted read history. Currently retained alerts
// stay read.
func (s *Session) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.torndown {
		return
	}
	s.tracker.ClearAll(s.alerts.Timestamps())
	s.updateGaugesLocked()
	s.logger.Info("readstate_cleared", "retained", s.alerts.Len())
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Alerts:    s.alerts.Newest(),
		Connected: s.connected,
		Open:      s.open,
		read:      make(map[string]struct{}),
	}
	for _, a := range snap.Alerts {
		if s.tracker.IsRead(a.Timestamp) {
			snap.read[a.Timestamp] = struct{}{}
		}
	}
	return snap
}

// Subscribe returns a channel receiving open/closed notifications. The
// channel is closed on Teardown.
func (s *Session) Subscribe() <-chan PanelEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan PanelEvent, subscriberBuffer)
	if s.torndown {
		close(ch)
		return ch
	}
	s.subscribers = append(s.subscribers, ch)
	return ch
}

// Teardown ends the session. It is idempotent, and every later mutation is
// a no-op.
func (s *Session) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.torndown {
		return
	}
	s.torndown = true

	for _, ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = nil
	s.logger.Info("feed_teardown", "retained", s.alerts.Len(), "read", s.tracker.Len())
}

func (s *Session) updateGaugesLocked() {
	if s.metrics == nil {
		return
	}
	unread := 0
	for _, ts := range s.alerts.Timestamps() {
		if !s.tracker.IsRead(ts) {
			unread++
		}
	}
	s.metrics.SetRetained(s.alerts.Len())
	s.metrics.SetUnread(unread)
}
