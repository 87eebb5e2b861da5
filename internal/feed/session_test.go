package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyinsider/alertfeed/internal/ingest"
	"github.com/polyinsider/alertfeed/internal/kv"
	"github.com/polyinsider/alertfeed/internal/metrics"
	"github.com/polyinsider/alertfeed/internal/readstate"
	"github.com/polyinsider/alertfeed/internal/store"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func alert(ts string) ingest.Event {
	return ingest.AlertEvent(store.Alert{
		Timestamp:     ts,
		Type:          store.TypeWhaleTrade,
		Severity:      store.SeverityHigh,
		PolymarketURL: "https://polymarket.com/event/" + ts,
	})
}

func timestamps(alerts []store.Alert) []string {
	out := make([]string, len(alerts))
	for i, a := range alerts {
		out[i] = a.Timestamp
	}
	return out
}

func newSession(t *testing.T, maxAlerts int) (*Session, *kv.Memory) {
	t.Helper()
	storage := kv.NewMemory()
	tracker := readstate.New(storage, readstate.WithLogger(quiet))
	return New(maxAlerts, tracker, WithLogger(quiet)), storage
}

func TestSessionStartsEmptyAndDisconnected(t *testing.T) {
	s, _ := newSession(t, 5)
	snap := s.Snapshot()
	assert.Empty(t, snap.Alerts)
	assert.False(t, snap.Connected)
	assert.False(t, snap.Open)
	assert.Equal(t, 0, snap.Unread())
}

func TestSessionBoundedNewestFirst(t *testing.T) {
	s, _ := newSession(t, 3)
	for i := 1; i <= 5; i++ {
		s.Apply(alert(fmt.Sprintf("t%d", i)))
	}
	assert.Equal(t, []string{"t5", "t4", "t3"}, timestamps(s.Snapshot().Alerts))
}

func TestSessionDisconnectResilience(t *testing.T) {
	s, _ := newSession(t, 10)

	s.Apply(ingest.Event{Type: ingest.EventConnected})
	s.Apply(alert("t1"))
	s.Apply(alert("t2"))
	require.True(t, s.Snapshot().Connected)

	s.Apply(ingest.Event{Type: ingest.EventDisconnected})
	snap := s.Snapshot()
	assert.False(t, snap.Connected)
	assert.Equal(t, []string{"t2", "t1"}, timestamps(snap.Alerts), "disconnect must not clear alerts")

	// Reconnect and replay the backlog plus one new alert
	s.Apply(ingest.Event{Type: ingest.EventConnected})
	s.Apply(alert("t1"))
	s.Apply(alert("t2"))
	s.Apply(alert("t3"))

	snap = s.Snapshot()
	assert.True(t, snap.Connected)
	assert.Equal(t, []string{"t3", "t2", "t1"}, timestamps(snap.Alerts))
}

func TestSessionUnreadConsistency(t *testing.T) {
	s, _ := newSession(t, 10)
	for _, ts := range []string{"a", "b", "c", "d"} {
		s.Apply(alert(ts))
	}

	check := func(wantUnread int) {
		t.Helper()
		snap := s.Snapshot()
		read := 0
		for _, a := range snap.Alerts {
			if snap.IsRead(a.Timestamp) {
				read++
			}
		}
		assert.Equal(t, wantUnread, snap.Unread())
		assert.Equal(t, len(snap.Alerts)-read, snap.Unread())
	}

	check(4)
	s.MarkRead("b")
	check(3)
	s.MarkRead("b")
	check(3)
	s.MarkRead("not-retained")
	check(3)
	s.MarkAllRead()
	check(0)

	s.Apply(alert("e"))
	check(1)
}

func TestSessionMarkReadReturnsLink(t *testing.T) {
	s, _ := newSession(t, 10)
	s.Apply(alert("t1"))
	s.Apply(ingest.AlertEvent(store.Alert{Timestamp: "t2"}))

	assert.Equal(t, "https://polymarket.com/event/t1", s.MarkRead("t1"))
	assert.Equal(t, "", s.MarkRead("t2"))
	assert.Equal(t, "", s.MarkRead("gone"))
}

func TestSessionMarkAllReadUsesCurrentStore(t *testing.T) {
	s, _ := newSession(t, 2)
	s.Apply(alert("t1"))
	s.Apply(alert("t2"))
	s.Apply(alert("t3")) // evicts t1

	s.MarkAllRead()
	snap := s.Snapshot()
	assert.Equal(t, 0, snap.Unread())
	assert.True(t, snap.IsRead("t3"))
	assert.False(t, s.tracker.IsRead("t1"), "evicted alerts are not marked")
}

func TestSessionClearAllKeepsRetainedRead(t *testing.T) {
	s, storage := newSession(t, 10)
	s.tracker.MarkAllRead([]string{"old1", "old2"})
	s.Apply(alert("t1"))
	s.Apply(alert("t2"))
	s.MarkRead("t1")

	s.ClearAll()

	assert.ElementsMatch(t, []string{"t1", "t2"}, s.tracker.Timestamps())
	raw, ok, err := storage.Get(context.Background(), readstate.DefaultKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `["t1","t2"]`, raw)
}

func TestSessionPersistsReadState(t *testing.T) {
	storage := kv.NewMemory()
	s := New(10, readstate.New(storage, readstate.WithLogger(quiet)), WithLogger(quiet))
	s.Apply(alert("t1"))
	s.Apply(alert("t2"))
	s.MarkRead("t2")

	// A later session against the same storage sees t2 read
	tracker := readstate.New(storage, readstate.WithLogger(quiet))
	tracker.Load(context.Background())
	next := New(10, tracker, WithLogger(quiet))
	next.Apply(alert("t1"))
	next.Apply(alert("t2"))

	snap := next.Snapshot()
	assert.True(t, snap.IsRead("t2"))
	assert.False(t, snap.IsRead("t1"))
	assert.Equal(t, 1, snap.Unread())
}

func TestSessionPanelNotifications(t *testing.T) {
	s, _ := newSession(t, 10)
	events := s.Subscribe()

	s.Toggle()
	s.Toggle()
	s.SetOpen(true)
	s.SetOpen(true) // unchanged, no event
	s.Close()

	var got []bool
	for i := 0; i < 4; i++ {
		select {
		case ev := <-events:
			got = append(got, ev.IsOpen)
		case <-time.After(time.Second):
			t.Fatal("missing panel event")
		}
	}
	assert.Equal(t, []bool{true, false, true, false}, got)
	assert.False(t, s.Snapshot().Open)
}

func TestSessionSlowSubscriberDoesNotBlock(t *testing.T) {
	s, _ := newSession(t, 10)
	_ = s.Subscribe() // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.Toggle()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("toggle blocked on a full subscriber")
	}
}

func TestSessionTeardown(t *testing.T) {
	s, storage := newSession(t, 10)
	events := s.Subscribe()
	s.Apply(alert("t1"))

	s.Teardown()
	s.Teardown()

	_, ok := <-events
	assert.False(t, ok, "subscriber channel should be closed")

	s.Apply(alert("t2"))
	s.Apply(ingest.Event{Type: ingest.EventConnected})
	s.Toggle()
	assert.Equal(t, "", s.MarkRead("t1"))
	s.MarkAllRead()
	s.ClearAll()

	snap := s.Snapshot()
	assert.Equal(t, []string{"t1"}, timestamps(snap.Alerts))
	assert.False(t, snap.Connected)
	assert.False(t, snap.Open)
	assert.False(t, snap.IsRead("t1"))

	_, stored, err := storage.Get(context.Background(), readstate.DefaultKey)
	require.NoError(t, err)
	assert.False(t, stored, "no writes after teardown")

	_, ok = <-s.Subscribe()
	assert.False(t, ok)
}

func TestSessionRunAppliesInOrder(t *testing.T) {
	s, _ := newSession(t, 10)
	events := make(chan ingest.Event)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), events) }()

	events <- ingest.Event{Type: ingest.EventConnected}
	for i := 1; i <= 3; i++ {
		events <- alert(fmt.Sprintf("t%d", i))
	}
	close(events)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after channel close")
	}

	snap := s.Snapshot()
	assert.True(t, snap.Connected)
	assert.Equal(t, []string{"t3", "t2", "t1"}, timestamps(snap.Alerts))
}

func TestSessionRunStopsOnCancel(t *testing.T) {
	s, _ := newSession(t, 10)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, make(chan ingest.Event)) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSessionMetrics(t *testing.T) {
	m := metrics.New(nil, "test")
	tracker := readstate.New(nil, readstate.WithLogger(quiet))
	s := New(2, tracker, WithLogger(quiet), WithMetrics(m))

	s.Apply(ingest.Event{Type: ingest.EventConnected})
	s.Apply(alert("t1"))
	s.Apply(alert("t1"))
	s.Apply(alert("t2"))
	s.Apply(alert("t3"))
	s.MarkRead("t3")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsDuplicate))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsEvicted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AlertsRetained))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UnreadAlerts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Connected))
}

// stalledStorage never completes a write until released.
type stalledStorage struct {
	*kv.Memory
	release chan struct{}
}

func (s *stalledStorage) Set(ctx context.Context, key, value string) error {
	select {
	case <-s.release:
		return s.Memory.Set(ctx, key, value)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *stalledStorage) Remove(ctx context.Context, key string) error {
	select {
	case <-s.release:
		return s.Memory.Remove(ctx, key)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestSessionActionsDoNotWaitOnStorage(t *testing.T) {
	storage := &stalledStorage{Memory: kv.NewMemory(), release: make(chan struct{})}
	tracker := readstate.New(storage,
		readstate.WithLogger(quiet),
		readstate.WithTimeout(10*time.Second),
		readstate.WithAsyncWrites(),
	)
	s := New(10, tracker, WithLogger(quiet))
	s.Apply(alert("t1"))
	s.Apply(alert("t2"))

	done := make(chan struct{})
	go func() {
		s.MarkRead("t1")
		s.ClearAll()
		s.MarkAllRead()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("user actions blocked on storage")
	}

	// Snapshots stay available while writes are stalled
	assert.Equal(t, 0, s.Snapshot().Unread())

	close(storage.release)
	tracker.Close()

	raw, ok, err := storage.Get(context.Background(), readstate.DefaultKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `["t1","t2"]`, raw)
}
