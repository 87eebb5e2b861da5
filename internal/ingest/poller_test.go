package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestPollerReportsConnectivityAndAlerts(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.Write([]byte(`[{"timestamp":"t1"},{"timestamp":"t2"}]`))
		case 2:
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		default:
			// Replay plus one new alert
			w.Write([]byte(`{"alerts":[{"timestamp":"t2"},{"timestamp":"t3"}]}`))
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event)
	p := NewPoller(server.URL, 20*time.Millisecond, events, nil)
	go p.Start(ctx)

	want := []struct {
		typ EventType
		ts  string
	}{
		{EventConnected, ""},
		{EventAlert, "t1"},
		{EventAlert, "t2"},
		{EventDisconnected, ""},
		{EventConnected, ""},
		{EventAlert, "t2"},
		{EventAlert, "t3"},
	}
	for i, w := range want {
		ev := nextEvent(t, events)
		if ev.Type != w.typ || ev.Alert.Timestamp != w.ts {
			t.Fatalf("event %d = %s %q, want %s %q", i, ev.Type, ev.Alert.Timestamp, w.typ, w.ts)
		}
	}
}

func TestPollerSilentUntilFirstSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event, 10)
	p := NewPoller(server.URL, 10*time.Millisecond, events, nil)
	go p.Start(ctx)

	time.Sleep(100 * time.Millisecond)
	if len(events) != 0 {
		t.Errorf("expected no events while never connected, got %d", len(events))
	}
}
