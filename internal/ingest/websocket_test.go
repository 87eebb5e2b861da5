package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func fastConfig(url string) ListenerConfig {
	return ListenerConfig{
		URL:            url,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
		HeartbeatCheck: time.Second,
	}
}

// nextEvent waits for one event or fails the test.
func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestListenerForwardsAlerts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte(`{"timestamp":"t1","type":"whale_trade","severity":"high"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"pong"}`))
		conn.WriteMessage(websocket.TextMessage, []byte(`garbage`))
		conn.WriteMessage(websocket.TextMessage, []byte(`[{"timestamp":"t2"},{"timestamp":"t3"}]`))

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	events := make(chan Event)
	l := NewListener(fastConfig(wsURL(server)), events, nil)
	l.Start(context.Background())
	defer l.Stop()

	if ev := nextEvent(t, events); ev.Type != EventConnected {
		t.Fatalf("first event = %s, want connected", ev.Type)
	}
	for _, want := range []string{"t1", "t2", "t3"} {
		ev := nextEvent(t, events)
		if ev.Type != EventAlert || ev.Alert.Timestamp != want {
			t.Fatalf("got %s %q, want alert %q", ev.Type, ev.Alert.Timestamp, want)
		}
	}
}

func TestListenerSendsSubscription(t *testing.T) {
	got := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		got <- string(msg)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	cfg := fastConfig(wsURL(server))
	cfg.Subscribe = `{"type":"subscribe","channel":"alerts"}`

	events := make(chan Event, 10)
	l := NewListener(cfg, events, nil)
	l.Start(context.Background())
	defer l.Stop()

	select {
	case msg := <-got:
		if msg != cfg.Subscribe {
			t.Errorf("subscription = %q", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no subscription received")
	}
}

func TestListenerReconnects(t *testing.T) {
	var connections atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := connections.Add(1)

		if n == 1 {
			conn.WriteMessage(websocket.TextMessage, []byte(`{"timestamp":"t1"}`))
			// Drop the connection to simulate a transport failure
			conn.Close()
			return
		}

		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"timestamp":"t2"}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	events := make(chan Event)
	l := NewListener(fastConfig(wsURL(server)), events, nil)
	l.Start(context.Background())
	defer l.Stop()

	want := []struct {
		typ EventType
		ts  string
	}{
		{EventConnected, ""},
		{EventAlert, "t1"},
		{EventDisconnected, ""},
		{EventConnected, ""},
		{EventAlert, "t2"},
	}
	for i, w := range want {
		ev := nextEvent(t, events)
		if ev.Type != w.typ || ev.Alert.Timestamp != w.ts {
			t.Fatalf("event %d = %s %q, want %s %q", i, ev.Type, ev.Alert.Timestamp, w.typ, w.ts)
		}
	}
}

func TestListenerStopWithBlockedConsumer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"timestamp":"t1"}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	// Nobody reads: the listener blocks on its first send
	events := make(chan Event)
	l := NewListener(fastConfig(wsURL(server)), events, nil)
	l.Start(context.Background())
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		l.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}

	select {
	case ev := <-events:
		t.Errorf("event %s delivered after Stop", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}
