package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/polyinsider/alertfeed/internal/metrics"
)

// Reconnection and heartbeat defaults
const (
	InitialBackoff = 1 * time.Second
	MaxBackoff     = 60 * time.Second
	BackoffFactor  = 2.0
	JitterPercent  = 0.2

	HeartbeatTimeout = 60 * time.Second
	PongTimeout      = 10 * time.Second

	WriteTimeout = 10 * time.Second
)

// ListenerConfig configures the WebSocket listener. Zero durations fall
// back to the package defaults.
type ListenerConfig struct {
	URL string

	// Origin is sent as the Origin header when set.
	Origin string

	// Subscribe is an optional raw JSON message sent after every connect.
	Subscribe string

	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	HeartbeatTimeout time.Duration
	HeartbeatCheck   time.Duration
}

func (c *ListenerConfig) withDefaults() ListenerConfig {
	out := *c
	if out.InitialBackoff <= 0 {
		out.InitialBackoff = InitialBackoff
	}
	if out.MaxBackoff <= 0 {
		out.MaxBackoff = MaxBackoff
	}
	if out.HeartbeatTimeout <= 0 {
		out.HeartbeatTimeout = HeartbeatTimeout
	}
	if out.HeartbeatCheck <= 0 {
		out.HeartbeatCheck = 10 * time.Second
	}
	return out
}

// Listener manages the WebSocket connection to the alert source.
// Reconnection is automatic; consumers only observe connected and
// disconnected events on the channel.
type Listener struct {
	cfg     ListenerConfig
	events  chan<- Event
	metrics *metrics.Metrics

	conn      *websocket.Conn
	connMu    sync.Mutex
	backoff   time.Duration
	lastMsg   time.Time
	lastMsgMu sync.RWMutex

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewListener creates a new WebSocket listener sending to events.
func NewListener(cfg ListenerConfig, events chan<- Event, m *metrics.Metrics) *Listener {
	cfg = cfg.withDefaults()
	return &Listener{
		cfg:      cfg,
		events:   events,
		metrics:  m,
		backoff:  cfg.InitialBackoff,
		stopChan: make(chan struct{}),
	}
}

// Start begins the WebSocket listener with automatic reconnection.
func (l *Listener) Start(ctx context.Context) {
	l.wg.Add(1)
	go l.runLoop(ctx)

	l.wg.Add(1)
	go l.heartbeatMonitor(ctx)
}

// Stop releases the connection and waits for the listener goroutines.
// No event is sent after Stop returns.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopChan)
	})
	l.closeConnection()
	l.wg.Wait()
}

// runLoop handles connection, reading, and reconnection.
func (l *Listener) runLoop(ctx context.Context) {
	defer l.wg.Done()

	for {
		if l.stopping(ctx) {
			slog.Info("ws_loop_stopping")
			return
		}

		if err := l.connect(ctx); err != nil {
			slog.Error("ws_connect_failed", "error", err, "backoff", l.backoff)
			l.waitBackoff(ctx)
			continue
		}

		if !l.send(ctx, Event{Type: EventConnected}) {
			l.closeConnection()
			return
		}

		if err := l.readLoop(ctx); err != nil && !l.stopping(ctx) {
			slog.Warn("ws_read_error", "error", err)
		}

		l.closeConnection()

		// Best effort: the consumer may already be gone on shutdown
		if !l.send(ctx, Event{Type: EventDisconnected}) {
			return
		}

		l.waitBackoff(ctx)
	}
}

// connect establishes the WebSocket connection and sends the subscription.
func (l *Listener) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	headers := http.Header{}
	if l.cfg.Origin != "" {
		headers.Set("Origin", l.cfg.Origin)
	}

	conn, resp, err := dialer.DialContext(ctx, l.cfg.URL, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("dial failed: %w", err)
	}

	conn.SetPongHandler(func(string) error {
		l.updateLastMsg()
		return nil
	})

	l.connMu.Lock()
	l.conn = conn
	l.connMu.Unlock()

	// Reset backoff on successful connection
	l.backoff = l.cfg.InitialBackoff

	slog.Info("ws_connected", "endpoint", l.cfg.URL)

	if err := l.subscribe(); err != nil {
		l.closeConnection()
		return fmt.Errorf("subscribe failed: %w", err)
	}

	l.updateLastMsg()
	return nil
}

// subscribe sends the configured subscription message, if any.
func (l *Listener) subscribe() error {
	if l.cfg.Subscribe == "" {
		return nil
	}

	l.connMu.Lock()
	defer l.connMu.Unlock()

	if l.conn == nil {
		return fmt.Errorf("connection is nil")
	}

	l.conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
	if err := l.conn.WriteMessage(websocket.TextMessage, []byte(l.cfg.Subscribe)); err != nil {
		return fmt.Errorf("failed to send subscribe message: %w", err)
	}

	slog.Info("ws_subscribed")
	return nil
}

// readLoop reads messages until the connection fails or the listener stops.
func (l *Listener) readLoop(ctx context.Context) error {
	for {
		if l.stopping(ctx) {
			return nil
		}

		l.connMu.Lock()
		conn := l.conn
		l.connMu.Unlock()

		if conn == nil {
			return fmt.Errorf("connection is nil")
		}

		conn.SetReadDeadline(time.Now().Add(l.cfg.HeartbeatTimeout + PongTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read error: %w", err)
		}

		l.updateLastMsg()

		if !l.handleMessage(ctx, message) {
			return nil
		}
	}
}

// handleMessage normalizes a message and forwards its alerts in order.
// It returns false when the listener is stopping.
func (l *Listener) handleMessage(ctx context.Context, data []byte) bool {
	alerts, discarded, err := ParseMessage(data)
	if err != nil {
		l.metrics.ObserveParseError()
		slog.Debug("ws_parse_error", "error", err, "raw", truncate(string(data), 200))
		return true
	}

	if discarded > 0 {
		l.metrics.ObserveDiscarded(discarded)
		slog.Debug("ws_payload_discarded", "count", discarded)
	}

	for _, alert := range alerts {
		if !l.send(ctx, AlertEvent(alert)) {
			return false
		}
		l.metrics.ObserveAlert(string(alert.Severity))
		slog.Debug("alert_received",
			"timestamp", alert.Timestamp,
			"type", alert.Type,
			"severity", alert.Severity,
		)
	}
	return true
}

// send blocks until the consumer accepts the event or the listener stops.
func (l *Listener) send(ctx context.Context, ev Event) bool {
	if l.stopping(ctx) {
		return false
	}
	select {
	case l.events <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-l.stopChan:
		return false
	}
}

// heartbeatMonitor checks for connection health.
func (l *Listener) heartbeatMonitor(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.cfg.HeartbeatCheck)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.checkHeartbeat()
		}
	}
}

// checkHeartbeat pings the server when it has been silent too long.
func (l *Listener) checkHeartbeat() {
	l.lastMsgMu.RLock()
	lastMsg := l.lastMsg
	l.lastMsgMu.RUnlock()

	if lastMsg.IsZero() {
		return
	}

	elapsed := time.Since(lastMsg)
	if elapsed > l.cfg.HeartbeatTimeout {
		slog.Warn("ws_heartbeat_timeout", "elapsed", elapsed)

		l.connMu.Lock()
		conn := l.conn
		var err error
		if conn != nil {
			conn.SetWriteDeadline(time.Now().Add(WriteTimeout))
			err = conn.WriteMessage(websocket.PingMessage, nil)
		}
		l.connMu.Unlock()

		if err != nil {
			slog.Warn("ws_ping_failed", "error", err)
			l.closeConnection()
		}
	}
}

// updateLastMsg updates the last message timestamp.
func (l *Listener) updateLastMsg() {
	l.lastMsgMu.Lock()
	l.lastMsg = time.Now()
	l.lastMsgMu.Unlock()
}

// closeConnection safely closes the WebSocket connection.
func (l *Listener) closeConnection() {
	l.connMu.Lock()
	defer l.connMu.Unlock()

	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
		slog.Info("ws_disconnected")
	}
}

// waitBackoff waits for the backoff duration with jitter.
func (l *Listener) waitBackoff(ctx context.Context) {
	jitter := time.Duration(float64(l.backoff) * JitterPercent * (rand.Float64()*2 - 1))
	wait := l.backoff + jitter

	slog.Debug("ws_waiting_backoff", "duration", wait)
	l.metrics.ObserveReconnect()

	select {
	case <-ctx.Done():
	case <-l.stopChan:
	case <-time.After(wait):
	}

	// Increase backoff for next attempt
	l.backoff = time.Duration(float64(l.backoff) * BackoffFactor)
	if l.backoff > l.cfg.MaxBackoff {
		l.backoff = l.cfg.MaxBackoff
	}
}

func (l *Listener) stopping(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-l.stopChan:
		return true
	default:
		return false
	}
}

// truncate shortens a string for logging.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
