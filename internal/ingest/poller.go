package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/polyinsider/alertfeed/internal/metrics"
)

const (
	// DefaultPollInterval is the default polling interval
	DefaultPollInterval = 3 * time.Second

	// maxPollBody caps the response size read per poll
	maxPollBody = 4 << 20
)

// Poller polls an HTTP endpoint returning recent alerts as JSON.
// Any shape accepted by ParseMessage is accepted. Replayed alerts are
// forwarded as-is; the alert store drops duplicates.
type Poller struct {
	url      string
	client   *http.Client
	interval time.Duration
	events   chan<- Event
	metrics  *metrics.Metrics

	connected bool
}

// NewPoller creates a new Poller.
func NewPoller(url string, interval time.Duration, events chan<- Event, m *metrics.Metrics) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	return &Poller{
		url:      url,
		client:   &http.Client{Timeout: 10 * time.Second},
		interval: interval,
		events:   events,
		metrics:  m,
	}
}

// Start polls until ctx is cancelled. It blocks.
func (p *Poller) Start(ctx context.Context) {
	slog.Info("starting_alert_poller", "url", p.url, "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("alert_poller_stopped")
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

// pollOnce runs one poll and reports a lost connection.
func (p *Poller) pollOnce(ctx context.Context) {
	err := p.poll(ctx)
	if ctx.Err() != nil {
		return
	}

	switch {
	case err != nil && p.connected:
		slog.Warn("poll_failed", "error", err)
		p.connected = false
		p.metrics.ObserveReconnect()
		p.send(ctx, Event{Type: EventDisconnected})
	case err != nil:
		slog.Debug("poll_failed", "error", err)
	}
}

// poll fetches the endpoint and forwards normalized alerts. The connected
// event precedes the alerts of the first successful poll.
func (p *Poller) poll(ctx context.Context) error {
	body, err := p.fetch(ctx)
	if err != nil {
		return err
	}

	alerts, discarded, err := ParseMessage(body)
	if err != nil {
		p.metrics.ObserveParseError()
		return fmt.Errorf("decode failed: %w", err)
	}
	if discarded > 0 {
		p.metrics.ObserveDiscarded(discarded)
	}

	if !p.connected {
		p.connected = true
		if !p.send(ctx, Event{Type: EventConnected}) {
			return nil
		}
	}

	for _, alert := range alerts {
		if !p.send(ctx, AlertEvent(alert)) {
			return nil
		}
		p.metrics.ObserveAlert(string(alert.Severity))
	}

	slog.Debug("alerts_polled", "count", len(alerts), "discarded", discarded)
	return nil
}

// fetch performs the HTTP request and returns the response body.
func (p *Poller) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPollBody))
	if err != nil {
		return nil, fmt.Errorf("read body failed: %w", err)
	}
	return body, nil
}

// send blocks until the consumer accepts the event or ctx ends.
func (p *Poller) send(ctx context.Context, ev Event) bool {
	select {
	case p.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
