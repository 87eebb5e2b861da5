// Package metrics provides Prometheus metrics for the alert feed.
//
// All recording methods are safe to call on a nil *Metrics, so components
// can be constructed without metrics in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "alertfeed"

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	AlertsReceived  *prometheus.CounterVec
	AlertsDiscarded prometheus.Counter
	ParseErrors     prometheus.Counter

	// Store metrics
	AlertsDuplicate prometheus.Counter
	AlertsEvicted   prometheus.Counter
	AlertsRetained  prometheus.Gauge
	UnreadAlerts    prometheus.Gauge

	// Connectivity metrics
	Connected  prometheus.Gauge
	Reconnects prometheus.Counter

	// Storage metrics
	StorageErrors *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates a Metrics instance registered with reg. A nil reg uses a
// fresh private registry.
func New(reg *prometheus.Registry, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	f := promauto.With(reg)

	return &Metrics{
		AlertsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "alerts_received_total",
			Help:      "Total number of normalized alerts received, by severity",
		}, []string{"severity"}),
		AlertsDiscarded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "alerts_discarded_total",
			Help:      "Total number of payloads discarded during normalization",
		}),
		ParseErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "parse_errors_total",
			Help:      "Total number of stream messages that were not valid JSON",
		}),
		AlertsDuplicate: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "alerts_duplicate_total",
			Help:      "Total number of alerts rejected because their timestamp was already retained",
		}),
		AlertsEvicted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "alerts_evicted_total",
			Help:      "Total number of alerts evicted by the capacity bound",
		}),
		AlertsRetained: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "alerts_retained",
			Help:      "Number of alerts currently retained",
		}),
		UnreadAlerts: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "alerts_unread",
			Help:      "Number of retained alerts not yet read",
		}),
		Connected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "connected",
			Help:      "1 when the alert stream is connected",
		}),
		Reconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnect_attempts_total",
			Help:      "Total number of stream reconnection attempts",
		}),
		StorageErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "readstate",
			Name:      "storage_errors_total",
			Help:      "Total number of read-state storage failures, by operation",
		}, []string{"op"}),
		gatherer: reg,
	}
}

// Handler returns an HTTP handler exposing the registered metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveAlert counts a normalized alert.
func (m *Metrics) ObserveAlert(severity string) {
	if m == nil {
		return
	}
	m.AlertsReceived.WithLabelValues(severity).Inc()
}

// ObserveDiscarded counts payloads dropped by normalization.
func (m *Metrics) ObserveDiscarded(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.AlertsDiscarded.Add(float64(n))
}

// ObserveParseError counts a message that could not be decoded.
func (m *Metrics) ObserveParseError() {
	if m == nil {
		return
	}
	m.ParseErrors.Inc()
}

// ObserveDuplicate counts an alert rejected as a duplicate.
func (m *Metrics) ObserveDuplicate() {
	if m == nil {
		return
	}
	m.AlertsDuplicate.Inc()
}

// ObserveEvicted counts a capacity eviction.
func (m *Metrics) ObserveEvicted() {
	if m == nil {
		return
	}
	m.AlertsEvicted.Inc()
}

// SetRetained records the store size.
func (m *Metrics) SetRetained(n int) {
	if m == nil {
		return
	}
	m.AlertsRetained.Set(float64(n))
}

// SetUnread records the unread count.
func (m *Metrics) SetUnread(n int) {
	if m == nil {
		return
	}
	m.UnreadAlerts.Set(float64(n))
}

// SetConnected records stream connectivity.
func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.Connected.Set(1)
	} else {
		m.Connected.Set(0)
	}
}

// ObserveReconnect counts a reconnection attempt.
func (m *Metrics) ObserveReconnect() {
	if m == nil {
		return
	}
	m.Reconnects.Inc()
}

// ObserveStorageError counts a failed storage operation (load, save, clear).
func (m *Metrics) ObserveStorageError(op string) {
	if m == nil {
		return
	}
	m.StorageErrors.WithLabelValues(op).Inc()
}
