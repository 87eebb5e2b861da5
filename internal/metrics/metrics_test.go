package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAlert("high")
	m.ObserveDiscarded(3)
	m.ObserveParseError()
	m.ObserveDuplicate()
	m.ObserveEvicted()
	m.SetRetained(1)
	m.SetUnread(1)
	m.SetConnected(true)
	m.ObserveReconnect()
	m.ObserveStorageError("save")
}

func TestMetricsRecording(t *testing.T) {
	m := New(prometheus.NewRegistry(), "")

	m.ObserveAlert("critical")
	m.ObserveAlert("critical")
	m.ObserveAlert("low")
	m.ObserveDiscarded(2)
	m.ObserveDiscarded(0)
	m.ObserveEvicted()
	m.SetConnected(true)
	m.SetUnread(7)
	m.ObserveStorageError("load")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AlertsReceived.WithLabelValues("critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsReceived.WithLabelValues("low")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AlertsDiscarded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AlertsEvicted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Connected))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.UnreadAlerts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StorageErrors.WithLabelValues("load")))

	m.SetConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Connected))
}

func TestMetricsHandler(t *testing.T) {
	m := New(nil, "test")
	m.ObserveReconnect()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "test_stream_reconnect_attempts_total 1"))
}
