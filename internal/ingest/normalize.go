package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/polyinsider/alertfeed/internal/store"
)

// Field precedence used by Normalize. The first key holding a non-empty
// value wins.
var (
	timestampKeys = []string{"timestamp", "time", "created_at", "createdAt", "ts"}
	typeKeys      = []string{"type", "alert_type", "alertType", "kind"}
	severityKeys  = []string{"severity", "level", "priority"}
	titleKeys     = []string{"title", "headline", "name"}
	messageKeys   = []string{"message", "description", "body", "detail"}
	urlKeys       = []string{"polymarketUrl", "polymarket_url", "url", "market_url", "marketUrl"}

	// envelopeKeys hold the alert payload when a message is wrapped.
	envelopeKeys = []string{"alerts", "data", "alert"}
)

// Normalize converts a decoded payload into an Alert.
// It returns ok=false only when no timestamp can be found, since the
// timestamp is the alert's identity. Every other field is defaulted.
// The timestamp is kept as an opaque string and never validated here.
func Normalize(raw map[string]any) (store.Alert, bool) {
	ts := firstString(raw, timestampKeys)
	if ts == "" {
		return store.Alert{}, false
	}

	alertType := normalizeType(firstString(raw, typeKeys))

	title := firstString(raw, titleKeys)
	if title == "" {
		title = alertType.Label()
	}

	return store.Alert{
		Timestamp:     ts,
		Type:          alertType,
		Severity:      store.ParseSeverity(firstString(raw, severityKeys)),
		Title:         title,
		Message:       firstString(raw, messageKeys),
		PolymarketURL: firstString(raw, urlKeys),
	}, true
}

// ParseMessage decodes a raw stream message into alerts.
//
// Accepted shapes: a JSON array of alert objects, an envelope object whose
// "alerts", "data" or "alert" key holds an object or array, or a bare alert
// object. Payloads without a timestamp (heartbeats, acks) are counted as
// discarded. Only input that is not JSON returns an error.
func ParseMessage(data []byte) ([]store.Alert, int, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	payloads := unwrap(v)
	alerts := make([]store.Alert, 0, len(payloads))
	discarded := 0

	for _, p := range payloads {
		obj, ok := p.(map[string]any)
		if !ok {
			discarded++
			continue
		}
		alert, ok := Normalize(obj)
		if !ok {
			discarded++
			continue
		}
		alerts = append(alerts, alert)
	}

	return alerts, discarded, nil
}

// unwrap flattens the accepted message shapes into candidate payloads.
func unwrap(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case map[string]any:
		// A timestamp at the top level means this is the alert itself
		if firstString(t, timestampKeys) != "" {
			return []any{t}
		}
		for _, key := range envelopeKeys {
			switch inner := t[key].(type) {
			case []any:
				return inner
			case map[string]any:
				return []any{inner}
			}
		}
		return []any{t}
	default:
		return []any{v}
	}
}

// normalizeType folds case and separators. Empty input becomes other.
func normalizeType(raw string) store.AlertType {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return store.TypeOther
	}
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return store.AlertType(s)
}

// firstString returns the first non-empty value among keys, rendered as a
// string. Numbers keep their original decimal form.
func firstString(raw map[string]any, keys []string) string {
	for _, key := range keys {
		if s := stringValue(raw[key]); s != "" {
			return s
		}
	}
	return ""
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
