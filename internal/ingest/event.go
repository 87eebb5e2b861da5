// Package ingest connects to the alert source and normalizes incoming
// payloads into store.Alert values.
package ingest

import "github.com/polyinsider/alertfeed/internal/store"

// EventType identifies what an Event carries.
type EventType int

// Event types emitted by a source
const (
	EventAlert EventType = iota
	EventConnected
	EventDisconnected
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventAlert:
		return "alert"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Event is a single item on the source channel. Connectivity changes and
// alerts share one channel so consumers see them in delivery order.
type Event struct {
	Type  EventType
	Alert store.Alert
}

// AlertEvent wraps an alert.
func AlertEvent(a store.Alert) Event {
	return Event{Type: EventAlert, Alert: a}
}
