package store

import "sync"

// DefaultMaxAlerts is the store capacity used when none is configured.
const DefaultMaxAlerts = 50

// AlertStore is a bounded, arrival-ordered collection of alerts.
// When full, appending evicts the oldest-arrived alert.
type AlertStore struct {
	mu    sync.RWMutex
	ring  []Alert
	head  int // index of the oldest alert
	size  int
	index map[string]struct{} // timestamps currently retained
}

// NewAlertStore creates a store holding at most maxAlerts alerts.
func NewAlertStore(maxAlerts int) *AlertStore {
	if maxAlerts < 1 {
		maxAlerts = DefaultMaxAlerts
	}
	return &AlertStore{
		ring:  make([]Alert, maxAlerts),
		index: make(map[string]struct{}, maxAlerts),
	}
}

// Append adds an alert as the newest entry.
// It returns added=false when an alert with the same timestamp is already
// retained. When the store overflows, the evicted alert is returned.
func (s *AlertStore) Append(alert Alert) (added bool, evicted *Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.index[alert.Timestamp]; dup {
		return false, nil
	}

	capacity := len(s.ring)
	if s.size == capacity {
		old := s.ring[s.head]
		delete(s.index, old.Timestamp)
		s.ring[s.head] = Alert{}
		s.head = (s.head + 1) % capacity
		s.size--
		evicted = &old
	}

	s.ring[(s.head+s.size)%capacity] = alert
	s.size++
	s.index[alert.Timestamp] = struct{}{}

	return true, evicted
}

// All returns a copy of the retained alerts in arrival order (oldest first).
func (s *AlertStore) All() []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Alert, s.size)
	for i := 0; i < s.size; i++ {
		out[i] = s.ring[(s.head+i)%len(s.ring)]
	}
	return out
}

// Newest returns a copy of the retained alerts in display order (newest first).
func (s *AlertStore) Newest() []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Alert, s.size)
	for i := 0; i < s.size; i++ {
		out[s.size-1-i] = s.ring[(s.head+i)%len(s.ring)]
	}
	return out
}

// Timestamps returns the timestamps of retained alerts in arrival order.
func (s *AlertStore) Timestamps() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, s.size)
	for i := 0; i < s.size; i++ {
		out[i] = s.ring[(s.head+i)%len(s.ring)].Timestamp
	}
	return out
}

// Contains reports whether an alert with the given timestamp is retained.
func (s *AlertStore) Contains(timestamp string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[timestamp]
	return ok
}

// Len returns the number of retained alerts.
func (s *AlertStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Cap returns the store capacity.
func (s *AlertStore) Cap() int {
	return len(s.ring)
}
