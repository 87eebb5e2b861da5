package presenter

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Relative time placeholders
const (
	UnknownTime = "Unknown time"
	JustNow     = "Just now"

	// DateLayout renders absolute dates, month/day/year.
	DateLayout = "1/2/2006"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses a source timestamp: RFC3339 and common ISO layouts,
// or unix seconds / milliseconds. Layouts without a zone are read as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
		if ts > 1e12 {
			return time.UnixMilli(ts), true
		}
		return time.Unix(ts, 0), true
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatRelativeTime renders timestamp relative to now. It never fails:
// unparseable input yields "Unknown time" and future times "Just now".
func FormatRelativeTime(timestamp string, now time.Time, loc *time.Location) string {
	t, ok := ParseTimestamp(timestamp)
	if !ok {
		return UnknownTime
	}
	if loc == nil {
		loc = time.Local
	}

	diff := now.Sub(t)
	switch {
	case diff < 0:
		return JustNow
	case diff > 365*24*time.Hour:
		return t.In(loc).Format(DateLayout)
	case diff < time.Minute:
		return JustNow
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff/time.Minute))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff/time.Hour))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff/(24*time.Hour)))
	default:
		return t.In(loc).Format(DateLayout)
	}
}

// Clock formats relative times against a time source.
type Clock struct {
	Now      func() time.Time
	Location *time.Location
}

// Format implements Formatter.
func (c Clock) Format(timestamp string) string {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return FormatRelativeTime(timestamp, now(), c.Location)
}
