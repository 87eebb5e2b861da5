// Package presenter derives everything the alert panel displays from the
// alert store contents and the read-set. It holds no state of its own.
package presenter

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/polyinsider/alertfeed/internal/store"
)

// ReadFunc reports whether the alert with the given timestamp is read.
type ReadFunc func(timestamp string) bool

// UnreadAlerts returns the alerts not yet read, preserving order.
func UnreadAlerts(alerts []store.Alert, isRead ReadFunc) []store.Alert {
	out := make([]store.Alert, 0, len(alerts))
	for _, a := range alerts {
		if !isRead(a.Timestamp) {
			out = append(out, a)
		}
	}
	return out
}

// UnreadCount returns the exact number of unread alerts.
func UnreadCount(alerts []store.Alert, isRead ReadFunc) int {
	n := 0
	for _, a := range alerts {
		if !isRead(a.Timestamp) {
			n++
		}
	}
	return n
}

// BadgeText renders an unread count for the badge: empty for zero and
// "9+" above nine.
func BadgeText(n int) string {
	switch {
	case n <= 0:
		return ""
	case n > 9:
		return "9+"
	default:
		return strconv.Itoa(n)
	}
}

// Order selects the row ordering of a View.
type Order int

const (
	// OrderNewest keeps display order: most recently arrived first.
	OrderNewest Order = iota
	// OrderSeverity sorts by severity, ties keep display order.
	OrderSeverity
)

// String returns the order name.
func (o Order) String() string {
	if o == OrderSeverity {
		return "severity"
	}
	return "newest"
}

// Filter restricts the rows of a View. The zero value shows everything.
type Filter struct {
	UnreadOnly  bool
	MinSeverity store.Severity
	Types       []store.AlertType
}

func (f Filter) match(a store.Alert, read bool) bool {
	if f.UnreadOnly && read {
		return false
	}
	if f.MinSeverity != "" && a.Severity.Rank() < f.MinSeverity.Rank() {
		return false
	}
	if len(f.Types) > 0 {
		for _, t := range f.Types {
			if a.Type == t {
				return true
			}
		}
		return false
	}
	return true
}

// Row is one display line of the panel.
type Row struct {
	Alert        store.Alert
	Read         bool
	Tier         Tier
	RelativeTime string
}

// View is the full derived state of the panel.
type View struct {
	Rows []Row

	// Totals are computed over all alerts, not just the filtered rows.
	Total      int
	Unread     int
	Badge      string
	Connected  bool
	FilterDesc string
	OrderedBy  Order
}

// Formatter renders relative times against a clock.
type Formatter interface {
	Format(timestamp string) string
}

// Build derives a View from alerts in display order.
func Build(alerts []store.Alert, isRead ReadFunc, filter Filter, order Order, f Formatter) View {
	v := View{
		Total:     len(alerts),
		OrderedBy: order,
	}

	rows := make([]Row, 0, len(alerts))
	for _, a := range alerts {
		read := isRead(a.Timestamp)
		if !read {
			v.Unread++
		}
		if !filter.match(a, read) {
			continue
		}
		rows = append(rows, Row{
			Alert:        a,
			Read:         read,
			Tier:         TierFor(a.Severity),
			RelativeTime: f.Format(a.Timestamp),
		})
	}

	if order == OrderSeverity {
		sort.SliceStable(rows, func(i, j int) bool {
			return rows[i].Alert.Severity.Rank() > rows[j].Alert.Severity.Rank()
		})
	}

	v.Rows = rows
	v.Badge = BadgeText(v.Unread)
	v.FilterDesc = describe(filter)
	return v
}

func describe(f Filter) string {
	desc := "all"
	if f.UnreadOnly {
		desc = "unread"
	}
	if f.MinSeverity != "" {
		desc += fmt.Sprintf(", >= %s", f.MinSeverity)
	}
	if len(f.Types) > 0 {
		desc += fmt.Sprintf(", %d types", len(f.Types))
	}
	return desc
}
