package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/polyinsider/alertfeed/internal/presenter"
)

const keyHelp = "[a]toggle [enter]open [m]read all [c]clear [u]unread [s]sort [q]quit"

// StatusBar shows connectivity, unread counts and key help.
type StatusBar struct {
	textView *tview.TextView
}

// NewStatusBar creates a new status bar.
func NewStatusBar() *StatusBar {
	textView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false)

	return &StatusBar{textView: textView}
}

// Widget returns the tview primitive.
func (b *StatusBar) Widget() tview.Primitive {
	return b.textView
}

// Update refreshes the status line.
func (b *StatusBar) Update(v presenter.View, uptime time.Duration) {
	b.textView.Clear()
	fmt.Fprint(b.textView, statusText(v, uptime))
}

func statusText(v presenter.View, uptime time.Duration) string {
	status, color := "disconnected", "red"
	if v.Connected {
		status, color = "connected", "green"
	}

	badge := "🔔"
	if v.Badge != "" {
		badge = fmt.Sprintf("🔔[red]%s[-]", v.Badge)
	}

	return fmt.Sprintf("%s [%s]%s[-] | %d alerts, %d unread | %s by %s | up %s | %s",
		badge,
		color, status,
		v.Total, v.Unread,
		v.FilterDesc, v.OrderedBy,
		formatDuration(uptime),
		tview.Escape(keyHelp),
	)
}

// formatDuration formats a duration in human-readable form.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
