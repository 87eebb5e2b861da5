package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/polyinsider/alertfeed/internal/presenter"
)

// AlertPanel lists the alerts of the current view.
type AlertPanel struct {
	list *tview.List
	rows []presenter.Row
}

// NewAlertPanel creates an empty alert panel.
func NewAlertPanel() *AlertPanel {
	list := tview.NewList().
		ShowSecondaryText(true)

	list.SetTitle(" 🚨 Alerts ").SetBorder(true)
	list.SetMainTextColor(tcell.ColorWhite)
	list.SetSecondaryTextColor(tcell.ColorGray)

	return &AlertPanel{list: list}
}

// Widget returns the tview primitive.
func (p *AlertPanel) Widget() tview.Primitive {
	return p.list
}

// Update rebuilds the list from v, keeping the selection on the same alert
// when it is still visible.
func (p *AlertPanel) Update(v presenter.View) {
	selected := p.Selected()

	p.rows = v.Rows
	p.list.Clear()
	p.list.SetTitle(fmt.Sprintf(" 🚨 Alerts %s(%d/%d) ", badgeTag(v.Badge), len(v.Rows), v.Total))

	if len(v.Rows) == 0 {
		if v.Total == 0 {
			p.list.AddItem("No alerts yet", "", 0, nil)
		} else {
			p.list.AddItem("No alerts match the filter", "", 0, nil)
		}
		return
	}

	for i, row := range v.Rows {
		mainText, secondaryText := formatRow(row)
		p.list.AddItem(mainText, secondaryText, 0, nil)
		if row.Alert.Timestamp == selected && selected != "" {
			p.list.SetCurrentItem(i)
		}
	}
}

// Selected returns the timestamp of the highlighted alert, or "".
func (p *AlertPanel) Selected() string {
	i := p.list.GetCurrentItem()
	if i < 0 || i >= len(p.rows) {
		return ""
	}
	return p.rows[i].Alert.Timestamp
}

// formatRow renders one row. Unread rows carry the severity color, read rows
// are dimmed.
func formatRow(row presenter.Row) (string, string) {
	a := row.Alert

	color := colorTag(row.Tier.Color)
	marker := "●"
	if row.Read {
		color = "[gray]"
		marker = " "
	}

	title := a.Title
	if title == "" {
		title = a.Type.Label()
	}

	mainText := fmt.Sprintf("%s%s %s %s %s[-] %s",
		color, marker, row.Tier.Icon, row.Tier.Label, tview.Escape(title), presenter.TypeIcon(a.Type))

	secondaryText := row.RelativeTime
	if a.Message != "" {
		secondaryText += " | " + tview.Escape(truncate(a.Message, 96))
	}
	if a.PolymarketURL != "" {
		secondaryText += " | ↗"
	}
	return mainText, secondaryText
}

func colorTag(c tcell.Color) string {
	if !c.Valid() {
		return "[white]"
	}
	return fmt.Sprintf("[#%06x]", c.Hex())
}

func badgeTag(badge string) string {
	if badge == "" {
		return ""
	}
	return fmt.Sprintf("[red]%s[-] ", badge)
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
