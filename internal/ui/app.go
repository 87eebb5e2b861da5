// Package ui provides the terminal alert panel.
package ui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/polyinsider/alertfeed/internal/feed"
	"github.com/polyinsider/alertfeed/internal/presenter"
)

// Position is the screen corner the alert panel is anchored to.
type Position string

// Panel positions
const (
	TopRight    Position = "top-right"
	TopLeft     Position = "top-left"
	BottomRight Position = "bottom-right"
	BottomLeft  Position = "bottom-left"
)

// ParsePosition parses a position name, defaulting to top-right.
func ParsePosition(s string) Position {
	switch p := Position(strings.ToLower(strings.TrimSpace(s))); p {
	case TopLeft, BottomRight, BottomLeft:
		return p
	default:
		return TopRight
	}
}

func (p Position) top() bool   { return p == TopRight || p == TopLeft }
func (p Position) right() bool { return p == TopRight || p == BottomRight }

// Options configures the App.
type Options struct {
	Position Position
	Refresh  time.Duration
	Opener   Opener
}

// App is the main TUI application.
type App struct {
	app     *tview.Application
	root    *tview.Flex
	content *tview.Flex
	idle    *tview.TextView

	// Views
	panel  *AlertPanel
	status *StatusBar

	session  *feed.Session
	opener   Opener
	position Position
	refresh  time.Duration
	clock    presenter.Clock
	started  time.Time

	// View state, only touched from the tview event loop
	filter presenter.Filter
	order  presenter.Order
	open   bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates a new TUI application over session.
func NewApp(session *feed.Session, opts Options) *App {
	ctx, cancel := context.WithCancel(context.Background())

	if opts.Refresh <= 0 {
		opts.Refresh = 500 * time.Millisecond
	}
	if opts.Opener == nil {
		opts.Opener = BrowserOpener{}
	}

	a := &App{
		app:      tview.NewApplication(),
		panel:    NewAlertPanel(),
		status:   NewStatusBar(),
		session:  session,
		opener:   opts.Opener,
		position: ParsePosition(string(opts.Position)),
		refresh:  opts.Refresh,
		clock:    presenter.Clock{Now: time.Now},
		started:  time.Now(),
		ctx:      ctx,
		cancel:   cancel,
	}

	a.idle = tview.NewTextView().SetDynamicColors(true)
	fmt.Fprint(a.idle, "[gray]Press a to open the alert panel[-]")

	a.setupLayout()
	a.setupKeyboard()
	a.render()

	return a
}

// setupLayout creates the content area above a one-line status bar.
func (a *App) setupLayout() {
	a.content = tview.NewFlex()

	a.root = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.content, 0, 1, true).
		AddItem(a.status.Widget(), 1, 0, false)

	a.layoutContent()
	a.app.SetRoot(a.root, true)
}

// layoutContent places the panel in its corner when open.
func (a *App) layoutContent() {
	a.content.Clear()

	if !a.open {
		a.content.AddItem(a.idle, 0, 1, false)
		return
	}

	column := tview.NewFlex().SetDirection(tview.FlexRow)
	if a.position.top() {
		column.AddItem(a.panel.Widget(), 0, 3, true).AddItem(nil, 0, 1, false)
	} else {
		column.AddItem(nil, 0, 1, false).AddItem(a.panel.Widget(), 0, 3, true)
	}

	if a.position.right() {
		a.content.AddItem(nil, 0, 1, false).AddItem(column, 0, 2, true)
	} else {
		a.content.AddItem(column, 0, 2, true).AddItem(nil, 0, 1, false)
	}
	a.app.SetFocus(a.panel.Widget())
}

// setupKeyboard configures keyboard shortcuts.
func (a *App) setupKeyboard() {
	a.app.SetInputCapture(a.handleKey)
}

// action is a user command bound to a key.
type action int

const (
	actionNone action = iota
	actionQuit
	actionToggle
	actionClose
	actionOpenSelected
	actionMarkAllRead
	actionClearAll
	actionUnreadOnly
	actionSort
)

// keyAction maps a key press to its command.
func keyAction(key tcell.Key, r rune) action {
	switch key {
	case tcell.KeyCtrlC:
		return actionQuit
	case tcell.KeyEscape:
		return actionClose
	case tcell.KeyEnter:
		return actionOpenSelected
	case tcell.KeyRune:
		switch r {
		case 'q', 'Q':
			return actionQuit
		case 'a', 'A':
			return actionToggle
		case 'm', 'M':
			return actionMarkAllRead
		case 'c', 'C':
			return actionClearAll
		case 'u', 'U':
			return actionUnreadOnly
		case 's', 'S':
			return actionSort
		}
	}
	return actionNone
}

// handleKey runs on the tview event loop.
func (a *App) handleKey(event *tcell.EventKey) *tcell.EventKey {
	act := keyAction(event.Key(), event.Rune())
	if act == actionNone || (act == actionOpenSelected && !a.open) {
		return event
	}
	a.perform(act)
	return nil
}

func (a *App) perform(act action) {
	switch act {
	case actionQuit:
		a.Stop()
		return
	case actionToggle:
		a.session.Toggle()
	case actionClose:
		a.session.Close()
	case actionOpenSelected:
		a.openSelected()
	case actionMarkAllRead:
		a.session.MarkAllRead()
	case actionClearAll:
		a.session.ClearAll()
	case actionUnreadOnly:
		a.filter.UnreadOnly = !a.filter.UnreadOnly
	case actionSort:
		if a.order == presenter.OrderNewest {
			a.order = presenter.OrderSeverity
		} else {
			a.order = presenter.OrderNewest
		}
	}
	a.render()
}

// openSelected marks the highlighted alert read and follows its link.
func (a *App) openSelected() {
	ts := a.panel.Selected()
	if ts == "" {
		return
	}
	url := a.session.MarkRead(ts)
	if url == "" {
		return
	}
	if err := a.opener.Open(url); err != nil {
		slog.Warn("open_url_failed", "url", url, "error", err)
	}
}

// render redraws every view from a fresh session snapshot.
func (a *App) render() {
	snap := a.session.Snapshot()

	if snap.Open != a.open {
		a.open = snap.Open
		a.layoutContent()
	}

	view := presenter.Build(snap.Alerts, snap.IsRead, a.filter, a.order, a.clock)
	view.Connected = snap.Connected

	a.panel.Update(view)
	a.status.Update(view, time.Since(a.started))
}

// Run starts the TUI application (blocking).
func (a *App) Run() error {
	go a.updateLoop()
	go a.watchPanel()

	if err := a.app.Run(); err != nil {
		return fmt.Errorf("app run failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the application.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

// Done is closed once the application stops.
func (a *App) Done() <-chan struct{} {
	return a.ctx.Done()
}

// updateLoop periodically redraws so new alerts and relative times show up.
func (a *App) updateLoop() {
	ticker := time.NewTicker(a.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.app.QueueUpdateDraw(a.render)
		}
	}
}

// watchPanel redraws on open/closed changes made outside the key handler.
func (a *App) watchPanel() {
	events := a.session.Subscribe()
	for {
		select {
		case <-a.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			slog.Debug("panel_toggled", "open", ev.IsOpen)
			a.app.QueueUpdateDraw(a.render)
		}
	}
}
