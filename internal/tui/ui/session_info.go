package ui

import (
	"fmt"

	"github.com/rivo/tview"
)

// SessionData holds session information for display.
type SessionData struct {
	Session       string
	User          string
	Connection    string
	Conversations int
	Notifications int
	Pending       int
	Uptime        string
}

// SessionInfo displays session metadata in the header.
type SessionInfo struct {
	*tview.TextView
	theme *Theme
}

// NewSessionInfo creates a new session info panel.
func NewSessionInfo(theme *Theme) *SessionInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &SessionInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the session info.
func (si *SessionInfo) Update(data *SessionData) {
	si.Clear()
	if data == nil {
		return
	}

	fg := Tag(si.theme.FgColor)
	ct := Tag(si.theme.CounterColor)

	user := data.User
	if user == "" {
		user = "-"
	}
	uptime := data.Uptime
	if uptime == "" {
		uptime = "-"
	}
	notif := fmt.Sprintf("[%s]%d[-]", ct, data.Notifications)
	if data.Notifications > 0 {
		notif = fmt.Sprintf("[%s::b]%d[-:-:-]", Tag(si.theme.UnreadColor), data.Notifications)
	}

	_, _ = fmt.Fprintf(si,
		"[%s::b]Session:[-:-:-] [%s]%s[-]\n"+
			"[%s::b]User:[-:-:-]    [%s]%s[-]\n"+
			"[%s::b]Link:[-:-:-]    [%s]%s[-]\n"+
			"[%s::b]Groups:[-:-:-]  [%s]%d[-]  [%s::b]Alerts:[-:-:-] %s\n"+
			"[%s::b]Pending:[-:-:-] [%s]%d[-]\n"+
			"[%s::b]Uptime:[-:-:-]  [%s]%s[-]",
		fg, ct, tview.Escape(data.Session),
		fg, ct, tview.Escape(user),
		fg, ct, data.Connection,
		fg, ct, data.Conversations, fg, notif,
		fg, ct, data.Pending,
		fg, ct, uptime,
	)
}
