package ui

import (
	"fmt"

	"github.com/rivo/tview"
)

// Logo is the deck mark in the header. Its caption names the daemon
// session the TUI is attached to.
type Logo struct {
	*tview.TextView
	theme   *Theme
	session string
}

// NewLogo creates the header logo with no session attached yet.
func NewLogo(theme *Theme) *Logo {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(1, 0, 1, 0)

	l := &Logo{
		TextView: tv,
		theme:    theme,
	}
	l.render()
	return l
}

// SetSession updates the caption. Redraws only when the name changes.
func (l *Logo) SetSession(name string) {
	if name == l.session {
		return
	}
	l.session = name
	l.render()
}

func (l *Logo) render() {
	l.Clear()
	title := Tag(l.theme.TitleColor)
	caption := "drop deck"
	if l.session != "" {
		caption += " @ " + l.session
	}
	_, _ = fmt.Fprintf(l,
		"[%[1]s::b]╔╦╗╔═╗╔═╗╦╔═[-:-:-]\n"+
			"[%[1]s::b] ║║║╣ ║  ╠╩╗[-:-:-]\n"+
			"[%[1]s::b]═╩╝╚═╝╚═╝╩ ╩[-:-:-]\n"+
			"[%[2]s]%[3]s[-:-:-]",
		title, Tag(l.theme.FgColor), tview.Escape(caption),
	)
}
