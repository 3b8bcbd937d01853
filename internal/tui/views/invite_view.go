package views

import (
	"fmt"

	"github.com/dropdeck/dropdeck/internal/tui/ui"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// InviteView shows a group's invite link as a scannable QR code.
type InviteView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewInviteView creates the invite view.
func NewInviteView(theme *ui.Theme) *InviteView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(tcell.ColorWhite)
	tv.SetTitle(" Invite ")
	tv.SetTitleColor(theme.TitleColor)
	return &InviteView{TextView: tv, theme: theme}
}

// Name implements Component.
func (iv *InviteView) Name() string { return "Invite" }

// Init implements Component.
func (iv *InviteView) Init() {}

// Start implements Component.
func (iv *InviteView) Start() {}

// Stop implements Component.
func (iv *InviteView) Stop() {}

// Hints implements Component.
func (iv *InviteView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

// Update draws the QR code for url under the group name.
func (iv *InviteView) Update(groupName, url string) error {
	qr, err := ui.RenderQR(url, "  ")
	if err != nil {
		return err
	}
	iv.Clear()
	_, _ = fmt.Fprintf(iv, "\n  [%s::b]%s[-:-:-]\n  [%s]%s[-]\n\n%s",
		ui.Tag(iv.theme.TitleColor), clean(groupName),
		ui.Tag(iv.theme.FgColor), clean(url),
		tview.Escape(qr))
	iv.SetTitle(fmt.Sprintf(" Invite to %s ", tview.Escape(groupName)))
	return nil
}
