package views

import (
	"fmt"
	"time"

	"github.com/dropdeck/dropdeck/internal/model"
	"github.com/dropdeck/dropdeck/internal/tui/ui"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// NotificationsView lists notifications, newest first. Join requests can be
// accepted or declined in place.
type NotificationsView struct {
	*tview.Table
	theme *ui.Theme
	items []model.Notification
	now   func() time.Time
}

// NewNotificationsView creates the notifications table.
func NewNotificationsView(theme *ui.Theme) *NotificationsView {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Notifications ")
	table.SetTitleColor(theme.TitleColor)

	return &NotificationsView{
		Table: table,
		theme: theme,
		now:   time.Now,
	}
}

// Name implements Component.
func (nv *NotificationsView) Name() string { return "Notifications" }

// Init implements Component.
func (nv *NotificationsView) Init() {}

// Start implements Component.
func (nv *NotificationsView) Start() {}

// Stop implements Component.
func (nv *NotificationsView) Stop() {}

// Hints implements Component.
func (nv *NotificationsView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "a", Description: "Accept", Live: true},
		{Key: "x", Description: "Decline", Live: true},
		{Key: "r", Description: "Mark all read"},
		{Key: "Enter", Description: "Open"},
		{Key: "Esc", Description: "Back"},
	}
}

// Update replaces the table contents.
func (nv *NotificationsView) Update(items []model.Notification) {
	selected, _ := nv.GetSelection()
	nv.items = items
	nv.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" ", 0},
		{" MESSAGE", 2},
		{" GROUP", 1},
		{" STATE", 0},
		{" TIME", 0},
	}
	for col, h := range headers {
		nv.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(nv.theme.TableHeaderFg).
			SetBackgroundColor(nv.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	unread := 0
	now := nv.now()
	for i, n := range items {
		row := i + 1
		mark := " "
		fg := nv.theme.FgColor
		if !n.Read {
			mark = "●"
			fg = nv.theme.UnreadColor
			unread++
		}
		state := ""
		if n.Kind == model.NotificationJoinRequest {
			state = string(n.Action)
		}
		nv.SetCell(row, 0, tview.NewTableCell(" "+mark).SetTextColor(fg))
		nv.SetCell(row, 1, tview.NewTableCell(" "+clean(oneLine(n.Message))).SetExpansion(2).SetTextColor(fg))
		nv.SetCell(row, 2, tview.NewTableCell(" "+clean(oneLine(n.ConversationName))).SetExpansion(1).SetTextColor(nv.theme.FgColor))
		nv.SetCell(row, 3, tview.NewTableCell(" "+state).SetTextColor(nv.theme.CounterColor))
		nv.SetCell(row, 4, tview.NewTableCell(" "+formatTime(n.CreatedAt, now)).SetTextColor(nv.theme.FgColor))
	}

	nv.SetTitle(fmt.Sprintf(" Notifications (%d unread) ", unread))
	if selected >= 1 && selected <= len(items) {
		nv.Select(selected, 0)
	} else if len(items) > 0 {
		nv.Select(1, 0)
	}
}

// Selected returns the notification under the cursor.
func (nv *NotificationsView) Selected() (model.Notification, bool) {
	row, _ := nv.GetSelection()
	if row < 1 || row > len(nv.items) {
		return model.Notification{}, false
	}
	return nv.items[row-1], true
}
