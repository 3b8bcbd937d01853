package views

import (
	"fmt"

	"github.com/dropdeck/dropdeck/internal/model"
	"github.com/dropdeck/dropdeck/internal/tui/ui"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// DiscoverView lists public groups the user has not joined.
type DiscoverView struct {
	*tview.Table
	theme  *ui.Theme
	groups []model.Conversation
}

// NewDiscoverView creates the discover table.
func NewDiscoverView(theme *ui.Theme) *DiscoverView {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Discover ")
	table.SetTitleColor(theme.TitleColor)
	return &DiscoverView{Table: table, theme: theme}
}

// Name implements Component.
func (dv *DiscoverView) Name() string { return "Discover" }

// Init implements Component.
func (dv *DiscoverView) Init() {}

// Start implements Component.
func (dv *DiscoverView) Start() {}

// Stop implements Component.
func (dv *DiscoverView) Stop() {}

// Hints implements Component.
func (dv *DiscoverView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Join", Live: true},
		{Key: "Esc", Description: "Back"},
	}
}

// Update replaces the list of groups.
func (dv *DiscoverView) Update(groups []model.Conversation) {
	dv.groups = groups
	dv.Clear()
	for col, h := range []string{" NAME", " ACCESS", " DESCRIPTION"} {
		dv.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(dv.theme.TableHeaderFg).
			SetBackgroundColor(dv.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold))
	}
	for i, g := range groups {
		dv.SetCell(i+1, 0, tview.NewTableCell(" "+clean(oneLine(g.Name))).SetTextColor(dv.theme.FgColor))
		dv.SetCell(i+1, 1, tview.NewTableCell(" "+clean(g.AccessType)).SetTextColor(dv.theme.CounterColor))
		dv.SetCell(i+1, 2, tview.NewTableCell(" "+clean(oneLine(g.Description))).SetExpansion(1).SetTextColor(dv.theme.FgColor))
	}
	dv.SetTitle(fmt.Sprintf(" Discover (%d) ", len(groups)))
	if len(groups) > 0 {
		dv.Select(1, 0)
	}
}

// Selected returns the group under the cursor.
func (dv *DiscoverView) Selected() (model.Conversation, bool) {
	row, _ := dv.GetSelection()
	if row < 1 || row > len(dv.groups) {
		return model.Conversation{}, false
	}
	return dv.groups[row-1], true
}
