package views

import (
	"fmt"
	"strings"

	"github.com/dropdeck/dropdeck/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	hv.render()
	return hv
}

// Name implements Component.
func (hv *HelpView) Name() string { return "Help" }

// Init implements Component.
func (hv *HelpView) Init() {}

// Start implements Component.
func (hv *HelpView) Start() {}

// Stop implements Component.
func (hv *HelpView) Stop() {}

// Hints implements Component.
func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

type helpSection struct {
	title string
	rows  [][2]string
}

var helpSections = []helpSection{
	{"Global Keys", [][2]string{
		{":", "Command mode"},
		{"Esc", "Cancel / Go back"},
		{"/", "Filter conversations"},
		{"?", "Help"},
		{"n", "Notifications"},
		{"s", "Search"},
		{"q", "Quit / Back"},
		{"Ctrl-C", "Quit immediately"},
	}},
	{"Conversation List", [][2]string{
		{"Enter", "Open conversation"},
		{"1-9", "Jump to Nth conversation"},
		{"p", "Pin / unpin"},
		{"d", "Conversation details"},
		{"0", "Clear filter"},
	}},
	{"Message Thread", [][2]string{
		{"i", "Focus composer"},
		{"Enter", "Send message (in composer)"},
		{"f", "Find in conversation"},
		{"n / N", "Next / previous match"},
		{"o", "Load older messages"},
		{"d", "Conversation details"},
	}},
	{"Notifications", [][2]string{
		{"a / x", "Accept / decline join request"},
		{"r", "Mark all read"},
		{"Enter", "Open conversation"},
	}},
	{"Commands (: mode)", [][2]string{
		{":search <query>", "Search messages, files and groups"},
		{":open <name>", "Open conversation by name"},
		{":find <term>", "Find in the open conversation"},
		{":poll q | a | b", "Send a poll"},
		{":upload <path>", "Send a file"},
		{":pin", "Toggle pin on the open conversation"},
		{":read", "Mark the open conversation read"},
		{":notifications", "Show notifications"},
		{":discover", "Browse groups to join"},
		{":join <id>", "Join a group"},
		{":invite", "Show an invite QR code"},
		{":emoji [e]", "Insert an emoji / list recent"},
		{":signout", "Sign out of the server"},
		{":help / :h", "Show this help"},
		{":quit / :q", "Quit application"},
	}},
}

func (hv *HelpView) render() {
	kc := ui.Tag(hv.theme.MenuKeyColor)
	var sb strings.Builder
	for _, s := range helpSections {
		fmt.Fprintf(&sb, "\n  [::b]%s[-:-:-]\n\n", s.title)
		for _, r := range s.rows {
			fmt.Fprintf(&sb, "  [%s]%-18s[-:-:-] %s\n", kc, tview.Escape(r[0]), r[1])
		}
	}
	_, _ = fmt.Fprint(hv, sb.String())
}
