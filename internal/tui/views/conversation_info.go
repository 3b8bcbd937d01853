package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/dropdeck/dropdeck/internal/model"
	"github.com/dropdeck/dropdeck/internal/tui/ui"
	"github.com/rivo/tview"
)

// ConversationInfo displays detailed information about a conversation.
type ConversationInfo struct {
	*tview.TextView
	theme *ui.Theme
	now   func() time.Time
}

// NewConversationInfo creates a new conversation info view.
func NewConversationInfo(theme *ui.Theme) *ConversationInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetWordWrap(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Conversation Details ")
	tv.SetTitleColor(theme.TitleColor)

	return &ConversationInfo{
		TextView: tv,
		theme:    theme,
		now:      time.Now,
	}
}

// Name implements Component.
func (ci *ConversationInfo) Name() string { return "Details" }

// Init implements Component.
func (ci *ConversationInfo) Init() {}

// Start implements Component.
func (ci *ConversationInfo) Start() {}

// Stop implements Component.
func (ci *ConversationInfo) Stop() {}

// Hints implements Component.
func (ci *ConversationInfo) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
	}
}

// Update renders conversation details. inviteURL is shown when non-empty.
func (ci *ConversationInfo) Update(c *model.Conversation, inviteURL string) {
	ci.Clear()
	if c == nil {
		return
	}

	fg := ui.Tag(ci.theme.FgColor)
	ct := ui.Tag(ci.theme.CounterColor)
	now := ci.now()

	access := c.AccessType
	if access == "" {
		access = "-"
	}
	last := "-"
	if c.LastMessage != nil {
		last = c.LastMessage.Preview
		if c.LastMessage.SenderName != "" {
			last = c.LastMessage.SenderName + ": " + last
		}
	}
	created := "-"
	if !c.CreatedAt.IsZero() {
		created = formatTime(c.CreatedAt, now)
	}
	pinned := "no"
	if c.Pinned {
		pinned = "yes"
	}

	rows := [][2]string{
		{"Name:", c.Name},
		{"ID:", c.ID},
		{"Access:", access},
		{"Created:", created},
		{"Pinned:", pinned},
		{"Unread:", fmt.Sprintf("%d", c.UnreadCount)},
		{"Last Active:", formatTime(c.LastActivity(), now)},
		{"Last Message:", oneLine(last)},
	}
	if c.Description != "" {
		rows = append(rows, [2]string{"Description:", c.Description})
	}
	if inviteURL != "" {
		rows = append(rows, [2]string{"Invite:", inviteURL})
	}

	var sb strings.Builder
	sb.WriteString("\n")
	for _, r := range rows {
		fmt.Fprintf(&sb, " [%s::b]%-13s[-:-:-] [%s]%s[-]\n", fg, r[0], ct, clean(r[1]))
	}
	_, _ = fmt.Fprint(ci, sb.String())
	ci.SetTitle(fmt.Sprintf(" %s Details ", tview.Escape(c.Name)))
}
