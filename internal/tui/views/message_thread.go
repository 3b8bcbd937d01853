package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/dropdeck/dropdeck/internal/model"
	"github.com/dropdeck/dropdeck/internal/search"
	"github.com/dropdeck/dropdeck/internal/tui/ui"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// ThreadFind is the in-thread search state the thread renders.
type ThreadFind struct {
	Term    string
	Current int // index of the message holding the current match, -1 for none
	Total   int
	Cursor  int
}

// MessageThread displays the active conversation with a typing line and a
// composer.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	typing   *tview.TextView
	composer *tview.InputField
	name     string
	now      func() time.Time
	onSend   func(text string)
	onInput  func()
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetRegions(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	typing := tview.NewTextView().
		SetDynamicColors(true)
	typing.SetBackgroundColor(theme.BgColor)
	typing.SetTextColor(theme.PendingColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(typing, 1, 0, false).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		typing:   typing,
		composer: composer,
		now:      time.Now,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || mt.onSend == nil {
			return
		}
		text := composer.GetText()
		if strings.TrimSpace(text) != "" {
			mt.onSend(text)
			composer.SetText("")
		}
	})
	composer.SetChangedFunc(func(text string) {
		if text != "" && mt.onInput != nil {
			mt.onInput()
		}
	})

	return mt
}

// Name implements Component.
func (mt *MessageThread) Name() string {
	if mt.name != "" {
		return mt.name
	}
	return "Messages"
}

// Init implements Component.
func (mt *MessageThread) Init() {}

// Start implements Component.
func (mt *MessageThread) Start() {}

// Stop implements Component.
func (mt *MessageThread) Stop() {}

// Hints implements Component.
func (mt *MessageThread) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "i", Description: "Compose", Live: true},
		{Key: "f", Description: "Find"},
		{Key: "n/N", Description: "Next/Prev match"},
		{Key: "o", Description: "Older", Live: true},
		{Key: "d", Description: "Details"},
		{Key: "Esc", Description: "Back"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
	}
}

// SetConversation updates the title for a newly opened conversation and
// clears the composer.
func (mt *MessageThread) SetConversation(name string) {
	mt.name = name
	mt.messages.SetTitle(fmt.Sprintf(" %s ", tview.Escape(name)))
	mt.composer.SetText("")
	mt.typing.Clear()
}

// SetOnSend sets the callback when a message is submitted.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// SetOnInput sets the callback fired on every composer edit.
func (mt *MessageThread) SetOnInput(fn func()) {
	mt.onInput = fn
}

// Update renders msgs, oldest first, highlighting the find term. selfID
// marks the user's own messages.
func (mt *MessageThread) Update(msgs []model.Message, selfID string, find ThreadFind) {
	mt.messages.Clear()
	_, _ = fmt.Fprint(mt.messages, mt.renderMessages(msgs, selfID, find))

	title := fmt.Sprintf(" %s ", tview.Escape(mt.name))
	if find.Term != "" {
		pos := 0
		if find.Total > 0 {
			pos = find.Cursor + 1
		}
		title = fmt.Sprintf(" %s [find %q %d/%d] ", tview.Escape(mt.name), tview.Escape(find.Term), pos, find.Total)
	}
	mt.messages.SetTitle(title)

	if find.Term != "" && find.Current >= 0 {
		mt.messages.Highlight(regionID(find.Current))
		mt.messages.ScrollToHighlight()
		return
	}
	mt.messages.Highlight()
	mt.messages.ScrollToEnd()
}

func (mt *MessageThread) renderMessages(msgs []model.Message, selfID string, find ThreadFind) string {
	now := mt.now()
	var sb strings.Builder
	for i, m := range msgs {
		sender := m.SenderName
		if sender == "" {
			sender = m.SenderID
		}
		senderColor := mt.theme.TitleColor
		if selfID != "" && m.SenderID == selfID {
			sender = "You"
			senderColor = mt.theme.OwnMessageColor
		}

		state := ""
		if m.Placeholder() || m.Status == model.StatusSending {
			state = fmt.Sprintf(" [%s]sending…[-]", ui.Tag(mt.theme.PendingColor))
		}
		reply := ""
		if m.ReplyTo != "" {
			reply = fmt.Sprintf(" [%s]↩[-]", ui.Tag(mt.theme.PendingColor))
		}

		fmt.Fprintf(&sb, `["%s"][%s::b]%s[-:-:-] [::d]%s[-:-:-]%s%s`+"\n",
			regionID(i), ui.Tag(senderColor), clean(sender), formatTime(m.CreatedAt, now), reply, state)

		matchBg := mt.theme.MatchBg
		if i == find.Current {
			matchBg = mt.theme.CurrentMatchBg
		}
		for _, line := range bodyLines(m.Body) {
			sb.WriteString(highlightLine(line, find.Term, mt.theme.MatchFg, matchBg))
			sb.WriteString("\n")
		}
		if len(m.Reactions) > 0 {
			var parts []string
			for _, r := range m.Reactions {
				parts = append(parts, fmt.Sprintf("%s %d", r.Emoji, r.Count))
			}
			fmt.Fprintf(&sb, "[::d]%s[-:-:-]\n", clean(strings.Join(parts, "  ")))
		}
		sb.WriteString(`[""]` + "\n")
	}
	return sb.String()
}

func regionID(i int) string {
	return fmt.Sprintf("m%d", i)
}

// bodyLines renders a body as the lines a reader sees. The text matches
// what in-thread search indexes, so highlights line up with matches.
func bodyLines(b model.Body) []string {
	switch b.Kind {
	case model.KindFile:
		if b.File == nil {
			return []string{"[file]"}
		}
		return []string{fmt.Sprintf("📎 %s (%s)", b.File.Name, humanSize(b.File.Size))}
	case model.KindPoll:
		if b.Poll == nil {
			return []string{"[poll]"}
		}
		lines := []string{"📊 " + b.Poll.Question}
		for _, o := range b.Poll.Options {
			lines = append(lines, "  • "+o)
		}
		return lines
	default:
		return strings.Split(b.Text, "\n")
	}
}

func highlightLine(line, term string, fg, bg tcell.Color) string {
	var sb strings.Builder
	for _, seg := range search.Highlight(sanitizeForTerminal(line), term) {
		if seg.Match {
			fmt.Fprintf(&sb, "[%s:%s]%s[-:-]", ui.Tag(fg), ui.Tag(bg), tview.Escape(seg.Text))
			continue
		}
		sb.WriteString(tview.Escape(seg.Text))
	}
	return sb.String()
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// SetTyping shows who is typing in the conversation.
func (mt *MessageThread) SetTyping(names []string) {
	mt.typing.Clear()
	if line := typingLine(names); line != "" {
		_, _ = fmt.Fprintf(mt.typing, " [::i]%s[-:-:-]", clean(line))
	}
}

func typingLine(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing…"
	case 2:
		return names[0] + " and " + names[1] + " are typing…"
	case 3:
		return names[0] + ", " + names[1] + " and " + names[2] + " are typing…"
	default:
		return fmt.Sprintf("%s, %s and %d others are typing…", names[0], names[1], len(names)-2)
	}
}

// InsertText appends s to the composer.
func (mt *MessageThread) InsertText(s string) {
	mt.composer.SetText(mt.composer.GetText() + s)
}

// Messages returns the messages text view (for focus management).
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the composer input field (for focus management).
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}
