package ui

import (
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/rivo/tview"
)

func newTestPages() *Pages {
	p := NewPages()
	for _, name := range []string{"conversations", "thread", "details", "help"} {
		p.AddPage(name, tview.NewBox(), true, false)
	}
	return p
}

func TestPagesPushPop(t *testing.T) {
	p := newTestPages()
	var seen [][]string
	p.SetOnChange(func(stack []string) { seen = append(seen, stack) })

	p.Reset("conversations")
	p.Push("thread")
	p.Push("details")
	if got := p.Current(); got != "details" {
		t.Fatalf("Current() = %q", got)
	}
	if popped := p.Pop(); popped != "details" || p.Current() != "thread" {
		t.Errorf("Pop() = %q, current %q", popped, p.Current())
	}
	p.Pop()
	if popped := p.Pop(); popped != "" || p.Current() != "conversations" {
		t.Errorf("root page must stay: popped %q, current %q", popped, p.Current())
	}
	if len(seen) != 5 {
		t.Errorf("onChange fired %d times, want 5", len(seen))
	}
}

func TestPagesSwitchTo(t *testing.T) {
	p := newTestPages()
	p.Reset("conversations")
	p.Push("thread")
	p.Push("details")

	p.SwitchTo("thread")
	if got := p.Stack(); !slices.Equal(got, []string{"conversations", "thread"}) {
		t.Errorf("stack = %v", got)
	}
	p.SwitchTo("help")
	if got := p.Stack(); !slices.Equal(got, []string{"conversations", "thread", "help"}) {
		t.Errorf("stack = %v", got)
	}
	if p.Depth() != 3 {
		t.Errorf("Depth() = %d", p.Depth())
	}
}

func TestPromptHistory(t *testing.T) {
	p := NewPrompt(DefaultTheme())
	p.Activate(PromptFind)
	for _, s := range []string{"alpha", "beta", "beta"} {
		p.remember(s)
	}
	if got := p.History(PromptFind); !slices.Equal(got, []string{"alpha", "beta"}) {
		t.Fatalf("history = %v", got)
	}
	if len(p.History(PromptCommand)) != 0 {
		t.Error("history must be per mode")
	}

	p.Activate(PromptFind)
	p.step(-1)
	if p.GetText() != "beta" {
		t.Errorf("recall = %q", p.GetText())
	}
	p.step(-1)
	p.step(-1)
	if p.GetText() != "alpha" {
		t.Errorf("recall stops at oldest, got %q", p.GetText())
	}
	p.step(1)
	p.step(1)
	if p.GetText() != "" {
		t.Errorf("stepping past newest clears, got %q", p.GetText())
	}
}

func TestMenuLayoutColumns(t *testing.T) {
	m := NewMenu(DefaultTheme())
	var hints []MenuHint
	for _, k := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		hints = append(hints, MenuHint{Key: k, Description: "do " + k})
	}
	out := m.layout(hints)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != menuRows {
		t.Fatalf("lines = %d, want %d", len(lines), menuRows)
	}
	if !strings.Contains(lines[0], "<a>") || !strings.Contains(lines[0], "<g>") {
		t.Errorf("first row should hold a and g: %q", lines[0])
	}
	if strings.Contains(lines[5], "<g>") || !strings.Contains(lines[5], "<f>") {
		t.Errorf("last row = %q", lines[5])
	}
	if m.layout(nil) != "" {
		t.Error("no hints should render nothing")
	}
}

func TestMenuDimsLiveHintsWhileOffline(t *testing.T) {
	m := NewMenu(DefaultTheme())
	m.Update([]MenuHint{
		{Key: "i", Description: "Compose", Live: true},
		{Key: "f", Description: "Find"},
	})
	if strings.Contains(m.GetText(false), "::d]<i>") {
		t.Fatalf("compose dimmed while connected: %q", m.GetText(false))
	}
	m.SetConnected(false)
	out := m.GetText(false)
	if !strings.Contains(out, "::d]<i> Compose") {
		t.Errorf("compose not dimmed offline: %q", out)
	}
	if strings.Contains(out, "::d]<f>") {
		t.Errorf("find works offline and should stay lit: %q", out)
	}
	m.SetConnected(true)
	if strings.Contains(m.GetText(false), "::d]<i>") {
		t.Errorf("compose still dimmed after reconnect: %q", m.GetText(false))
	}
}

func TestLogoCaptionNamesSession(t *testing.T) {
	l := NewLogo(DefaultTheme())
	if got := l.GetText(true); !strings.HasSuffix(got, "drop deck") {
		t.Errorf("caption = %q", got)
	}
	l.SetSession("work")
	if got := l.GetText(true); !strings.HasSuffix(got, "drop deck @ work") {
		t.Errorf("caption = %q, want session name", got)
	}
}

func TestCrumbsUseLabels(t *testing.T) {
	c := NewCrumbs(DefaultTheme())
	c.SetLabel("thread", "General chat")
	c.Update([]string{"conversations", "thread"})
	text := c.GetText(true)
	if !strings.Contains(text, "conversations") || !strings.Contains(text, "General chat") {
		t.Errorf("crumbs = %q", text)
	}
}

type flashClock struct{ now time.Time }

func (c *flashClock) Now() time.Time { return c.now }

func newTestFlash() (*FlashModel, *flashClock) {
	clock := &flashClock{now: time.Unix(1000, 0)}
	f := NewFlashModel()
	f.now = clock.Now
	return f, clock
}

func TestFlashExpiresAndClears(t *testing.T) {
	f, clock := newTestFlash()
	f.Info("hello")
	if m := f.Current(); m == nil || m.Text != "hello" {
		t.Fatalf("Current() = %+v, want hello", m)
	}
	clock.now = clock.now.Add(flashTTL[FlashInfo] + time.Millisecond)
	if m := f.Current(); m != nil {
		t.Errorf("expired message still visible: %+v", m)
	}
	f.Warn("careful")
	f.Clear()
	if f.Current() != nil {
		t.Error("cleared message still visible")
	}
}

func TestFlashQueuesNoticeBurst(t *testing.T) {
	f, clock := newTestFlash()
	f.Notice("ana joined")
	f.Notice("bo joined")
	f.Notice("cy joined")
	if m := f.Current(); m == nil || m.Text != "ana joined" || f.Queued() != 2 {
		t.Fatalf("Current() = %+v, queued %d", m, f.Queued())
	}

	// Local feedback is shown at once; queued notices wait behind it.
	f.Info("Pinned")
	if m := f.Current(); m.Text != "Pinned" {
		t.Errorf("Current() = %q, want Pinned", m.Text)
	}
	for _, want := range []string{"bo joined", "cy joined"} {
		clock.now = clock.now.Add(flashTTL[FlashNotice] + time.Millisecond)
		if m := f.Current(); m == nil || m.Text != want || m.Level != FlashNotice {
			t.Fatalf("Current() = %+v, want %s", m, want)
		}
	}
	if f.Queued() != 0 {
		t.Errorf("Queued() = %d", f.Queued())
	}
}

func TestFlashNoticeQueueDropsOldest(t *testing.T) {
	f, _ := newTestFlash()
	f.Notice("showing")
	for i := range maxQueuedNotices + 2 {
		f.Notice(fmt.Sprint("n", i))
	}
	if f.Queued() != maxQueuedNotices {
		t.Fatalf("Queued() = %d, want %d", f.Queued(), maxQueuedNotices)
	}
	if f.notices[0] != "n2" {
		t.Errorf("oldest kept = %q, want n2", f.notices[0])
	}
}

func TestFlashStickyStaysUntilReplaced(t *testing.T) {
	f, clock := newTestFlash()
	f.Notice("ana joined")
	f.Notice("bo joined")
	f.Stick("Signed out", FlashWarn)
	if f.Queued() != 0 {
		t.Error("sticky message should drop queued notices")
	}
	clock.now = clock.now.Add(time.Hour)
	if m := f.Current(); m == nil || !m.Sticky() || m.Text != "Signed out" {
		t.Fatalf("Current() = %+v, want sticky sign-out", m)
	}
	f.Info("Signed in as ana")
	if m := f.Current(); m.Sticky() || m.Text != "Signed in as ana" {
		t.Errorf("Current() = %+v", m)
	}
}

func TestFlashBarShowsQueuedCount(t *testing.T) {
	fb := NewFlashBar(DefaultTheme())
	fb.Update(&FlashMessage{Text: "ana joined", Level: FlashNotice}, 2)
	text := fb.GetText(true)
	if !strings.Contains(text, "ana joined") || !strings.Contains(text, "+2 more") {
		t.Errorf("bar = %q", text)
	}
	fb.Update(nil, 0)
	if fb.GetText(true) != "" {
		t.Error("nil message should clear the bar")
	}
}

func TestRenderQR(t *testing.T) {
	out, err := RenderQR("https://deck.example/join/42", "  ")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) < 10 {
		t.Fatalf("qr too small: %d lines", len(lines))
	}
	width := len([]rune(lines[0]))
	for i, l := range lines {
		if !strings.HasPrefix(l, "  ") {
			t.Errorf("line %d not indented", i)
		}
		if n := len([]rune(l)); n != width {
			t.Errorf("line %d width %d, want %d", i, n, width)
		}
	}
	if !strings.ContainsAny(out, "█▀▄") {
		t.Error("no blocks drawn")
	}
}
