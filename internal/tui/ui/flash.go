package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/rivo/tview"
)

// FlashLevel represents the severity of a flash message.
type FlashLevel int

const (
	FlashInfo FlashLevel = iota
	// FlashNotice is a notification pushed by the backend.
	FlashNotice
	FlashWarn
	FlashErr
)

var flashTTL = map[FlashLevel]time.Duration{
	FlashInfo:   4 * time.Second,
	FlashNotice: 6 * time.Second,
	FlashWarn:   8 * time.Second,
	FlashErr:    10 * time.Second,
}

// maxQueuedNotices caps the backend notices waiting for the bar. The oldest
// is dropped first.
const maxQueuedNotices = 5

// FlashMessage is one line on the flash bar. A zero Expires never expires.
type FlashMessage struct {
	Text    string
	Level   FlashLevel
	Expires time.Time
}

// Sticky reports whether the message stays until something replaces it.
func (m FlashMessage) Sticky() bool { return m.Expires.IsZero() }

// FlashModel decides what the flash bar shows. Local feedback replaces the
// current message at once. Backend notices queue behind a notice that is
// still showing, so a burst of notifications is shown one after another.
// A sticky message, like the sign-out warning, stays until replaced.
type FlashModel struct {
	mu      sync.Mutex
	current FlashMessage
	notices []string
	now     func() time.Time
	watchCh chan struct{}
}

// NewFlashModel creates an empty flash model.
func NewFlashModel() *FlashModel {
	return &FlashModel{
		now:     time.Now,
		watchCh: make(chan struct{}, 1),
	}
}

// Info shows local feedback.
func (f *FlashModel) Info(msg string) { f.show(msg, FlashInfo) }

// Warn shows a warning.
func (f *FlashModel) Warn(msg string) { f.show(msg, FlashWarn) }

// Err shows a failed action.
func (f *FlashModel) Err(err error) { f.show(err.Error(), FlashErr) }

// Notice shows a backend notification, or queues it while another notice
// is on screen.
func (f *FlashModel) Notice(msg string) {
	f.mu.Lock()
	if f.visibleLocked() && f.current.Level == FlashNotice {
		if len(f.notices) == maxQueuedNotices {
			f.notices = f.notices[1:]
		}
		f.notices = append(f.notices, msg)
		f.mu.Unlock()
		return
	}
	f.setLocked(msg, FlashNotice, f.now().Add(flashTTL[FlashNotice]))
	f.mu.Unlock()
	f.changed()
}

// Stick shows msg until another message replaces it. Queued notices are
// dropped; they belong to the state the sticky message ends.
func (f *FlashModel) Stick(msg string, level FlashLevel) {
	f.mu.Lock()
	f.notices = nil
	f.setLocked(msg, level, time.Time{})
	f.mu.Unlock()
	f.changed()
}

func (f *FlashModel) show(msg string, level FlashLevel) {
	f.mu.Lock()
	f.setLocked(msg, level, f.now().Add(flashTTL[level]))
	f.mu.Unlock()
	f.changed()
}

func (f *FlashModel) setLocked(msg string, level FlashLevel, expires time.Time) {
	f.current = FlashMessage{Text: msg, Level: level, Expires: expires}
}

func (f *FlashModel) visibleLocked() bool {
	if f.current.Text == "" {
		return false
	}
	return f.current.Sticky() || f.now().Before(f.current.Expires)
}

func (f *FlashModel) changed() {
	select {
	case f.watchCh <- struct{}{}:
	default:
	}
}

// Clear drops the current message and any queued notices.
func (f *FlashModel) Clear() {
	f.mu.Lock()
	f.current = FlashMessage{}
	f.notices = nil
	f.mu.Unlock()
	f.changed()
}

// Current returns the message to show, or nil when there is none. Once a
// message expires the next queued notice takes its place.
func (f *FlashModel) Current() *FlashMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.visibleLocked() {
		if len(f.notices) == 0 {
			return nil
		}
		next := f.notices[0]
		f.notices = f.notices[1:]
		f.setLocked(next, FlashNotice, f.now().Add(flashTTL[FlashNotice]))
	}
	m := f.current
	return &m
}

// Queued returns how many notices wait for the bar.
func (f *FlashModel) Queued() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.notices)
}

// Watch signals every change made through the model. Expiry is not
// signalled; poll Current for that.
func (f *FlashModel) Watch() <-chan struct{} {
	return f.watchCh
}

// FlashBar is the UI component that displays flash notifications.
type FlashBar struct {
	*tview.TextView
	theme *Theme
}

// NewFlashBar creates a new flash notification bar.
func NewFlashBar(theme *Theme) *FlashBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &FlashBar{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders a flash message on the bar. A nil message clears it.
// queued is the number of notices still waiting.
func (fb *FlashBar) Update(msg *FlashMessage, queued int) {
	fb.Clear()
	if msg == nil || msg.Text == "" {
		return
	}

	color := Tag(fb.theme.FlashInfoColor)
	prefix := ""
	switch msg.Level {
	case FlashNotice:
		color = Tag(fb.theme.FlashNoticeColor)
		prefix = "🔔 "
	case FlashWarn:
		color = Tag(fb.theme.FlashWarnColor)
	case FlashErr:
		color = Tag(fb.theme.FlashErrColor)
	}
	_, _ = fmt.Fprintf(fb, " [%s]%s%s[-]", color, prefix, tview.Escape(msg.Text))
	if queued > 0 {
		_, _ = fmt.Fprintf(fb, " [::d](+%d more)[-:-:-]", queued)
	}
}
