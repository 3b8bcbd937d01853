// Package typing tracks who is typing in the active conversation and
// throttles the local user's own typing signals.
package typing

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dropdeck/dropdeck/internal/bus"
	"github.com/dropdeck/dropdeck/internal/model"
	"go.uber.org/zap"
)

const (
	DefaultDebounce = 2 * time.Second
	DefaultExpiry   = 3 * time.Second
)

// Emitter sends the local user's typing signals for a conversation.
type Emitter interface {
	EmitTyping(ctx context.Context, conversationID string) error
	EmitStopTyping(ctx context.Context, conversationID string) error
}

// Options configures a Tracker. Zero values fall back to the defaults.
type Options struct {
	Debounce time.Duration
	Expiry   time.Duration
	// Now is the clock used for expiry. Tests inject a fake.
	Now func() time.Time
	// SweepInterval is how often Start prunes expired entries.
	SweepInterval time.Duration
}

// Tracker holds remote typing entries for the active conversation and
// the debounce state of local typing.
type Tracker struct {
	mu       sync.Mutex
	scope    string
	entries  map[string]model.TypingEntry
	typing   bool
	lastEmit time.Time
	stop     *time.Timer
	gen      uint64

	debounce time.Duration
	expiry   time.Duration
	sweep    time.Duration
	now      func() time.Time

	emitter Emitter
	bus     *bus.Bus
	logger  *zap.Logger
	cancel  context.CancelFunc
}

// NewTracker creates a tracker. emitter may be nil, in which case local
// typing is tracked but not sent anywhere.
func NewTracker(emitter Emitter, b *bus.Bus, logger *zap.Logger, opts Options) *Tracker {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Expiry <= 0 {
		opts.Expiry = DefaultExpiry
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		entries:  make(map[string]model.TypingEntry),
		debounce: opts.Debounce,
		expiry:   opts.Expiry,
		sweep:    opts.SweepInterval,
		now:      opts.Now,
		emitter:  emitter,
		bus:      b,
		logger:   logger,
	}
}

// Start runs the background expiry sweep until ctx is done or Stop is called.
func (t *Tracker) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	go t.loop(ctx)
}

// Stop ends the sweep and any pending local typing.
func (t *Tracker) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	t.mu.Lock()
	scope, wasTyping := t.endLocalLocked()
	t.mu.Unlock()
	if wasTyping {
		t.emitStop(scope)
	}
}

func (t *Tracker) loop(ctx context.Context) {
	ticker := time.NewTicker(t.sweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.mu.Lock()
			changed := t.pruneLocked()
			scope := t.scope
			t.mu.Unlock()
			if changed {
				t.bus.Emit(bus.KindTypingChange, scope)
			}
		}
	}
}

// Scope returns the conversation the tracker is bound to.
func (t *Tracker) Scope() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scope
}

// SwitchScope binds the tracker to a new conversation. Remote entries of
// the previous conversation are dropped and local typing there is ended.
func (t *Tracker) SwitchScope(conversationID string) {
	t.mu.Lock()
	prev, wasTyping := t.endLocalLocked()
	hadEntries := len(t.entries) > 0
	t.scope = conversationID
	clear(t.entries)
	t.mu.Unlock()

	if wasTyping {
		t.emitStop(prev)
	}
	if hadEntries {
		t.bus.Emit(bus.KindTypingChange, conversationID)
	}
}

// OnLocalTyping records a local keystroke. The first keystroke of a window
// emits a typing signal; a stop signal follows once the window passes
// without further keystrokes.
func (t *Tracker) OnLocalTyping() {
	t.mu.Lock()
	scope := t.scope
	if scope == "" {
		t.mu.Unlock()
		return
	}
	now := t.now()
	emit := !t.typing || now.Sub(t.lastEmit) >= t.debounce
	if emit {
		t.lastEmit = now
	}
	t.typing = true
	if t.stop != nil {
		t.stop.Stop()
	}
	t.gen++
	gen := t.gen
	t.stop = time.AfterFunc(t.debounce, func() { t.idle(scope, gen) })
	t.mu.Unlock()

	if emit && t.emitter != nil {
		if err := t.emitter.EmitTyping(context.Background(), scope); err != nil {
			t.logger.Debug("emit typing failed", zap.String("conversation", scope), zap.Error(err))
		}
	}
}

// idle fires when no local keystroke arrived within the debounce window.
// A timer superseded by a later keystroke may still fire; gen no longer
// matches then.
func (t *Tracker) idle(scope string, gen uint64) {
	t.mu.Lock()
	if !t.typing || t.scope != scope || t.gen != gen {
		t.mu.Unlock()
		return
	}
	t.typing = false
	t.stop = nil
	t.mu.Unlock()
	t.emitStop(scope)
}

// StopLocal ends local typing immediately, e.g. when a message is sent.
func (t *Tracker) StopLocal() {
	t.mu.Lock()
	scope, wasTyping := t.endLocalLocked()
	t.mu.Unlock()
	if wasTyping {
		t.emitStop(scope)
	}
}

func (t *Tracker) endLocalLocked() (string, bool) {
	if t.stop != nil {
		t.stop.Stop()
		t.stop = nil
	}
	t.gen++
	was := t.typing
	t.typing = false
	return t.scope, was
}

func (t *Tracker) emitStop(scope string) {
	if t.emitter == nil || scope == "" {
		return
	}
	if err := t.emitter.EmitStopTyping(context.Background(), scope); err != nil {
		t.logger.Debug("emit stop typing failed", zap.String("conversation", scope), zap.Error(err))
	}
}

// OnRemoteTyping records that userID is typing in conversationID. Signals
// for any conversation other than the active one are ignored.
func (t *Tracker) OnRemoteTyping(conversationID, userID, name string) {
	t.mu.Lock()
	if conversationID != t.scope || userID == "" {
		t.mu.Unlock()
		return
	}
	_, existed := t.entries[userID]
	t.entries[userID] = model.TypingEntry{
		ConversationID: conversationID,
		UserID:         userID,
		Name:           name,
		ExpiresAt:      t.now().Add(t.expiry),
	}
	t.mu.Unlock()
	if !existed {
		t.bus.Emit(bus.KindTypingChange, conversationID)
	}
}

// OnRemoteStoppedTyping removes userID's entry immediately.
func (t *Tracker) OnRemoteStoppedTyping(conversationID, userID string) {
	t.mu.Lock()
	if conversationID != t.scope {
		t.mu.Unlock()
		return
	}
	_, existed := t.entries[userID]
	delete(t.entries, userID)
	t.mu.Unlock()
	if existed {
		t.bus.Emit(bus.KindTypingChange, conversationID)
	}
}

// Typing returns the unexpired entries for the active conversation,
// ordered by name.
func (t *Tracker) Typing() []model.TypingEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked()
	out := make([]model.TypingEntry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b model.TypingEntry) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.UserID, b.UserID)
	})
	return out
}

func (t *Tracker) pruneLocked() bool {
	now := t.now()
	changed := false
	for id, e := range t.entries {
		if !now.Before(e.ExpiresAt) {
			delete(t.entries, id)
			changed = true
		}
	}
	return changed
}
