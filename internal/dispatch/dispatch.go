// Package dispatch routes inbound realtime events to registered handlers.
package dispatch

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Inbound realtime event kinds.
const (
	NewMessage         = "newMessage"
	GroupListUpdate    = "groupListUpdate"
	NotificationUpdate = "notificationUpdate"
	UserTyping         = "userTyping"
	UserStoppedTyping  = "userStoppedTyping"
)

// Event is one inbound realtime event.
type Event struct {
	Kind       string
	Scope      string
	Payload    json.RawMessage
	ReceivedAt time.Time
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}

// Handler reacts to an event. Handlers run on the dispatching goroutine and
// must not block; longer work belongs on its own goroutine.
type Handler func(Event)

// HandlerID identifies a registration for Off.
type HandlerID uint64

type entry struct {
	id HandlerID
	fn Handler
}

// Dispatcher fans events out to handlers registered per kind, in
// registration order.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]entry
	next     HandlerID
	logger   *zap.Logger
}

// New creates an empty dispatcher.
func New(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		handlers: make(map[string][]entry),
		logger:   logger,
	}
}

// On registers h for kind and returns its id.
func (d *Dispatcher) On(kind string, h Handler) HandlerID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	d.handlers[kind] = append(d.handlers[kind], entry{id: d.next, fn: h})
	return d.next
}

// Off removes the handler registered under id for kind. It reports whether
// a handler was removed.
func (d *Dispatcher) Off(kind string, id HandlerID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := d.handlers[kind]
	for i, e := range list {
		if e.id != id {
			continue
		}
		// Copy rather than shift in place: Dispatch may be iterating a
		// snapshot of the old slice.
		next := make([]entry, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		if len(next) == 0 {
			delete(d.handlers, kind)
		} else {
			d.handlers[kind] = next
		}
		return true
	}
	return false
}

// Count returns the number of handlers registered for kind.
func (d *Dispatcher) Count(kind string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[kind])
}

// Dispatch invokes every handler registered for evt.Kind and returns how
// many ran. Events of unknown kinds are ignored.
func (d *Dispatcher) Dispatch(evt Event) int {
	if evt.ReceivedAt.IsZero() {
		evt.ReceivedAt = time.Now()
	}
	d.mu.RLock()
	list := d.handlers[evt.Kind]
	d.mu.RUnlock()

	for _, e := range list {
		d.invoke(e, evt)
	}
	return len(list)
}

func (d *Dispatcher) invoke(e entry, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panicked",
				zap.String("kind", evt.Kind),
				zap.Uint64("handler", uint64(e.id)),
				zap.Any("panic", r))
		}
	}()
	e.fn(evt)
}
