package dispatch

import "sync"

// Group collects registrations owned by one scope so they can be removed
// together when the scope goes away.
type Group struct {
	d      *Dispatcher
	mu     sync.Mutex
	regs   []registration
	closed bool
}

type registration struct {
	kind string
	id   HandlerID
}

// Group returns a new empty registration group on d.
func (d *Dispatcher) Group() *Group {
	return &Group{d: d}
}

// On registers h on the underlying dispatcher and records it in the group.
// Registering on a closed group is a no-op.
func (g *Group) On(kind string, h Handler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.regs = append(g.regs, registration{kind: kind, id: g.d.On(kind, h)})
}

// Close removes every handler registered through the group.
func (g *Group) Close() {
	if g == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, r := range g.regs {
		g.d.Off(r.kind, r.id)
	}
	g.regs = nil
	g.closed = true
}
