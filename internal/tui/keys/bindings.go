package keys

import "github.com/gdamore/tcell/v2"

// Action is a key bound to a handler.
type Action struct {
	Key     tcell.Key
	Rune    rune
	Name    string
	Handler func()
}

// Rune binds a printable key.
func Rune(r rune, name string, fn func()) *Action {
	return &Action{Key: tcell.KeyRune, Rune: r, Name: name, Handler: fn}
}

// Key binds a special key such as Esc or Tab.
func Key(k tcell.Key, name string, fn func()) *Action {
	return &Action{Key: k, Name: name, Handler: fn}
}

// Matches returns true if the event matches this action.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

// Registry holds keybindings organized by page. Page bindings shadow
// global ones with the same key.
type Registry struct {
	global []*Action
	views  map[string][]*Action
}

// NewRegistry creates a new keybinding registry.
func NewRegistry() *Registry {
	return &Registry{
		views: make(map[string][]*Action),
	}
}

// AddGlobal registers keybindings active on every page.
func (r *Registry) AddGlobal(actions ...*Action) {
	r.global = append(r.global, actions...)
}

// AddView registers page-specific keybindings.
func (r *Registry) AddView(view string, actions ...*Action) {
	r.views[view] = append(r.views[view], actions...)
}

// Lookup returns the action ev triggers on view, or nil.
func (r *Registry) Lookup(view string, ev *tcell.EventKey) *Action {
	for _, a := range r.views[view] {
		if a.Matches(ev) {
			return a
		}
	}
	for _, a := range r.global {
		if a.Matches(ev) {
			return a
		}
	}
	return nil
}

// HandleEvent dispatches a key event to the matching action on view.
// Returns true if a handler ran.
func (r *Registry) HandleEvent(view string, ev *tcell.EventKey) bool {
	a := r.Lookup(view, ev)
	if a == nil || a.Handler == nil {
		return false
	}
	a.Handler()
	return true
}
