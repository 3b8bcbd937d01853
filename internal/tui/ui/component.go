package ui

// MenuHint is one shortcut in the header menu.
type MenuHint struct {
	Key         string
	Description string
	Numeric     bool // 0-9 page jumps, drawn in their own color
	Live        bool // needs a connected session; dimmed while offline
}

// Component is a page of the deck: conversation list, thread, search and
// the rest. Start and Stop run as the page is pushed and popped.
type Component interface {
	Name() string
	Init()
	Start()
	Stop()
	Hints() []MenuHint
}
