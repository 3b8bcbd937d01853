// Package search finds and steps through term matches in the loaded
// messages of the active conversation.
package search

import (
	"strings"
	"sync"

	"github.com/dropdeck/dropdeck/internal/model"
	"golang.org/x/text/cases"
)

// Direction selects which way Navigate moves.
type Direction int

const (
	Next Direction = iota
	Prev
)

// Step is the outcome of Navigate. Navigation does not wrap: at either end
// Moved is false and the cursor stays put.
type Step struct {
	Moved   bool
	Cursor  int // position within Matches, -1 when there are none
	Message int // index into the message list, -1 when there are none
	HasNext bool
	HasPrev bool
}

// Index holds the match positions of the current term over an ordered
// message list. It is safe for concurrent use.
type Index struct {
	mu      sync.Mutex
	texts   []string
	term    string
	folded  string
	matches []int
	cursor  int
}

// Fold returns the Unicode case folding of s, so "ſ", "s" and "S" compare
// equal.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// New returns an empty index.
func New() *Index {
	return &Index{cursor: -1}
}

// SetMessages replaces the message list and recomputes matches for the
// current term. The cursor returns to the first match.
func (x *Index) SetMessages(msgs []model.Message) {
	texts := make([]string, len(msgs))
	for i, m := range msgs {
		texts[i] = Fold(m.Body.SearchText())
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.texts = texts
	x.recompute()
}

// SetTerm changes the search term. An empty term clears all matches.
func (x *Index) SetTerm(term string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.term = term
	x.folded = Fold(term)
	x.recompute()
}

// Reset drops the messages and the term.
func (x *Index) Reset() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.texts = nil
	x.term, x.folded = "", ""
	x.matches = nil
	x.cursor = -1
}

func (x *Index) recompute() {
	x.matches = x.matches[:0]
	if x.folded != "" {
		for i, t := range x.texts {
			if strings.Contains(t, x.folded) {
				x.matches = append(x.matches, i)
			}
		}
	}
	if len(x.matches) > 0 {
		x.cursor = 0
	} else {
		x.cursor = -1
	}
}

// Term returns the current search term.
func (x *Index) Term() string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.term
}

// Matches returns the message positions that contain the term, ascending.
func (x *Index) Matches() []int {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make([]int, len(x.matches))
	copy(out, x.matches)
	return out
}

// Current returns the cursor without moving it.
func (x *Index) Current() Step {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.step(false)
}

// Navigate moves the cursor one match in dir if such a match exists.
func (x *Index) Navigate(dir Direction) Step {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.cursor < 0 {
		return x.step(false)
	}
	target := x.cursor + 1
	if dir == Prev {
		target = x.cursor - 1
	}
	if target < 0 || target >= len(x.matches) {
		return x.step(false)
	}
	x.cursor = target
	return x.step(true)
}

func (x *Index) step(moved bool) Step {
	s := Step{Moved: moved, Cursor: x.cursor, Message: -1}
	if x.cursor >= 0 {
		s.Message = x.matches[x.cursor]
		s.HasPrev = x.cursor > 0
		s.HasNext = x.cursor < len(x.matches)-1
	}
	return s
}
