package search

import (
	"reflect"
	"strings"
	"testing"

	"github.com/dropdeck/dropdeck/internal/model"
)

func msgs(texts ...string) []model.Message {
	out := make([]model.Message, len(texts))
	for i, t := range texts {
		out[i] = model.Message{ID: string(rune('a' + i)), Body: model.TextBody(t)}
	}
	return out
}

func TestCaseInsensitiveMatches(t *testing.T) {
	x := New()
	x.SetMessages(msgs("Hello there", "nothing", "say HELLO", "hell no"))
	x.SetTerm("hello")

	if got, want := x.Matches(), []int{0, 2}; !reflect.DeepEqual(got, want) {
		t.Errorf("Matches() = %v, want %v", got, want)
	}
}

func TestMatchesUseUnicodeFolding(t *testing.T) {
	x := New()
	x.SetMessages(msgs("ſtop here", "STOP", "Straße", "ΣΊΣΥΦΟΣ"))

	x.SetTerm("stop")
	if got, want := x.Matches(), []int{0, 1}; !reflect.DeepEqual(got, want) {
		t.Errorf("Matches(stop) = %v, want %v", got, want)
	}
	x.SetTerm("strasse")
	if got, want := x.Matches(), []int{2}; !reflect.DeepEqual(got, want) {
		t.Errorf("Matches(strasse) = %v, want %v", got, want)
	}
	x.SetTerm("σίσυφος")
	if got, want := x.Matches(), []int{3}; !reflect.DeepEqual(got, want) {
		t.Errorf("Matches(σίσυφος) = %v, want %v", got, want)
	}
}

func TestNavigateStopsAtBoundary(t *testing.T) {
	x := New()
	x.SetMessages(msgs("cat", "dog", "cat", "cat"))
	x.SetTerm("cat")

	cur := x.Current()
	if cur.Message != 0 || cur.HasPrev || !cur.HasNext {
		t.Fatalf("initial cursor = %+v", cur)
	}

	want := []Step{
		{Moved: true, Cursor: 1, Message: 2, HasNext: true, HasPrev: true},
		{Moved: true, Cursor: 2, Message: 3, HasNext: false, HasPrev: true},
		{Moved: false, Cursor: 2, Message: 3, HasNext: false, HasPrev: true},
	}
	for i, w := range want {
		if got := x.Navigate(Next); got != w {
			t.Errorf("Navigate(Next) #%d = %+v, want %+v", i+1, got, w)
		}
	}

	// Repeating at the boundary is stable.
	if got := x.Navigate(Next); got.Moved || got.Message != 3 {
		t.Errorf("Navigate past end = %+v", got)
	}

	for range 2 {
		x.Navigate(Prev)
	}
	if got := x.Navigate(Prev); got.Moved || got.Message != 0 || got.HasPrev {
		t.Errorf("Navigate(Prev) at start = %+v", got)
	}
}

func TestNoMatches(t *testing.T) {
	x := New()
	x.SetMessages(msgs("a", "b"))
	x.SetTerm("zzz")
	got := x.Navigate(Next)
	if got.Moved || got.Cursor != -1 || got.Message != -1 || got.HasNext || got.HasPrev {
		t.Errorf("Navigate with no matches = %+v", got)
	}
}

func TestClearTermResetsCursor(t *testing.T) {
	x := New()
	x.SetMessages(msgs("x1", "x2"))
	x.SetTerm("x")
	x.Navigate(Next)
	x.SetTerm("")
	if got := x.Current(); got.Cursor != -1 {
		t.Errorf("cursor after clear = %+v", got)
	}
	if len(x.Matches()) != 0 {
		t.Error("matches not cleared")
	}
}

func TestReplacingMessagesResetsToFirstMatch(t *testing.T) {
	x := New()
	x.SetMessages(msgs("x1", "x2", "x3"))
	x.SetTerm("x")
	x.Navigate(Next)
	x.Navigate(Next)

	x.SetMessages(msgs("y", "x9", "x8"))
	got := x.Current()
	if got.Cursor != 0 || got.Message != 1 {
		t.Errorf("cursor after SetMessages = %+v, want first match at message 1", got)
	}
}

func TestMatchesPollAndFileText(t *testing.T) {
	x := New()
	x.SetMessages([]model.Message{
		{Body: model.PollBody("Lunch", []string{"Pizza", "Salad"})},
		{Body: model.FileBody(model.FileRef{Name: "pizza-menu.pdf"})},
		{Body: model.TextBody("no")},
	})
	x.SetTerm("PIZZA")
	if got, want := x.Matches(), []int{0, 1}; !reflect.DeepEqual(got, want) {
		t.Errorf("Matches() = %v, want %v", got, want)
	}
}

func TestHighlight(t *testing.T) {
	segs := Highlight("Go go GO!", "go")
	want := []Segment{
		{Text: "Go", Match: true},
		{Text: " "},
		{Text: "go", Match: true},
		{Text: " "},
		{Text: "GO", Match: true},
		{Text: "!"},
	}
	if !reflect.DeepEqual(segs, want) {
		t.Errorf("Highlight = %+v, want %+v", segs, want)
	}
}

func TestHighlightRoundTripsText(t *testing.T) {
	for _, text := range []string{"İstanbul istanbul", "plain", "ÀÉÎ àéî"} {
		var b strings.Builder
		for _, s := range Highlight(text, "i") {
			b.WriteString(s.Text)
		}
		if b.String() != text {
			t.Errorf("segments of %q rebuild to %q", text, b.String())
		}
	}
}

func TestHighlightEmptyTerm(t *testing.T) {
	if got := Highlight("abc", ""); len(got) != 1 || got[0].Match {
		t.Errorf("Highlight with empty term = %+v", got)
	}
}
