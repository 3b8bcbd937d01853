package keys

import (
	"testing"

	"github.com/gdamore/tcell/v2"
)

func runeEvent(r rune) *tcell.EventKey {
	return tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone)
}

func TestViewBindingShadowsGlobal(t *testing.T) {
	var got []string
	r := NewRegistry()
	r.AddGlobal(
		Rune('n', "notifications", func() { got = append(got, "global") }),
		Key(tcell.KeyEscape, "back", func() { got = append(got, "esc") }),
	)
	r.AddView("thread", Rune('n', "next match", func() { got = append(got, "thread") }))

	if !r.HandleEvent("thread", runeEvent('n')) {
		t.Fatal("n not handled on thread")
	}
	if !r.HandleEvent("conversations", runeEvent('n')) {
		t.Fatal("n not handled on conversations")
	}
	if !r.HandleEvent("thread", tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone)) {
		t.Fatal("esc not handled")
	}
	want := []string{"thread", "global", "esc"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestUnboundKey(t *testing.T) {
	r := NewRegistry()
	r.AddView("thread", Rune('o', "older", func() {}))
	if r.HandleEvent("conversations", runeEvent('o')) {
		t.Error("thread binding leaked to another page")
	}
	if a := r.Lookup("thread", runeEvent('o')); a == nil || a.Name != "older" {
		t.Errorf("Lookup = %+v", a)
	}
}
