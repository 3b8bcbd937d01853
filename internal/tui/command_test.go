package tui

import (
	"slices"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want Command
	}{
		{"quit", Command{Name: "quit"}},
		{"  Q ", Command{Name: "quit"}},
		{"search  tomato soup ", Command{Name: "search", Args: "tomato soup"}},
		{"logout", Command{Name: "signout"}},
		{"chat General", Command{Name: "open", Args: "General"}},
		{"", Command{}},
	}
	for _, tt := range tests {
		if got := ParseCommand(tt.in); got != tt.want {
			t.Errorf("ParseCommand(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestParsePoll(t *testing.T) {
	q, opts, err := parsePoll(" Lunch? | pizza |  | soup ")
	if err != nil {
		t.Fatal(err)
	}
	if q != "Lunch?" || !slices.Equal(opts, []string{"pizza", "soup"}) {
		t.Errorf("parsePoll = %q %v", q, opts)
	}
	for _, bad := range []string{"", "Lunch?", "Lunch? | pizza"} {
		if _, _, err := parsePoll(bad); err == nil {
			t.Errorf("parsePoll(%q) should fail", bad)
		}
	}
}
