package model

import (
	"errors"
	"testing"
	"time"
)

func TestBodyValidate(t *testing.T) {
	tests := []struct {
		name string
		body Body
		want error
	}{
		{"text", TextBody("hello"), nil},
		{"blank text", TextBody("   "), ErrEmptyText},
		{"poll", PollBody("Lunch?", []string{"pizza", "sushi"}), nil},
		{"poll empty question", PollBody(" ", []string{"a", "b"}), ErrEmptyQuestion},
		{"poll one option", PollBody("Q", []string{"a", "  "}), ErrTooFewOptions},
		{"file", FileBody(FileRef{Name: "a.pdf", Size: 10}), nil},
		{"file without name", Body{Kind: KindFile, File: &FileRef{}}, ErrMissingFile},
		{"unknown", Body{Kind: "sticker"}, ErrUnknownBodyKind},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.body.Validate()
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPollBodyTrimsOptions(t *testing.T) {
	b := PollBody("  Where? ", []string{" here ", "", "there"})
	if b.Poll.Question != "Where?" {
		t.Errorf("question = %q", b.Poll.Question)
	}
	if len(b.Poll.Options) != 2 || b.Poll.Options[0] != "here" {
		t.Errorf("options = %v", b.Poll.Options)
	}
}

func TestLastActivityFallsBackToCreatedAt(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Conversation{CreatedAt: created}
	if !c.LastActivity().Equal(created) {
		t.Errorf("LastActivity() = %v, want %v", c.LastActivity(), created)
	}
	last := created.Add(time.Hour)
	c.LastMessage = &MessageSummary{CreatedAt: last}
	if !c.LastActivity().Equal(last) {
		t.Errorf("LastActivity() = %v, want %v", c.LastActivity(), last)
	}
}

func TestStatusAtLeast(t *testing.T) {
	if got := StatusSending.AtLeast(StatusSent); got != StatusSent {
		t.Errorf("sending.AtLeast(sent) = %s", got)
	}
	if got := StatusRead.AtLeast(StatusSent); got != StatusRead {
		t.Errorf("read.AtLeast(sent) = %s", got)
	}
}

func TestSearchTextCoversPollOptions(t *testing.T) {
	b := PollBody("Dinner", []string{"Tacos", "Ramen"})
	if got := b.SearchText(); got != "Dinner\nTacos\nRamen" {
		t.Errorf("SearchText() = %q", got)
	}
}
