package model

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Kind identifies which variant a Body carries.
type Kind string

const (
	KindText Kind = "text"
	KindFile Kind = "file"
	KindPoll Kind = "poll"
)

// Body is the content of a message. Exactly one of Text, File or Poll is
// meaningful, selected by Kind.
type Body struct {
	Kind Kind     `json:"kind"`
	Text string   `json:"text,omitempty"`
	File *FileRef `json:"file,omitempty"`
	Poll *Poll    `json:"poll,omitempty"`
}

// FileRef describes an uploaded attachment.
type FileRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	MIME string `json:"mime,omitempty"`
}

// Poll is a question with fixed answer options.
type Poll struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// Upload is a local file about to be sent.
type Upload struct {
	Name    string
	MIME    string
	Size    int64
	Content io.Reader
}

// TextBody builds a text body.
func TextBody(text string) Body { return Body{Kind: KindText, Text: text} }

// FileBody builds a file body.
func FileBody(f FileRef) Body { return Body{Kind: KindFile, File: &f} }

// PollBody builds a poll body, trimming blank options.
func PollBody(question string, options []string) Body {
	opts := make([]string, 0, len(options))
	for _, o := range options {
		if o = strings.TrimSpace(o); o != "" {
			opts = append(opts, o)
		}
	}
	return Body{Kind: KindPoll, Poll: &Poll{Question: strings.TrimSpace(question), Options: opts}}
}

var (
	ErrEmptyText        = errors.New("message text is empty")
	ErrEmptyQuestion    = errors.New("poll question is empty")
	ErrTooFewOptions    = errors.New("poll needs at least two options")
	ErrMissingFile      = errors.New("file body has no file")
	ErrUnknownBodyKind  = errors.New("unknown message kind")
	ErrMismatchedFields = errors.New("body fields do not match its kind")
)

// Validate checks the body is well-formed for its kind.
func (b Body) Validate() error {
	switch b.Kind {
	case KindText:
		if strings.TrimSpace(b.Text) == "" {
			return ErrEmptyText
		}
		if b.File != nil || b.Poll != nil {
			return ErrMismatchedFields
		}
	case KindPoll:
		if b.Poll == nil || strings.TrimSpace(b.Poll.Question) == "" {
			return ErrEmptyQuestion
		}
		n := 0
		for _, o := range b.Poll.Options {
			if strings.TrimSpace(o) != "" {
				n++
			}
		}
		if n < 2 {
			return ErrTooFewOptions
		}
	case KindFile:
		if b.File == nil || b.File.Name == "" {
			return ErrMissingFile
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBodyKind, b.Kind)
	}
	return nil
}

// Preview is a one-line rendering used in lists and notifications.
func (b Body) Preview() string {
	switch b.Kind {
	case KindFile:
		if b.File != nil {
			return "[file] " + b.File.Name
		}
		return "[file]"
	case KindPoll:
		if b.Poll != nil {
			return "[poll] " + b.Poll.Question
		}
		return "[poll]"
	default:
		return b.Text
	}
}

// SearchText is the text a reader sees for the body, which is what
// in-conversation search matches against.
func (b Body) SearchText() string {
	switch b.Kind {
	case KindFile:
		if b.File != nil {
			return b.File.Name
		}
	case KindPoll:
		if b.Poll != nil {
			return b.Poll.Question + "\n" + strings.Join(b.Poll.Options, "\n")
		}
	default:
		return b.Text
	}
	return ""
}
