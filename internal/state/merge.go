package state

import (
	"slices"
	"strings"

	"github.com/dropdeck/dropdeck/internal/model"
)

// DedupeConversations collapses conversations sharing an id. When copies
// disagree the most recently active one wins; ties go to the later copy.
// Output order is unspecified; pass it through SortConversations.
func DedupeConversations(list []model.Conversation) []model.Conversation {
	byID := make(map[string]model.Conversation, len(list))
	for _, c := range list {
		if prev, ok := byID[c.ID]; ok && prev.LastActivity().After(c.LastActivity()) {
			continue
		}
		byID[c.ID] = c
	}
	out := make([]model.Conversation, 0, len(byID))
	for _, c := range byID {
		out = append(out, c)
	}
	return out
}

// SortConversations orders pinned conversations first, each group by last
// activity descending. Equal activity falls back to id so the order is total.
func SortConversations(list []model.Conversation) {
	slices.SortStableFunc(list, func(a, b model.Conversation) int {
		if a.Pinned != b.Pinned {
			if a.Pinned {
				return -1
			}
			return 1
		}
		if c := b.LastActivity().Compare(a.LastActivity()); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// MergeMessages folds a fetched page into the current ordered list.
//
// Messages are unioned by id and the server copy wins. A server message
// whose correlation id matches a placeholder replaces that placeholder only
// when every earlier placeholder is replaced too; otherwise, or when the
// key is held, the placeholder keeps its slot until its predecessors
// resolve. Confirmed messages are ordered by creation time, then id.
// Placeholders stay after them in submission order.
func MergeMessages(current, page []model.Message, held map[string]bool) []model.Message {
	confirmed := make(map[string]model.Message, len(current)+len(page))
	var placeholders []model.Message
	for _, m := range current {
		if m.Placeholder() {
			placeholders = append(placeholders, m)
			continue
		}
		confirmed[m.ID] = m
	}

	inPage := make(map[string]bool, len(page))
	for _, m := range page {
		if m.CorrelationID != "" {
			inPage[m.CorrelationID] = true
		}
	}
	deferred := make(map[string]bool)
	leading := true
	for _, p := range placeholders {
		if leading && inPage[p.CorrelationID] && !held[p.CorrelationID] {
			continue
		}
		leading = false
		deferred[p.CorrelationID] = true
	}

	fetched := make(map[string]bool, len(page))
	for _, m := range page {
		if m.CorrelationID != "" && (held[m.CorrelationID] || deferred[m.CorrelationID]) {
			continue
		}
		if held[m.ID] {
			continue
		}
		confirmed[m.ID] = m
		if m.CorrelationID != "" {
			fetched[m.CorrelationID] = true
		}
	}

	out := make([]model.Message, 0, len(confirmed)+len(placeholders))
	for _, m := range confirmed {
		out = append(out, m)
	}
	SortMessages(out)
	for _, p := range placeholders {
		if !fetched[p.CorrelationID] {
			out = append(out, p)
		}
	}
	return out
}

// SortMessages orders confirmed messages by creation time, then id.
func SortMessages(list []model.Message) {
	slices.SortStableFunc(list, func(a, b model.Message) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
