package sync

import (
	"fmt"
	"strings"
)

// ScopeKind names what a refetch reloads.
type ScopeKind string

const (
	ScopeConversations ScopeKind = "conversations"
	ScopeConversation  ScopeKind = "conversation"
	ScopeNotifications ScopeKind = "notifications"
)

// Scope identifies one refetchable slice of server state.
type Scope struct {
	Kind ScopeKind
	ID   string
}

// Conversations is the scope of the user's conversation list.
func Conversations() Scope { return Scope{Kind: ScopeConversations} }

// Conversation is the scope of one conversation's latest message page.
func Conversation(id string) Scope { return Scope{Kind: ScopeConversation, ID: id} }

// Notifications is the scope of the unread notification batch.
func Notifications() Scope { return Scope{Kind: ScopeNotifications} }

// Key renders the scope as "conversations", "conversation:<id>" or
// "notifications".
func (s Scope) Key() string {
	if s.Kind == ScopeConversation {
		return string(s.Kind) + ":" + s.ID
	}
	return string(s.Kind)
}

func (s Scope) String() string { return s.Key() }

// ParseScope is the inverse of Key.
func ParseScope(key string) (Scope, error) {
	kind, id, _ := strings.Cut(key, ":")
	switch ScopeKind(kind) {
	case ScopeConversations, ScopeNotifications:
		if id != "" {
			return Scope{}, fmt.Errorf("scope %q takes no id", kind)
		}
		return Scope{Kind: ScopeKind(kind)}, nil
	case ScopeConversation:
		if id == "" {
			return Scope{}, fmt.Errorf("scope %q needs a conversation id", key)
		}
		return Conversation(id), nil
	}
	return Scope{}, fmt.Errorf("unknown scope %q", key)
}
