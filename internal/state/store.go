// Package state is the in-memory view of conversations, messages and
// unread notifications that the sync components reconcile into.
package state

import (
	"slices"
	"sync"

	"github.com/dropdeck/dropdeck/internal/bus"
	"github.com/dropdeck/dropdeck/internal/model"
)

// Store is safe for concurrent use. Every write merges into existing state;
// nothing is replaced wholesale except by a fresher server snapshot.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]model.Conversation
	pinned        map[string]bool
	readPending   map[string]int
	messages      map[string][]model.Message
	held          map[string]map[string]bool
	notifications map[string]model.Notification
	bus           *bus.Bus
}

// New creates an empty store that announces changes on b.
func New(b *bus.Bus) *Store {
	return &Store{
		conversations: make(map[string]model.Conversation),
		pinned:        make(map[string]bool),
		readPending:   make(map[string]int),
		messages:      make(map[string][]model.Message),
		held:          make(map[string]map[string]bool),
		notifications: make(map[string]model.Notification),
		bus:           b,
	}
}

// ReplaceConversations reconciles a freshly fetched conversation list.
// Conversations absent from list are removed. Local pinned flags survive,
// a newer local last message is kept over an older server one, and unread
// counts stay zero while a mark-read is in flight.
func (s *Store) ReplaceConversations(list []model.Conversation) {
	list = DedupeConversations(list)
	s.mu.Lock()
	next := make(map[string]model.Conversation, len(list))
	for _, c := range list {
		if prev, ok := s.conversations[c.ID]; ok {
			if prev.LastMessage != nil && (c.LastMessage == nil || prev.LastMessage.CreatedAt.After(c.LastMessage.CreatedAt)) {
				c.LastMessage = prev.LastMessage
			}
		}
		if s.readPending[c.ID] > 0 {
			c.UnreadCount = 0
		}
		c.Pinned = s.pinned[c.ID]
		next[c.ID] = c
	}
	s.conversations = next
	s.mu.Unlock()
	s.bus.Emit(bus.KindConversationsChange, nil)
}

// Conversations returns all conversations, pinned first, most recent first.
func (s *Store) Conversations() []model.Conversation {
	s.mu.RLock()
	out := make([]model.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, c)
	}
	s.mu.RUnlock()
	SortConversations(out)
	return out
}

// Conversation looks up one conversation by id.
func (s *Store) Conversation(id string) (model.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	return c, ok
}

// SetPinnedIDs replaces the set of pinned conversation ids.
func (s *Store) SetPinnedIDs(ids []string) {
	s.mu.Lock()
	clear(s.pinned)
	for _, id := range ids {
		s.pinned[id] = true
	}
	for id, c := range s.conversations {
		c.Pinned = s.pinned[id]
		s.conversations[id] = c
	}
	s.mu.Unlock()
	s.bus.Emit(bus.KindConversationsChange, nil)
}

// SetPinned pins or unpins one conversation.
func (s *Store) SetPinned(id string, pinned bool) {
	s.mu.Lock()
	if pinned {
		s.pinned[id] = true
	} else {
		delete(s.pinned, id)
	}
	if c, ok := s.conversations[id]; ok {
		c.Pinned = pinned
		s.conversations[id] = c
	}
	s.mu.Unlock()
	s.bus.Emit(bus.KindConversationsChange, nil)
}

// PinnedIDs returns the pinned conversation ids in no particular order.
func (s *Store) PinnedIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.pinned))
	for id := range s.pinned {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// BeginMarkRead zeroes the unread count of a conversation and returns the
// previous value. Until EndMarkRead, refreshed lists cannot bring the
// count back.
func (s *Store) BeginMarkRead(id string) int {
	s.mu.Lock()
	prev := 0
	if c, ok := s.conversations[id]; ok {
		prev = c.UnreadCount
		c.UnreadCount = 0
		s.conversations[id] = c
	}
	s.readPending[id]++
	s.mu.Unlock()
	s.bus.Emit(bus.KindConversationsChange, nil)
	return prev
}

// EndMarkRead finishes a mark-read. On failure the unread count goes back
// to restore unless a newer server value arrived meanwhile.
func (s *Store) EndMarkRead(id string, ok bool, restore int) {
	s.mu.Lock()
	if s.readPending[id]--; s.readPending[id] <= 0 {
		delete(s.readPending, id)
	}
	if !ok {
		if c, found := s.conversations[id]; found && c.UnreadCount == 0 {
			c.UnreadCount = restore
			s.conversations[id] = c
		}
	}
	s.mu.Unlock()
	if !ok {
		s.bus.Emit(bus.KindConversationsChange, nil)
	}
}

// Messages returns the ordered message list of a conversation.
func (s *Store) Messages(conversationID string) []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages[conversationID])
}

// MergeMessages reconciles a fetched page into a conversation.
func (s *Store) MergeMessages(conversationID string, page []model.Message) {
	s.mu.Lock()
	s.messages[conversationID] = MergeMessages(s.messages[conversationID], page, s.held[conversationID])
	s.mu.Unlock()
	s.bus.Emit(bus.KindMessagesChange, conversationID)
}

// DropMessages forgets the cached messages of a conversation.
func (s *Store) DropMessages(conversationID string) {
	s.mu.Lock()
	kept := s.messages[conversationID][:0:0]
	for _, m := range s.messages[conversationID] {
		if m.Placeholder() {
			kept = append(kept, m)
		}
	}
	s.messages[conversationID] = kept
	s.mu.Unlock()
}

// AddPlaceholder appends an optimistic message after everything else in
// its conversation.
func (s *Store) AddPlaceholder(m model.Message) {
	s.mu.Lock()
	s.messages[m.ConversationID] = append(s.messages[m.ConversationID], m)
	s.mu.Unlock()
	s.bus.Emit(bus.KindMessagesChange, m.ConversationID)
}

// Hold marks keys (correlation or server ids) whose server copies must not
// be merged yet because an earlier placeholder is still unresolved.
func (s *Store) Hold(conversationID string, keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.held[conversationID]
	if h == nil {
		h = make(map[string]bool)
		s.held[conversationID] = h
	}
	for _, k := range keys {
		if k != "" {
			h[k] = true
		}
	}
}

func (s *Store) releaseLocked(conversationID string, keys ...string) {
	h := s.held[conversationID]
	for _, k := range keys {
		delete(h, k)
	}
	if len(h) == 0 {
		delete(s.held, conversationID)
	}
}

// ConfirmPlaceholder swaps the placeholder carrying correlationID for the
// confirmed message. If the confirmed message already arrived through a
// refetch, the placeholder is just dropped so the message is not doubled.
func (s *Store) ConfirmPlaceholder(conversationID, correlationID string, confirmed model.Message) {
	s.mu.Lock()
	s.releaseLocked(conversationID, correlationID, confirmed.ID)
	list := s.messages[conversationID]
	out := make([]model.Message, 0, len(list))
	present := false
	for _, m := range list {
		if !m.Placeholder() && m.ID == confirmed.ID {
			present = true
		}
	}
	for _, m := range list {
		if m.Placeholder() && m.CorrelationID == correlationID {
			if !present {
				out = append(out, confirmed)
			}
			continue
		}
		out = append(out, m)
	}
	s.messages[conversationID] = out
	if c, ok := s.conversations[conversationID]; ok {
		if c.LastMessage == nil || !confirmed.CreatedAt.Before(c.LastMessage.CreatedAt) {
			c.LastMessage = confirmed.Summary()
			s.conversations[conversationID] = c
		}
	}
	s.mu.Unlock()
	s.bus.Emit(bus.KindMessagesChange, conversationID)
	s.bus.Emit(bus.KindConversationsChange, nil)
}

// RemovePlaceholder rolls back an optimistic message. It reports whether
// the placeholder was found.
func (s *Store) RemovePlaceholder(conversationID, correlationID string) bool {
	s.mu.Lock()
	s.releaseLocked(conversationID, correlationID)
	list := s.messages[conversationID]
	idx := slices.IndexFunc(list, func(m model.Message) bool {
		return m.Placeholder() && m.CorrelationID == correlationID
	})
	if idx >= 0 {
		s.messages[conversationID] = slices.Delete(slices.Clone(list), idx, idx+1)
	}
	s.mu.Unlock()
	if idx >= 0 {
		s.bus.Emit(bus.KindMessagesChange, conversationID)
	}
	return idx >= 0
}

// ReplaceNotifications reconciles a fetched batch of unread notifications.
// Entries whose action is already decided locally keep that decision.
func (s *Store) ReplaceNotifications(list []model.Notification) {
	s.mu.Lock()
	next := make(map[string]model.Notification, len(list))
	for _, n := range list {
		if prev, ok := s.notifications[n.ID]; ok && prev.Action != model.ActionPending && n.Action == model.ActionPending {
			n.Action = prev.Action
		}
		next[n.ID] = n
	}
	s.notifications = next
	s.mu.Unlock()
	s.bus.Emit(bus.KindNotificationsChange, nil)
}

// Notifications returns the unread notifications, newest first.
func (s *Store) Notifications() []model.Notification {
	s.mu.RLock()
	out := make([]model.Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		out = append(out, n)
	}
	s.mu.RUnlock()
	slices.SortStableFunc(out, func(a, b model.Notification) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}

// Notification looks up one unread notification.
func (s *Store) Notification(id string) (model.Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notifications[id]
	return n, ok
}

// RemoveNotifications drops ids from the unread set and returns what was
// removed so a failed write can put it back.
func (s *Store) RemoveNotifications(ids ...string) []model.Notification {
	s.mu.Lock()
	var removed []model.Notification
	for _, id := range ids {
		if n, ok := s.notifications[id]; ok {
			removed = append(removed, n)
			delete(s.notifications, id)
		}
	}
	s.mu.Unlock()
	if len(removed) > 0 {
		s.bus.Emit(bus.KindNotificationsChange, nil)
	}
	return removed
}

// RestoreNotifications puts previously removed notifications back.
func (s *Store) RestoreNotifications(list []model.Notification) {
	if len(list) == 0 {
		return
	}
	s.mu.Lock()
	for _, n := range list {
		s.notifications[n.ID] = n
	}
	s.mu.Unlock()
	s.bus.Emit(bus.KindNotificationsChange, nil)
}

// SetNotificationAction records a join decision on a notification and
// returns the previous action state.
func (s *Store) SetNotificationAction(id string, action model.ActionState) (model.ActionState, bool) {
	s.mu.Lock()
	n, ok := s.notifications[id]
	prev := n.Action
	if ok {
		n.Action = action
		s.notifications[id] = n
	}
	s.mu.Unlock()
	if ok {
		s.bus.Emit(bus.KindNotificationsChange, nil)
	}
	return prev, ok
}

// Reset forgets everything fetched for the signed-in user. Pins are local
// preferences and survive.
func (s *Store) Reset() {
	s.mu.Lock()
	clear(s.conversations)
	clear(s.readPending)
	clear(s.messages)
	clear(s.held)
	clear(s.notifications)
	s.mu.Unlock()
	s.bus.Emit(bus.KindConversationsChange, nil)
	s.bus.Emit(bus.KindNotificationsChange, nil)
}
