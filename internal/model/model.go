// Package model holds the client-side domain types shared by the sync
// components: conversations, messages, notifications and typing entries.
package model

import (
	"strings"
	"time"
)

// DeliveryStatus is the lifecycle state of a message as seen by this client.
type DeliveryStatus string

const (
	StatusSending   DeliveryStatus = "sending"
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

var statusRank = map[DeliveryStatus]int{
	StatusSending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// AtLeast returns the later of s and floor in the sending→read progression.
func (s DeliveryStatus) AtLeast(floor DeliveryStatus) DeliveryStatus {
	if statusRank[s] < statusRank[floor] {
		return floor
	}
	return s
}

// LocalIDPrefix marks message ids minted for optimistic placeholders.
const LocalIDPrefix = "local-"

// Conversation is a group chat the user belongs to.
type Conversation struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	LastMessage *MessageSummary `json:"last_message,omitempty"`
	UnreadCount int             `json:"unread_count"`
	Pinned      bool            `json:"pinned"`
	AccessType  string          `json:"access_type,omitempty"`
}

// MessageSummary is the last-message preview shown in the conversation list.
type MessageSummary struct {
	ID         string    `json:"id"`
	SenderName string    `json:"sender_name,omitempty"`
	Preview    string    `json:"preview"`
	CreatedAt  time.Time `json:"created_at"`
}

// LastActivity is the time the conversation list sorts on: the last message
// if there is one, otherwise the creation time.
func (c Conversation) LastActivity() time.Time {
	if c.LastMessage != nil && !c.LastMessage.CreatedAt.IsZero() {
		return c.LastMessage.CreatedAt
	}
	return c.CreatedAt
}

// Reaction is an aggregated emoji reaction on a message.
type Reaction struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}

// Message is a single chat message, confirmed or optimistic.
type Message struct {
	ID             string         `json:"id"`
	CorrelationID  string         `json:"correlation_id,omitempty"`
	ConversationID string         `json:"conversation_id"`
	SenderID       string         `json:"sender_id"`
	SenderName     string         `json:"sender_name"`
	Body           Body           `json:"body"`
	CreatedAt      time.Time      `json:"created_at"`
	ReplyTo        string         `json:"reply_to,omitempty"`
	Reactions      []Reaction     `json:"reactions,omitempty"`
	Status         DeliveryStatus `json:"status"`
}

// Placeholder reports whether m is an unconfirmed optimistic message.
func (m Message) Placeholder() bool {
	return strings.HasPrefix(m.ID, LocalIDPrefix)
}

// Summary builds the conversation-list preview for m.
func (m Message) Summary() *MessageSummary {
	return &MessageSummary{
		ID:         m.ID,
		SenderName: m.SenderName,
		Preview:    m.Body.Preview(),
		CreatedAt:  m.CreatedAt,
	}
}

// NotificationKind distinguishes plain notices from actionable join requests.
type NotificationKind string

const (
	NotificationGeneral     NotificationKind = "general"
	NotificationJoinRequest NotificationKind = "join_request"
)

// ActionState tracks the user's decision on an actionable notification.
type ActionState string

const (
	ActionPending  ActionState = "pending"
	ActionAccepted ActionState = "accepted"
	ActionDeclined ActionState = "declined"
)

// JoinDecision is the user's answer to a join request.
type JoinDecision string

const (
	Accept  JoinDecision = "accept"
	Decline JoinDecision = "decline"
)

// State returns the notification action state the decision leads to.
func (d JoinDecision) State() ActionState {
	if d == Accept {
		return ActionAccepted
	}
	return ActionDeclined
}

// Valid reports whether d is accept or decline.
func (d JoinDecision) Valid() bool {
	return d == Accept || d == Decline
}

// Notification is an unread notice for the user.
type Notification struct {
	ID               string           `json:"id"`
	Message          string           `json:"message"`
	ConversationID   string           `json:"conversation_id,omitempty"`
	ConversationName string           `json:"conversation_name,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	Read             bool             `json:"read"`
	Kind             NotificationKind `json:"kind"`
	Action           ActionState      `json:"action"`
}

// Actionable reports whether the notification still awaits a join decision.
func (n Notification) Actionable() bool {
	return n.Kind == NotificationJoinRequest && n.Action == ActionPending
}

// TypingEntry records that a remote user is typing in a conversation.
type TypingEntry struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Name           string    `json:"name"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// SearchResults groups the hits of a global search.
type SearchResults struct {
	Messages      []Message      `json:"messages"`
	Files         []FileRef      `json:"files"`
	Conversations []Conversation `json:"conversations"`
}

// User is the signed-in account.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}
