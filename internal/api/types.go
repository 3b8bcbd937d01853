package api

import (
	"encoding/json"
	"time"

	"github.com/dropdeck/dropdeck/internal/deck"
	"github.com/dropdeck/dropdeck/internal/model"
	"github.com/dropdeck/dropdeck/internal/search"
	"github.com/dropdeck/dropdeck/internal/store"
)

// Empty is the request or response of methods without arguments.
type Empty struct{}

type StatusResponse struct {
	Session string `json:"session"`
	deck.Status
}

type SignInRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captcha_token,omitempty"`
}

type SignInResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type ConversationRequest struct {
	ConversationID string `json:"conversation_id"`
}

type ConversationsResponse struct {
	Conversations []model.Conversation `json:"conversations"`
}

type MessagesResponse struct {
	Messages []model.Message `json:"messages"`
}

type MessageResponse struct {
	Message model.Message `json:"message"`
}

type CountResponse struct {
	Count int `json:"count"`
}

type SendTextRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Text           string `json:"text"`
	ReplyTo        string `json:"reply_to,omitempty"`
}

type SendPollRequest struct {
	ConversationID string   `json:"conversation_id,omitempty"`
	Question       string   `json:"question"`
	Options        []string `json:"options"`
}

// UploadFileRequest carries the whole file; the server's receive limit
// follows uploads.max_bytes.
type UploadFileRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Name           string `json:"name"`
	MIME           string `json:"mime,omitempty"`
	Content        []byte `json:"content"`
}

type SetPinnedRequest struct {
	ConversationID string `json:"conversation_id"`
	Pinned         bool   `json:"pinned"`
}

type TypingResponse struct {
	Typing []model.TypingEntry `json:"typing"`
}

type FindRequest struct {
	Term string `json:"term"`
}

type FindResponse struct {
	Step    search.Step `json:"step"`
	Matches []int       `json:"matches"`
}

type NavigateRequest struct {
	// Direction is "next" or "prev".
	Direction string `json:"direction"`
}

type NotificationsResponse struct {
	Notifications []model.Notification `json:"notifications"`
}

type MarkNotificationsReadRequest struct {
	// IDs empty means every unread notification.
	IDs []string `json:"ids,omitempty"`
}

type JoinDecisionRequest struct {
	NotificationID string             `json:"notification_id"`
	Decision       model.JoinDecision `json:"decision"`
}

type SearchRequest struct {
	Query string `json:"query"`
}

type JoinRequest struct {
	GroupID string `json:"group_id"`
}

type JoinResponse struct {
	Joined bool `json:"joined"`
}

type EmojiRequest struct {
	Emoji string `json:"emoji"`
}

type EmojiResponse struct {
	Emoji []string `json:"emoji"`
}

type ListOutboxRequest struct {
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type OutboxResponse struct {
	Entries []store.OutboxEntry `json:"entries"`
}

type WatchRequest struct {
	// Namespaces filters bus events by prefix ("message.", "state.").
	// Empty means everything.
	Namespaces []string `json:"namespaces,omitempty"`
}

// Event is one bus event delivered by WatchEvents.
type Event struct {
	ID         string          `json:"id"`
	Session    string          `json:"session"`
	Kind       string          `json:"kind"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}
