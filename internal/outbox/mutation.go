package outbox

import (
	"errors"
	"fmt"

	"github.com/dropdeck/dropdeck/internal/model"
)

// ErrValidation is matched by every error Submit returns for a mutation
// rejected before any network call.
var ErrValidation = errors.New("invalid mutation")

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Mutation is one user write. The set is closed.
type Mutation interface {
	kind() string
}

// SendMessage posts a text or poll message.
type SendMessage struct {
	ConversationID string
	Body           model.Body
	ReplyTo        string
}

// UploadFile posts a file message.
type UploadFile struct {
	ConversationID string
	Upload         model.Upload
}

// MarkRead clears a conversation's unread count.
type MarkRead struct {
	ConversationID string
}

// JoinDecision accepts or declines a join request notification.
type JoinDecision struct {
	NotificationID string
	Decision       model.JoinDecision
}

// MarkNotificationsRead removes notifications from the unread set. An
// empty IDs list means every unread notification.
type MarkNotificationsRead struct {
	IDs []string
}

func (SendMessage) kind() string           { return "send_message" }
func (UploadFile) kind() string            { return "upload_file" }
func (MarkRead) kind() string              { return "mark_read" }
func (JoinDecision) kind() string          { return "join_decision" }
func (MarkNotificationsRead) kind() string { return "mark_notifications_read" }

// Result describes a completed mutation.
type Result struct {
	CorrelationID string
	// Message is the confirmed server record for sends and uploads.
	Message *model.Message
}

// SendAck is the payload of bus.KindSendAck.
type SendAck struct {
	CorrelationID  string `json:"correlation_id"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

// SendFailure is the payload of bus.KindSendFailed.
type SendFailure struct {
	CorrelationID  string `json:"correlation_id"`
	ConversationID string `json:"conversation_id"`
	Kind           string `json:"kind"`
	Error          string `json:"error"`
}
