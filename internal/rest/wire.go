package rest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dropdeck/dropdeck/internal/model"
)

// flexTime accepts RFC 3339 strings, SQL-style "2006-01-02 15:04:05"
// timestamps and unix milliseconds.
type flexTime struct{ time.Time }

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999Z07:00", "2006-01-02 15:04:05.999999999", "2006-01-02T15:04:05.999999999"}

func (t *flexTime) UnmarshalJSON(b []byte) error {
	if string(b) == "null" || string(b) == `""` {
		t.Time = time.Time{}
		return nil
	}
	if len(b) > 0 && b[0] != '"' {
		var ms int64
		if err := json.Unmarshal(b, &ms); err != nil {
			return err
		}
		t.Time = time.UnixMilli(ms)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	var err error
	for _, layout := range timeLayouts {
		var parsed time.Time
		if parsed, err = time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized time %q: %w", s, err)
}

// flexID accepts ids sent as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type wireGroup struct {
	GroupID     flexID           `json:"group_id"`
	GroupName   string           `json:"group_name"`
	Description string           `json:"description"`
	CreatedAt   flexTime         `json:"created_at"`
	AccessType  string           `json:"access_type"`
	UnreadCount int              `json:"unread_count"`
	LastMessage *wireLastMessage `json:"last_message"`
}

type wireLastMessage struct {
	MessageID   flexID    `json:"message_id"`
	Content     string    `json:"content"`
	MessageType string    `json:"message_type"`
	UserName    string    `json:"user_name"`
	CreatedAt   flexTime  `json:"created_at"`
}

func (g wireGroup) toModel() model.Conversation {
	c := model.Conversation{
		ID:          string(g.GroupID),
		Name:        g.GroupName,
		Description: g.Description,
		CreatedAt:   g.CreatedAt.Time,
		UnreadCount: g.UnreadCount,
		AccessType:  g.AccessType,
	}
	if lm := g.LastMessage; lm != nil && !lm.CreatedAt.IsZero() {
		body := decodeBody(lm.MessageType, lm.Content, nil)
		c.LastMessage = &model.MessageSummary{
			ID:         string(lm.MessageID),
			SenderName: lm.UserName,
			Preview:    body.Preview(),
			CreatedAt:  lm.CreatedAt.Time,
		}
	}
	return c
}

type wireFile struct {
	FileID   flexID `json:"file_id"`
	FileName string `json:"file_name"`
	Name     string `json:"name"`
	FileSize int64  `json:"file_size"`
	MimeType string `json:"mime_type"`
}

func (f wireFile) toModel() model.FileRef {
	name := f.FileName
	if name == "" {
		name = f.Name
	}
	return model.FileRef{ID: string(f.FileID), Name: name, Size: f.FileSize, MIME: f.MimeType}
}

type wireReaction struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}

type wireMessage struct {
	MessageID   flexID         `json:"message_id"`
	GroupID     flexID         `json:"group_id"`
	UserID      flexID         `json:"user_id"`
	UserName    string         `json:"user_name"`
	Content     string         `json:"content"`
	MessageType string         `json:"message_type"`
	CreatedAt   flexTime       `json:"created_at"`
	ReplyTo     flexID         `json:"reply_to"`
	Reactions   []wireReaction `json:"reactions"`
	Status      string         `json:"status"`
	ClientMsgID string         `json:"client_msg_id"`
	File        *wireFile      `json:"file"`
}

func (m wireMessage) toModel() model.Message {
	out := model.Message{
		ID:             string(m.MessageID),
		CorrelationID:  m.ClientMsgID,
		ConversationID: string(m.GroupID),
		SenderID:       string(m.UserID),
		SenderName:     m.UserName,
		Body:           decodeBody(m.MessageType, m.Content, m.File),
		CreatedAt:      m.CreatedAt.Time,
		ReplyTo:        string(m.ReplyTo),
		Status:         model.DeliveryStatus(m.Status).AtLeast(model.StatusSent),
	}
	for _, r := range m.Reactions {
		out.Reactions = append(out.Reactions, model.Reaction{Emoji: r.Emoji, Count: r.Count})
	}
	return out
}

// decodeBody turns the backend's content/message_type pair into a Body.
// Polls arrive as a JSON document inside content; one that fails to parse
// is shown as text rather than dropped.
func decodeBody(messageType, content string, file *wireFile) model.Body {
	switch model.Kind(messageType) {
	case model.KindPoll:
		var p model.Poll
		if err := json.Unmarshal([]byte(content), &p); err == nil && p.Question != "" {
			return model.Body{Kind: model.KindPoll, Poll: &p}
		}
	case model.KindFile:
		ref := model.FileRef{Name: content}
		if file != nil {
			ref = file.toModel()
			if ref.Name == "" {
				ref.Name = content
			}
		}
		return model.FileBody(ref)
	}
	return model.TextBody(content)
}

// encodeBody is the inverse of decodeBody for outgoing messages.
func encodeBody(b model.Body) (messageType, content string, err error) {
	switch b.Kind {
	case model.KindPoll:
		raw, err := json.Marshal(b.Poll)
		if err != nil {
			return "", "", err
		}
		return string(model.KindPoll), string(raw), nil
	case model.KindFile:
		return string(model.KindFile), b.File.Name, nil
	default:
		return string(model.KindText), b.Text, nil
	}
}

type wireNotification struct {
	NotificationID flexID    `json:"notification_id"`
	Message        string    `json:"message"`
	GroupID        flexID    `json:"group_id"`
	GroupName      string    `json:"group_name"`
	CreatedAt      flexTime  `json:"created_at"`
	IsRead         bool      `json:"is_read"`
	Type           string    `json:"type"`
	Status         string    `json:"status"`
}

// joinRequestMarker identifies join requests from backends that do not
// send a notification type.
const joinRequestMarker = "requested to join"

func (n wireNotification) toModel() model.Notification {
	out := model.Notification{
		ID:               string(n.NotificationID),
		Message:          n.Message,
		ConversationID:   string(n.GroupID),
		ConversationName: n.GroupName,
		CreatedAt:        n.CreatedAt.Time,
		Read:             n.IsRead,
		Kind:             model.NotificationGeneral,
		Action:           model.ActionPending,
	}
	if n.Type == string(model.NotificationJoinRequest) || (n.Type == "" && strings.Contains(n.Message, joinRequestMarker)) {
		out.Kind = model.NotificationJoinRequest
	}
	switch model.ActionState(n.Status) {
	case model.ActionAccepted, model.ActionDeclined:
		out.Action = model.ActionState(n.Status)
	}
	return out
}

type wireUser struct {
	UserID   flexID `json:"user_id"`
	ID       flexID `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (u wireUser) toModel() model.User {
	id := u.UserID
	if id == "" {
		id = u.ID
	}
	return model.User{ID: string(id), Username: u.Username, Email: u.Email}
}
