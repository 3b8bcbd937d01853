package realtime

import (
	"bytes"
	"encoding/json"
)

// Outbound event kinds.
const (
	JoinGroupRoom = "joinGroupRoom"
	JoinGroups    = "joinGroups"
	SendMessage   = "sendMessage"
	Typing        = "typing"
	StopTyping    = "stopTyping"
)

// Envelope is one JSON text frame on the realtime socket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an envelope for event.
func NewEnvelope(event string, data any) (Envelope, error) {
	if data == nil {
		return Envelope{Event: event}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}

// Scope returns the conversation or user id an inbound event is about:
// data.group_id when present, otherwise data.user_id.
func (e Envelope) Scope() string {
	if len(e.Data) == 0 {
		return ""
	}
	var ids struct {
		GroupID json.RawMessage `json:"group_id"`
		UserID  json.RawMessage `json:"user_id"`
	}
	if err := json.Unmarshal(e.Data, &ids); err != nil {
		return ""
	}
	if s := rawID(ids.GroupID); s != "" {
		return s
	}
	return rawID(ids.UserID)
}

// rawID renders a JSON string or number id as a string.
func rawID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return s
		}
		return ""
	}
	return string(raw)
}

// Join is a scope registration replayed on every (re)connect.
type Join struct {
	Event   string
	ScopeID string
}

// RoomJoin registers interest in one conversation's events.
func RoomJoin(conversationID string) Join {
	return Join{Event: JoinGroupRoom, ScopeID: conversationID}
}

// UserJoin registers interest in events for all of a user's conversations.
func UserJoin(userID string) Join {
	return Join{Event: JoinGroups, ScopeID: userID}
}

func (j Join) envelope() (Envelope, error) {
	switch j.Event {
	case JoinGroups:
		return NewEnvelope(j.Event, map[string]string{"user_id": j.ScopeID})
	default:
		return NewEnvelope(j.Event, map[string]string{"group_id": j.ScopeID})
	}
}
