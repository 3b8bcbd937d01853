package deck

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/dropdeck/dropdeck/internal/model"
	"github.com/dropdeck/dropdeck/internal/realtime"
)

type typingPayload struct {
	UserID   json.RawMessage `json:"user_id"`
	UserName string          `json:"user_name"`
}

func (p typingPayload) userID() string {
	s := strings.TrimSpace(string(p.UserID))
	return strings.Trim(s, `"`)
}

// typingEmitter sends local typing signals over the realtime connection.
type typingEmitter struct{ d *Deck }

func (e typingEmitter) EmitTyping(ctx context.Context, conversationID string) error {
	id, name := e.d.identity()
	return e.d.conn.Emit(ctx, realtime.Typing, map[string]string{
		"group_id":  conversationID,
		"user_id":   id,
		"user_name": name,
	})
}

func (e typingEmitter) EmitStopTyping(ctx context.Context, conversationID string) error {
	id, _ := e.d.identity()
	return e.d.conn.Emit(ctx, realtime.StopTyping, map[string]string{
		"group_id": conversationID,
		"user_id":  id,
	})
}

// announcement is the sendMessage payload that tells other members of a
// conversation that a new message was stored.
type announcement struct {
	GroupID     string `json:"group_id"`
	MessageID   string `json:"message_id"`
	ClientMsgID string `json:"client_msg_id"`
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name"`
	Content     string `json:"content"`
}

func announce(m model.Message) announcement {
	return announcement{
		GroupID:     m.ConversationID,
		MessageID:   m.ID,
		ClientMsgID: m.CorrelationID,
		UserID:      m.SenderID,
		UserName:    m.SenderName,
		Content:     m.Body.Preview(),
	}
}
