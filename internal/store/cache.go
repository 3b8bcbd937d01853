package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dropdeck/dropdeck/internal/model"
)

// SaveConversations replaces the cached conversation list with list.
func (db *DB) SaveConversations(ctx context.Context, list []model.Conversation) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations`); err != nil {
		return fmt.Errorf("clear conversations: %w", err)
	}
	now := time.Now().UnixMilli()
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO conversations (id, name, description, created_at, last_message, last_activity, unread_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			created_at = excluded.created_at,
			last_message = excluded.last_message,
			last_activity = excluded.last_activity,
			unread_count = excluded.unread_count,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range list {
		last := ""
		if c.LastMessage != nil {
			b, err := json.Marshal(c.LastMessage)
			if err != nil {
				return fmt.Errorf("encode last message: %w", err)
			}
			last = string(b)
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.Name, c.Description, c.CreatedAt.UnixMilli(),
			last, c.LastActivity().UnixMilli(), c.UnreadCount, now); err != nil {
			return fmt.Errorf("save conversation %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// LoadConversations returns the cached conversations, most recent first.
func (db *DB) LoadConversations(ctx context.Context) ([]model.Conversation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, description, created_at, last_message, unread_count
		FROM conversations ORDER BY last_activity DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.Conversation
	for rows.Next() {
		var (
			c       model.Conversation
			created int64
			last    string
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &created, &last, &c.UnreadCount); err != nil {
			return nil, err
		}
		c.CreatedAt = time.UnixMilli(created)
		if last != "" {
			var s model.MessageSummary
			if err := json.Unmarshal([]byte(last), &s); err == nil {
				c.LastMessage = &s
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveMessages upserts confirmed messages of a conversation. Placeholders
// are skipped; they never outlive the process.
func (db *DB) SaveMessages(ctx context.Context, conversationID string, msgs []model.Message) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (conversation_id, message_id, sender_id, sender_name, kind, body, body_text, reply_to, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, message_id) DO UPDATE SET
			sender_id = excluded.sender_id,
			sender_name = excluded.sender_name,
			kind = excluded.kind,
			body = excluded.body,
			body_text = excluded.body_text,
			reply_to = excluded.reply_to,
			status = excluded.status,
			created_at = excluded.created_at`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, m := range msgs {
		if m.Placeholder() {
			continue
		}
		body, err := json.Marshal(m.Body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, conversationID, m.ID, m.SenderID, m.SenderName, string(m.Body.Kind),
			string(body), strings.ToLower(m.Body.SearchText()), m.ReplyTo, string(m.Status), m.CreatedAt.UnixMilli()); err != nil {
			return fmt.Errorf("save message %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

const messageColumns = `conversation_id, message_id, sender_id, sender_name, body, reply_to, status, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (model.Message, error) {
	var (
		m       model.Message
		body    string
		status  string
		created int64
	)
	if err := s.Scan(&m.ConversationID, &m.ID, &m.SenderID, &m.SenderName, &body, &m.ReplyTo, &status, &created); err != nil {
		return m, err
	}
	if err := json.Unmarshal([]byte(body), &m.Body); err != nil {
		return m, fmt.Errorf("decode body of %s: %w", m.ID, err)
	}
	m.Status = model.DeliveryStatus(status)
	m.CreatedAt = time.UnixMilli(created)
	return m, nil
}

// LoadMessages returns the latest limit cached messages of a conversation
// in chronological order.
func (db *DB) LoadMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM (
			SELECT * FROM messages WHERE conversation_id = ?
			ORDER BY created_at DESC, message_id DESC LIMIT ?
		) ORDER BY created_at ASC, message_id ASC`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SearchMessages finds cached messages whose visible text contains query,
// newest first. Used when the backend search is unreachable.
func (db *DB) SearchMessages(ctx context.Context, query string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	rows, err := db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE body_text LIKE ? ESCAPE '\'
		ORDER BY created_at DESC LIMIT ?`, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
