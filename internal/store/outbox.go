package store

import (
	"context"
	"time"
)

// Outbox journal statuses.
const (
	OutboxQueued    = "queued"
	OutboxSending   = "sending"
	OutboxSent      = "sent"
	OutboxFailed    = "failed"
	OutboxAbandoned = "abandoned"
)

// OutboxEntry is one journaled mutation.
type OutboxEntry struct {
	ClientMsgID    string    `json:"client_msg_id"`
	ConversationID string    `json:"conversation_id"`
	Kind           string    `json:"kind"`
	Summary        string    `json:"summary"`
	Status         string    `json:"status"`
	ErrorMessage   string    `json:"error,omitempty"`
	ServerMsgID    string    `json:"server_msg_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// QueueOutbox journals a new mutation.
func (db *DB) QueueOutbox(ctx context.Context, clientMsgID, conversationID, kind, summary string) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		INSERT INTO outbox (client_msg_id, conversation_id, kind, summary, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'queued', ?, ?)`,
		clientMsgID, conversationID, kind, summary, now, now)
	return err
}

// MarkOutboxSending updates an outbox entry to 'sending' status.
func (db *DB) MarkOutboxSending(ctx context.Context, clientMsgID string) error {
	return db.setOutboxStatus(ctx, clientMsgID, OutboxSending, "", "")
}

// MarkOutboxSent updates an outbox entry to 'sent' with the server message ID.
func (db *DB) MarkOutboxSent(ctx context.Context, clientMsgID, serverMsgID string) error {
	return db.setOutboxStatus(ctx, clientMsgID, OutboxSent, serverMsgID, "")
}

// MarkOutboxFailed updates an outbox entry to 'failed' with an error message.
func (db *DB) MarkOutboxFailed(ctx context.Context, clientMsgID, errMsg string) error {
	return db.setOutboxStatus(ctx, clientMsgID, OutboxFailed, "", errMsg)
}

func (db *DB) setOutboxStatus(ctx context.Context, clientMsgID, status, serverMsgID, errMsg string) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		UPDATE outbox SET status = ?,
			server_msg_id = CASE WHEN ? = '' THEN server_msg_id ELSE ? END,
			error_message = ?,
			updated_at = ?
		WHERE client_msg_id = ?`,
		status, serverMsgID, serverMsgID, errMsg, now, clientMsgID)
	return err
}

// AbandonStaleOutbox marks entries left queued or sending by a previous
// process as abandoned. Their placeholders died with that process.
func (db *DB) AbandonStaleOutbox(ctx context.Context) (int64, error) {
	now := time.Now().UnixMilli()
	res, err := db.ExecContext(ctx, `
		UPDATE outbox SET status = 'abandoned', updated_at = ?
		WHERE status IN ('queued', 'sending')`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListOutbox returns journal entries, newest first. An empty status lists all.
func (db *DB) ListOutbox(ctx context.Context, status string, limit int) ([]OutboxEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT client_msg_id, conversation_id, kind, summary, status, error_message, server_msg_id, created_at, updated_at
		FROM outbox WHERE (? = '' OR status = ?)
		ORDER BY created_at DESC, id DESC LIMIT ?`, status, status, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		var (
			e                OutboxEntry
			created, updated int64
		)
		if err := rows.Scan(&e.ClientMsgID, &e.ConversationID, &e.Kind, &e.Summary, &e.Status,
			&e.ErrorMessage, &e.ServerMsgID, &created, &updated); err != nil {
			return nil, err
		}
		e.CreatedAt = time.UnixMilli(created)
		e.UpdatedAt = time.UnixMilli(updated)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
