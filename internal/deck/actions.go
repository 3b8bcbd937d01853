package deck

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dropdeck/dropdeck/internal/model"
	"github.com/dropdeck/dropdeck/internal/outbox"
	"github.com/dropdeck/dropdeck/internal/realtime"
	"github.com/dropdeck/dropdeck/internal/rest"
	"github.com/dropdeck/dropdeck/internal/search"
	"github.com/dropdeck/dropdeck/internal/store"
	intsync "github.com/dropdeck/dropdeck/internal/sync"
	"go.uber.org/zap"
)

// target resolves an explicit conversation id or falls back to the active
// conversation.
func (d *Deck) target(id string) (string, error) {
	if !d.auth.HasCredential() {
		return "", ErrSignedOut
	}
	if id == "" {
		id = d.Active()
	}
	if id == "" {
		return "", ErrNoConversation
	}
	return id, nil
}

// SendText sends a text message, optionally as a reply.
func (d *Deck) SendText(ctx context.Context, conversationID, text, replyTo string) (model.Message, error) {
	return d.post(ctx, conversationID, func(id string) outbox.Mutation {
		return outbox.SendMessage{ConversationID: id, Body: model.TextBody(text), ReplyTo: replyTo}
	})
}

// SendPoll sends a poll message.
func (d *Deck) SendPoll(ctx context.Context, conversationID, question string, options []string) (model.Message, error) {
	return d.post(ctx, conversationID, func(id string) outbox.Mutation {
		return outbox.SendMessage{ConversationID: id, Body: model.PollBody(question, options)}
	})
}

// Upload sends a file message.
func (d *Deck) Upload(ctx context.Context, conversationID string, up model.Upload) (model.Message, error) {
	return d.post(ctx, conversationID, func(id string) outbox.Mutation {
		return outbox.UploadFile{ConversationID: id, Upload: up}
	})
}

func (d *Deck) post(ctx context.Context, conversationID string, build func(string) outbox.Mutation) (model.Message, error) {
	id, err := d.target(conversationID)
	if err != nil {
		return model.Message{}, err
	}
	if id == d.typing.Scope() {
		d.typing.StopLocal()
	}
	res, err := d.pipeline.Submit(ctx, build(id))
	if err != nil {
		return model.Message{}, d.checkAuth(err)
	}
	if err := d.conn.Emit(ctx, realtime.SendMessage, announce(*res.Message)); err != nil {
		d.logger.Debug("announce message failed", zap.String("message_id", res.Message.ID), zap.Error(err))
	}
	return *res.Message, nil
}

// MarkRead clears a conversation's unread count.
func (d *Deck) MarkRead(ctx context.Context, conversationID string) error {
	id, err := d.target(conversationID)
	if err != nil {
		return err
	}
	_, err = d.pipeline.Submit(ctx, outbox.MarkRead{ConversationID: id})
	return d.checkAuth(err)
}

// SetPinned pins or unpins a conversation locally.
func (d *Deck) SetPinned(ctx context.Context, conversationID string, pinned bool) error {
	if _, ok := d.state.Conversation(conversationID); !ok {
		return fmt.Errorf("%w: %s", ErrNoConversation, conversationID)
	}
	if err := d.prefs.SetPinned(ctx, conversationID, pinned); err != nil {
		return fmt.Errorf("save pin: %w", err)
	}
	d.state.SetPinned(conversationID, pinned)
	return nil
}

// Notifications returns the unread notifications, newest first.
func (d *Deck) Notifications() []model.Notification {
	return d.state.Notifications()
}

// MarkNotificationsRead marks ids read, or every unread notification when
// ids is empty.
func (d *Deck) MarkNotificationsRead(ctx context.Context, ids []string) error {
	if !d.auth.HasCredential() {
		return ErrSignedOut
	}
	_, err := d.pipeline.Submit(ctx, outbox.MarkNotificationsRead{IDs: ids})
	return d.checkAuth(err)
}

// ActOnJoinRequest accepts or declines a join request.
func (d *Deck) ActOnJoinRequest(ctx context.Context, notificationID string, decision model.JoinDecision) error {
	if !d.auth.HasCredential() {
		return ErrSignedOut
	}
	if _, err := d.pipeline.Submit(ctx, outbox.JoinDecision{NotificationID: notificationID, Decision: decision}); err != nil {
		return d.checkAuth(err)
	}
	d.engine.Refetch(intsync.Notifications())
	return nil
}

// RecentEmoji returns the recently used reaction emoji.
func (d *Deck) RecentEmoji(ctx context.Context) ([]string, error) {
	return d.prefs.RecentEmoji(ctx)
}

// UseEmoji records emoji as most recently used.
func (d *Deck) UseEmoji(ctx context.Context, emoji string) ([]string, error) {
	if strings.TrimSpace(emoji) == "" {
		return nil, &outbox.ValidationError{Field: "emoji", Reason: "required"}
	}
	return d.prefs.PushRecentEmoji(ctx, emoji)
}

// SearchResult is a global search answer. Offline results come from the
// local cache and only hold messages and conversations.
type SearchResult struct {
	model.SearchResults
	Offline bool `json:"offline"`
}

// Search queries the backend, falling back to the local cache when the
// backend cannot be reached.
func (d *Deck) Search(ctx context.Context, query string) (SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return SearchResult{}, &outbox.ValidationError{Field: "query", Reason: "required"}
	}
	res, err := d.api.Search(ctx, query)
	if err == nil {
		return SearchResult{SearchResults: res}, nil
	}
	if errors.Is(err, rest.ErrUnauthorized) {
		_ = d.checkAuth(err)
		return SearchResult{}, ErrSignedOut
	}
	var apiErr *rest.APIError
	if errors.As(err, &apiErr) && !apiErr.Temporary() {
		return SearchResult{}, err
	}

	d.logger.Info("search falling back to local cache", zap.Error(err))
	msgs, cerr := d.cache.SearchMessages(ctx, query, d.cfg.SearchLimit)
	if cerr != nil {
		return SearchResult{}, errors.Join(err, cerr)
	}
	out := SearchResult{Offline: true}
	out.Messages = msgs
	needle := search.Fold(query)
	for _, c := range d.state.Conversations() {
		if strings.Contains(search.Fold(c.Name), needle) {
			out.Conversations = append(out.Conversations, c)
		}
	}
	return out, nil
}

// Discover lists groups the user can join.
func (d *Deck) Discover(ctx context.Context) ([]model.Conversation, error) {
	if !d.auth.HasCredential() {
		return nil, ErrSignedOut
	}
	groups, err := d.api.DiscoverGroups(ctx)
	if err != nil {
		return nil, d.checkAuth(fmt.Errorf("discover groups: %w", err))
	}
	d.mu.Lock()
	for _, g := range groups {
		d.discovered[g.ID] = g.AccessType
	}
	d.mu.Unlock()
	return groups, nil
}

// Join joins a public group or requests to join an approval group. It
// reports whether the user is now a member.
func (d *Deck) Join(ctx context.Context, groupID string) (bool, error) {
	if !d.auth.HasCredential() {
		return false, ErrSignedOut
	}
	d.mu.Lock()
	access, ok := d.discovered[groupID]
	d.mu.Unlock()
	if !ok {
		if _, err := d.Discover(ctx); err != nil {
			return false, err
		}
		d.mu.Lock()
		access, ok = d.discovered[groupID]
		d.mu.Unlock()
		if !ok {
			return false, fmt.Errorf("%w: %s", ErrNoConversation, groupID)
		}
	}
	joined, err := d.api.JoinGroup(ctx, groupID, access)
	if err != nil {
		return false, d.checkAuth(fmt.Errorf("join group: %w", err))
	}
	if joined {
		d.engine.Refetch(intsync.Conversations())
	}
	return joined, nil
}

// Outbox lists journaled mutations, newest first.
func (d *Deck) Outbox(ctx context.Context, status string, limit int) ([]store.OutboxEntry, error) {
	return d.cache.ListOutbox(ctx, status, limit)
}
