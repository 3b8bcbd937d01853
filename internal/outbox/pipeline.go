// Package outbox applies user writes optimistically, performs the network
// call and then confirms or rolls back the optimistic effect.
package outbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dropdeck/dropdeck/internal/bus"
	"github.com/dropdeck/dropdeck/internal/model"
	"github.com/dropdeck/dropdeck/internal/state"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Writer is the write side of the REST API.
type Writer interface {
	SendMessage(ctx context.Context, conversationID string, body model.Body, replyTo, correlationID string) (model.Message, error)
	UploadFile(ctx context.Context, conversationID string, up model.Upload, correlationID string) (model.Message, error)
	MarkRead(ctx context.Context, conversationID string) error
	MarkNotificationsRead(ctx context.Context, ids []string) error
	ActOnJoinRequest(ctx context.Context, notificationID string, decision model.JoinDecision) error
}

// Journal records each mutation's progress durably.
type Journal interface {
	QueueOutbox(ctx context.Context, clientMsgID, conversationID, kind, summary string) error
	MarkOutboxSending(ctx context.Context, clientMsgID string) error
	MarkOutboxSent(ctx context.Context, clientMsgID, serverMsgID string) error
	MarkOutboxFailed(ctx context.Context, clientMsgID, errMsg string) error
}

// Identity names the signed-in user for placeholders.
type Identity func() (userID, name string)

// Options tunes a Pipeline.
type Options struct {
	Journal        Journal
	Identity       Identity
	MaxUploadBytes int64
	Now            func() time.Time
	NewID          func() string
}

// pending is one unresolved placeholder in a conversation's FIFO.
type pending struct {
	correlationID string
	done          bool
	ok            bool
	confirmed     model.Message
}

// Pipeline is safe for concurrent use. Within one conversation,
// confirmations become visible in submission order: a confirmation whose
// predecessor is unresolved is held until the predecessor resolves.
type Pipeline struct {
	writer Writer
	store  *state.Store
	bus    *bus.Bus
	logger *zap.Logger
	opts   Options

	mu     sync.Mutex
	queues map[string][]*pending
}

// New creates a pipeline.
func New(w Writer, st *state.Store, b *bus.Bus, logger *zap.Logger, opts Options) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Identity == nil {
		opts.Identity = func() (string, string) { return "", "" }
	}
	return &Pipeline{
		writer: w,
		store:  st,
		bus:    b,
		logger: logger,
		opts:   opts,
		queues: make(map[string][]*pending),
	}
}

// Submit validates m, applies its optimistic effect, performs the write
// and reconciles. A failed write is rolled back and its error returned;
// nothing is retried.
func (p *Pipeline) Submit(ctx context.Context, m Mutation) (Result, error) {
	switch m := m.(type) {
	case SendMessage:
		return p.sendMessage(ctx, m)
	case UploadFile:
		return p.uploadFile(ctx, m)
	case MarkRead:
		return p.markRead(ctx, m)
	case JoinDecision:
		return p.joinDecision(ctx, m)
	case MarkNotificationsRead:
		return p.markNotificationsRead(ctx, m)
	case nil:
		return Result{}, invalid("mutation", "missing")
	default:
		return Result{}, invalid("mutation", fmt.Sprintf("unsupported %T", m))
	}
}

func (p *Pipeline) sendMessage(ctx context.Context, m SendMessage) (Result, error) {
	if strings.TrimSpace(m.ConversationID) == "" {
		return Result{}, invalid("conversation_id", "required")
	}
	if m.Body.Kind == model.KindFile {
		return Result{}, invalid("body", "files go through UploadFile")
	}
	if err := m.Body.Validate(); err != nil {
		return Result{}, invalid("body", err.Error())
	}

	return p.post(ctx, m, m.ConversationID, m.Body, m.ReplyTo, func(ctx context.Context, corr string) (model.Message, error) {
		return p.writer.SendMessage(ctx, m.ConversationID, m.Body, m.ReplyTo, corr)
	})
}

func (p *Pipeline) uploadFile(ctx context.Context, m UploadFile) (Result, error) {
	up := m.Upload
	switch {
	case strings.TrimSpace(m.ConversationID) == "":
		return Result{}, invalid("conversation_id", "required")
	case strings.TrimSpace(up.Name) == "":
		return Result{}, invalid("upload.name", "required")
	case up.Content == nil:
		return Result{}, invalid("upload.content", "required")
	case up.Size < 0:
		return Result{}, invalid("upload.size", "negative")
	case p.opts.MaxUploadBytes > 0 && up.Size > p.opts.MaxUploadBytes:
		return Result{}, invalid("upload.size", fmt.Sprintf("%d bytes exceeds limit of %d", up.Size, p.opts.MaxUploadBytes))
	}

	body := model.FileBody(model.FileRef{Name: up.Name, Size: up.Size, MIME: up.MIME})
	return p.post(ctx, m, m.ConversationID, body, "", func(ctx context.Context, corr string) (model.Message, error) {
		return p.writer.UploadFile(ctx, m.ConversationID, up, corr)
	})
}

// post runs a message-producing mutation through the placeholder FIFO.
func (p *Pipeline) post(ctx context.Context, m Mutation, convID string, body model.Body, replyTo string,
	write func(context.Context, string) (model.Message, error)) (Result, error) {
	corr := p.opts.NewID()
	userID, name := p.opts.Identity()
	placeholder := model.Message{
		ID:             model.LocalIDPrefix + corr,
		CorrelationID:  corr,
		ConversationID: convID,
		SenderID:       userID,
		SenderName:     name,
		Body:           body,
		CreatedAt:      p.opts.Now(),
		ReplyTo:        replyTo,
		Status:         model.StatusSending,
	}
	entry := &pending{correlationID: corr}

	p.mu.Lock()
	p.queues[convID] = append(p.queues[convID], entry)
	p.store.AddPlaceholder(placeholder)
	p.mu.Unlock()

	p.journalQueue(ctx, corr, convID, m.kind(), body.Preview())

	confirmed, err := write(ctx, corr)
	if err != nil {
		p.mu.Lock()
		entry.done = true
		p.store.RemovePlaceholder(convID, corr)
		p.flushLocked(convID)
		p.mu.Unlock()

		p.logger.Warn("optimistic write failed, rolled back",
			zap.String("kind", m.kind()), zap.String("correlation_id", corr), zap.Error(err))
		p.journalFailed(corr, err)
		p.bus.Emit(bus.KindSendFailed, SendFailure{
			CorrelationID:  corr,
			ConversationID: convID,
			Kind:           m.kind(),
			Error:          err.Error(),
		})
		return Result{CorrelationID: corr}, fmt.Errorf("%s: %w", m.kind(), err)
	}

	confirmed.Status = confirmed.Status.AtLeast(model.StatusSent)
	if confirmed.CorrelationID == "" {
		confirmed.CorrelationID = corr
	}
	if confirmed.ConversationID == "" {
		confirmed.ConversationID = convID
	}

	p.mu.Lock()
	entry.done, entry.ok, entry.confirmed = true, true, confirmed
	if q := p.queues[convID]; len(q) > 0 && q[0] != entry {
		p.store.Hold(convID, corr, confirmed.ID)
	}
	p.flushLocked(convID)
	p.mu.Unlock()

	p.journalSent(corr, confirmed.ID)
	p.logger.Debug("message confirmed", zap.String("correlation_id", corr), zap.String("message_id", confirmed.ID))
	return Result{CorrelationID: corr, Message: &confirmed}, nil
}

// flushLocked applies resolved entries from the head of a conversation's
// FIFO, stopping at the first unresolved one.
func (p *Pipeline) flushLocked(convID string) {
	q := p.queues[convID]
	for len(q) > 0 && q[0].done {
		e := q[0]
		q = q[1:]
		if !e.ok {
			continue
		}
		p.store.ConfirmPlaceholder(convID, e.correlationID, e.confirmed)
		p.bus.Emit(bus.KindSendAck, SendAck{
			CorrelationID:  e.correlationID,
			ConversationID: convID,
			MessageID:      e.confirmed.ID,
		})
	}
	if len(q) == 0 {
		delete(p.queues, convID)
		return
	}
	p.queues[convID] = q
}

// Pending returns how many placeholders of a conversation are unresolved
// or waiting on a predecessor.
func (p *Pipeline) Pending(conversationID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queues[conversationID])
}

func (p *Pipeline) markRead(ctx context.Context, m MarkRead) (Result, error) {
	if strings.TrimSpace(m.ConversationID) == "" {
		return Result{}, invalid("conversation_id", "required")
	}
	corr := p.opts.NewID()
	prev := p.store.BeginMarkRead(m.ConversationID)
	p.journalQueue(ctx, corr, m.ConversationID, m.kind(), "")

	err := p.writer.MarkRead(ctx, m.ConversationID)
	p.store.EndMarkRead(m.ConversationID, err == nil, prev)
	return p.finish(corr, m, m.ConversationID, err)
}

func (p *Pipeline) joinDecision(ctx context.Context, m JoinDecision) (Result, error) {
	if strings.TrimSpace(m.NotificationID) == "" {
		return Result{}, invalid("notification_id", "required")
	}
	if !m.Decision.Valid() {
		return Result{}, invalid("decision", fmt.Sprintf("%q is not accept or decline", m.Decision))
	}
	n, ok := p.store.Notification(m.NotificationID)
	if !ok {
		return Result{}, invalid("notification_id", "not an unread notification")
	}
	if !n.Actionable() {
		return Result{}, invalid("notification_id", "not a pending join request")
	}

	corr := p.opts.NewID()
	prev, _ := p.store.SetNotificationAction(n.ID, m.Decision.State())
	p.journalQueue(ctx, corr, n.ConversationID, m.kind(), string(m.Decision))

	err := p.writer.ActOnJoinRequest(ctx, n.ID, m.Decision)
	if err != nil {
		p.store.SetNotificationAction(n.ID, prev)
	} else {
		p.store.RemoveNotifications(n.ID)
	}
	return p.finish(corr, m, n.ConversationID, err)
}

func (p *Pipeline) markNotificationsRead(ctx context.Context, m MarkNotificationsRead) (Result, error) {
	ids := m.IDs
	if len(ids) == 0 {
		for _, n := range p.store.Notifications() {
			ids = append(ids, n.ID)
		}
		if len(ids) == 0 {
			return Result{}, nil
		}
	}
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return Result{}, invalid("ids", "blank notification id")
		}
	}

	corr := p.opts.NewID()
	removed := p.store.RemoveNotifications(ids...)
	p.journalQueue(ctx, corr, "", m.kind(), strings.Join(ids, ","))

	err := p.writer.MarkNotificationsRead(ctx, ids)
	if err != nil {
		p.store.RestoreNotifications(removed)
	}
	return p.finish(corr, m, "", err)
}

func (p *Pipeline) finish(corr string, m Mutation, convID string, err error) (Result, error) {
	if err != nil {
		p.logger.Warn("optimistic write failed, rolled back",
			zap.String("kind", m.kind()), zap.String("correlation_id", corr), zap.Error(err))
		p.journalFailed(corr, err)
		p.bus.Emit(bus.KindSendFailed, SendFailure{
			CorrelationID:  corr,
			ConversationID: convID,
			Kind:           m.kind(),
			Error:          err.Error(),
		})
		return Result{CorrelationID: corr}, fmt.Errorf("%s: %w", m.kind(), err)
	}
	p.journalSent(corr, "")
	return Result{CorrelationID: corr}, nil
}

func (p *Pipeline) journalQueue(ctx context.Context, corr, convID, kind, summary string) {
	j := p.opts.Journal
	if j == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := j.QueueOutbox(ctx, corr, convID, kind, summary); err != nil {
		p.logger.Warn("outbox journal queue failed", zap.String("correlation_id", corr), zap.Error(err))
		return
	}
	if err := j.MarkOutboxSending(ctx, corr); err != nil {
		p.logger.Warn("outbox journal update failed", zap.String("correlation_id", corr), zap.Error(err))
	}
}

func (p *Pipeline) journalSent(corr, serverID string) {
	if p.opts.Journal == nil {
		return
	}
	if err := p.opts.Journal.MarkOutboxSent(context.Background(), corr, serverID); err != nil {
		p.logger.Warn("outbox journal update failed", zap.String("correlation_id", corr), zap.Error(err))
	}
}

func (p *Pipeline) journalFailed(corr string, cause error) {
	if p.opts.Journal == nil {
		return
	}
	if err := p.opts.Journal.MarkOutboxFailed(context.Background(), corr, cause.Error()); err != nil {
		p.logger.Warn("outbox journal update failed", zap.String("correlation_id", corr), zap.Error(err))
	}
}
