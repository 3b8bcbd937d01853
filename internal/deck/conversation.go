package deck

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropdeck/dropdeck/internal/dispatch"
	"github.com/dropdeck/dropdeck/internal/model"
	"github.com/dropdeck/dropdeck/internal/outbox"
	"github.com/dropdeck/dropdeck/internal/realtime"
	"github.com/dropdeck/dropdeck/internal/rest"
	"github.com/dropdeck/dropdeck/internal/search"
	intsync "github.com/dropdeck/dropdeck/internal/sync"
	"go.uber.org/zap"
)

func (d *Deck) onEnvelope(env realtime.Envelope) {
	d.dispatcher.Dispatch(dispatch.Event{
		Kind:       env.Event,
		Scope:      env.Scope(),
		Payload:    env.Data,
		ReceivedAt: time.Now(),
	})
}

// Conversations returns the conversation list, pinned first.
func (d *Deck) Conversations() []model.Conversation {
	return d.state.Conversations()
}

// OpenConversation makes id the active conversation. The previous
// conversation's refetch is cancelled, its handlers are removed, typing
// and search are reset, and the new conversation's latest page is synced.
func (d *Deck) OpenConversation(ctx context.Context, id string) ([]model.Message, error) {
	if id == "" {
		return nil, ErrNoConversation
	}
	if !d.auth.HasCredential() {
		return nil, ErrSignedOut
	}
	conv, ok := d.state.Conversation(id)
	if !ok {
		if err := d.engine.Sync(ctx, intsync.Conversations()); err != nil {
			d.logger.Debug("conversation list refresh failed", zap.Error(err))
		}
		if conv, ok = d.state.Conversation(id); !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoConversation, id)
		}
	}

	g := d.dispatcher.Group()
	d.mu.Lock()
	prev, prevGroup := d.active, d.activeGroup
	d.active, d.activeGroup = id, g
	d.mu.Unlock()

	prevGroup.Close()
	if prev != "" && prev != id {
		d.engine.Cancel(intsync.Conversation(prev))
		d.conn.LeaveScope(realtime.RoomJoin(prev))
	}
	d.typing.SwitchScope(id)
	d.index.Reset()
	d.watchConversation(g, id)

	if len(d.state.Messages(id)) == 0 {
		if cached, err := d.cache.LoadMessages(ctx, id, d.cfg.PageSize); err != nil {
			d.logger.Warn("load cached messages failed", zap.String("conversation", id), zap.Error(err))
		} else if len(cached) > 0 {
			d.state.MergeMessages(id, cached)
		}
	}
	if err := d.conn.JoinScope(ctx, realtime.RoomJoin(id)); err != nil {
		d.logger.Warn("join conversation room failed", zap.String("conversation", id), zap.Error(err))
	}

	err := d.engine.Sync(ctx, intsync.Conversation(id))
	switch {
	case err == nil, errors.Is(err, intsync.ErrSuperseded):
	case errors.Is(err, rest.ErrUnauthorized):
		return nil, ErrSignedOut
	default:
		d.logger.Warn("conversation sync failed, showing cached messages", zap.String("conversation", id), zap.Error(err))
	}

	msgs := d.state.Messages(id)
	d.index.SetMessages(msgs)

	if d.cfg.MarkReadOnOpen && conv.UnreadCount > 0 {
		if _, err := d.pipeline.Submit(ctx, outbox.MarkRead{ConversationID: id}); d.checkAuth(err) != nil {
			d.logger.Warn("mark read on open failed", zap.String("conversation", id), zap.Error(err))
		}
	}
	return msgs, nil
}

// watchConversation registers the active conversation's handlers on g.
func (d *Deck) watchConversation(g *dispatch.Group, id string) {
	g.On(dispatch.NewMessage, func(evt dispatch.Event) {
		if evt.Scope == id {
			d.engine.OnScopeEvent(intsync.Conversation(id), evt.Kind)
		}
	})
	g.On(dispatch.UserTyping, func(evt dispatch.Event) {
		if evt.Scope != id {
			return
		}
		var p typingPayload
		if err := evt.Decode(&p); err != nil {
			d.logger.Debug("bad typing payload", zap.Error(err))
			return
		}
		uid := p.userID()
		if self, _ := d.identity(); uid == self {
			return
		}
		d.typing.OnRemoteTyping(id, uid, p.UserName)
	})
	g.On(dispatch.UserStoppedTyping, func(evt dispatch.Event) {
		if evt.Scope != id {
			return
		}
		var p typingPayload
		if err := evt.Decode(&p); err == nil {
			d.typing.OnRemoteStoppedTyping(id, p.userID())
		}
	})
}

// Messages returns the ordered messages of a conversation.
func (d *Deck) Messages(id string) []model.Message {
	return d.state.Messages(id)
}

// LoadOlder fetches the page before the oldest confirmed message and
// merges it. It returns how many messages the page held.
func (d *Deck) LoadOlder(ctx context.Context, id string) (int, error) {
	confirmed := 0
	for _, m := range d.state.Messages(id) {
		if !m.Placeholder() {
			confirmed++
		}
	}
	page, err := d.api.ListMessages(ctx, id, d.cfg.PageSize, confirmed)
	if err != nil {
		return 0, d.checkAuth(fmt.Errorf("load older messages: %w", err))
	}
	d.state.MergeMessages(id, page)
	return len(page), nil
}

// FindInThread sets the in-thread search term on the active conversation.
func (d *Deck) FindInThread(term string) (search.Step, []int) {
	d.index.SetTerm(term)
	return d.index.Current(), d.index.Matches()
}

// Navigate moves the in-thread search cursor without wrapping.
func (d *Deck) Navigate(dir search.Direction) search.Step {
	return d.index.Navigate(dir)
}

// Typing records a local keystroke in the active conversation.
func (d *Deck) Typing() {
	d.typing.OnLocalTyping()
}

// TypingUsers lists who is typing in the active conversation.
func (d *Deck) TypingUsers() []model.TypingEntry {
	return d.typing.Typing()
}
