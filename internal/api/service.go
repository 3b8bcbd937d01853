package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dropdeck/dropdeck/internal/bus"
	"github.com/dropdeck/dropdeck/internal/deck"
	"github.com/dropdeck/dropdeck/internal/model"
	"github.com/dropdeck/dropdeck/internal/outbox"
	"github.com/dropdeck/dropdeck/internal/search"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service implements DeckServer on top of a running deck.
type Service struct {
	sessionName string
	deck        *deck.Deck
	bus         *bus.Bus
	logger      *zap.Logger
}

// NewService creates the gRPC service for one session.
func NewService(sessionName string, d *deck.Deck, b *bus.Bus, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{sessionName: sessionName, deck: d, bus: b, logger: logger}
}

func (s *Service) GetStatus(context.Context, *Empty) (*StatusResponse, error) {
	return &StatusResponse{Session: s.sessionName, Status: s.deck.Status()}, nil
}

func (s *Service) SignIn(ctx context.Context, req *SignInRequest) (*SignInResponse, error) {
	cred, err := s.deck.SignIn(ctx, req.Email, req.Password, req.CaptchaToken)
	if err != nil {
		return nil, err
	}
	return &SignInResponse{UserID: cred.UserID, Username: cred.Username}, nil
}

func (s *Service) SignOut(ctx context.Context, _ *Empty) (*Empty, error) {
	return &Empty{}, s.deck.SignOut(ctx)
}

func (s *Service) ListConversations(context.Context, *Empty) (*ConversationsResponse, error) {
	return &ConversationsResponse{Conversations: s.deck.Conversations()}, nil
}

func (s *Service) OpenConversation(ctx context.Context, req *ConversationRequest) (*MessagesResponse, error) {
	msgs, err := s.deck.OpenConversation(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	return &MessagesResponse{Messages: msgs}, nil
}

func (s *Service) ListMessages(_ context.Context, req *ConversationRequest) (*MessagesResponse, error) {
	id := req.ConversationID
	if id == "" {
		id = s.deck.Active()
	}
	if id == "" {
		return nil, deck.ErrNoConversation
	}
	return &MessagesResponse{Messages: s.deck.Messages(id)}, nil
}

func (s *Service) LoadOlder(ctx context.Context, req *ConversationRequest) (*CountResponse, error) {
	id := req.ConversationID
	if id == "" {
		id = s.deck.Active()
	}
	if id == "" {
		return nil, deck.ErrNoConversation
	}
	n, err := s.deck.LoadOlder(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CountResponse{Count: n}, nil
}

func (s *Service) SendText(ctx context.Context, req *SendTextRequest) (*MessageResponse, error) {
	m, err := s.deck.SendText(ctx, req.ConversationID, req.Text, req.ReplyTo)
	if err != nil {
		return nil, err
	}
	return &MessageResponse{Message: m}, nil
}

func (s *Service) SendPoll(ctx context.Context, req *SendPollRequest) (*MessageResponse, error) {
	m, err := s.deck.SendPoll(ctx, req.ConversationID, req.Question, req.Options)
	if err != nil {
		return nil, err
	}
	return &MessageResponse{Message: m}, nil
}

func (s *Service) UploadFile(ctx context.Context, req *UploadFileRequest) (*MessageResponse, error) {
	m, err := s.deck.Upload(ctx, req.ConversationID, model.Upload{
		Name:    req.Name,
		MIME:    req.MIME,
		Size:    int64(len(req.Content)),
		Content: bytes.NewReader(req.Content),
	})
	if err != nil {
		return nil, err
	}
	return &MessageResponse{Message: m}, nil
}

func (s *Service) MarkRead(ctx context.Context, req *ConversationRequest) (*Empty, error) {
	return &Empty{}, s.deck.MarkRead(ctx, req.ConversationID)
}

func (s *Service) SetPinned(ctx context.Context, req *SetPinnedRequest) (*Empty, error) {
	return &Empty{}, s.deck.SetPinned(ctx, req.ConversationID, req.Pinned)
}

func (s *Service) Typing(context.Context, *Empty) (*Empty, error) {
	s.deck.Typing()
	return &Empty{}, nil
}

func (s *Service) ListTyping(context.Context, *Empty) (*TypingResponse, error) {
	return &TypingResponse{Typing: s.deck.TypingUsers()}, nil
}

func (s *Service) FindInThread(_ context.Context, req *FindRequest) (*FindResponse, error) {
	step, matches := s.deck.FindInThread(req.Term)
	return &FindResponse{Step: step, Matches: matches}, nil
}

func (s *Service) Navigate(_ context.Context, req *NavigateRequest) (*search.Step, error) {
	var dir search.Direction
	switch strings.ToLower(req.Direction) {
	case "next", "":
		dir = search.Next
	case "prev", "previous":
		dir = search.Prev
	default:
		return nil, &outbox.ValidationError{Field: "direction", Reason: fmt.Sprintf("unknown direction %q", req.Direction)}
	}
	step := s.deck.Navigate(dir)
	return &step, nil
}

func (s *Service) ListNotifications(context.Context, *Empty) (*NotificationsResponse, error) {
	return &NotificationsResponse{Notifications: s.deck.Notifications()}, nil
}

func (s *Service) MarkNotificationsRead(ctx context.Context, req *MarkNotificationsReadRequest) (*Empty, error) {
	return &Empty{}, s.deck.MarkNotificationsRead(ctx, req.IDs)
}

func (s *Service) ActOnJoinRequest(ctx context.Context, req *JoinDecisionRequest) (*Empty, error) {
	return &Empty{}, s.deck.ActOnJoinRequest(ctx, req.NotificationID, req.Decision)
}

func (s *Service) Search(ctx context.Context, req *SearchRequest) (*deck.SearchResult, error) {
	res, err := s.deck.Search(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (s *Service) Discover(ctx context.Context, _ *Empty) (*ConversationsResponse, error) {
	groups, err := s.deck.Discover(ctx)
	if err != nil {
		return nil, err
	}
	return &ConversationsResponse{Conversations: groups}, nil
}

func (s *Service) Join(ctx context.Context, req *JoinRequest) (*JoinResponse, error) {
	joined, err := s.deck.Join(ctx, req.GroupID)
	if err != nil {
		return nil, err
	}
	return &JoinResponse{Joined: joined}, nil
}

func (s *Service) RecentEmoji(ctx context.Context, _ *Empty) (*EmojiResponse, error) {
	list, err := s.deck.RecentEmoji(ctx)
	if err != nil {
		return nil, err
	}
	return &EmojiResponse{Emoji: list}, nil
}

func (s *Service) UseEmoji(ctx context.Context, req *EmojiRequest) (*EmojiResponse, error) {
	list, err := s.deck.UseEmoji(ctx, req.Emoji)
	if err != nil {
		return nil, err
	}
	return &EmojiResponse{Emoji: list}, nil
}

func (s *Service) ListOutbox(ctx context.Context, req *ListOutboxRequest) (*OutboxResponse, error) {
	entries, err := s.deck.Outbox(ctx, req.Status, req.Limit)
	if err != nil {
		return nil, err
	}
	return &OutboxResponse{Entries: entries}, nil
}

// WatchEvents streams bus events until the client goes away.
func (s *Service) WatchEvents(req *WatchRequest, stream EventStream) error {
	namespaces := req.Namespaces
	if len(namespaces) == 0 {
		namespaces = []string{""}
	}
	merged := make(chan bus.Event, 256)
	for _, ns := range namespaces {
		ch, unsub := s.bus.Subscribe(ns, 256)
		defer unsub()
		go forward(stream.Context(), ch, merged)
	}

	for {
		select {
		case evt := <-merged:
			out := &Event{
				ID:         uuid.New().String(),
				Session:    s.sessionName,
				Kind:       evt.Kind,
				OccurredAt: evt.Timestamp,
			}
			if evt.Payload != nil {
				raw, err := json.Marshal(evt.Payload)
				if err != nil {
					s.logger.Debug("event payload not encodable", zap.String("kind", evt.Kind), zap.Error(err))
				} else {
					out.Payload = raw
				}
			}
			if err := stream.Send(out); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func forward(ctx context.Context, in <-chan bus.Event, out chan<- bus.Event) {
	for {
		select {
		case evt := <-in:
			select {
			case out <- evt:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
