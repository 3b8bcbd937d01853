package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dropdeck/dropdeck/internal/api"
	"github.com/dropdeck/dropdeck/internal/deck"
	"github.com/dropdeck/dropdeck/internal/model"
	"github.com/dropdeck/dropdeck/internal/search"
	"github.com/dropdeck/dropdeck/internal/store"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client wraps the gRPC connection to the daemon.
type Client struct {
	conn *grpc.ClientConn
}

// New dials the daemon's Unix domain socket. maxMsgBytes raises the send
// limit for uploads; zero keeps the gRPC default.
func New(socketPath string, maxMsgBytes int) (*Client, error) {
	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if maxMsgBytes > 0 {
		opts = append(opts, grpc.WithDefaultCallOptions(grpc.MaxCallSendMsgSize(maxMsgBytes)))
	}
	conn, err := grpc.NewClient("unix://"+socketPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	if req == nil {
		req = api.Empty{}
	}
	b, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}
	out := new(wrapperspb.BytesValue)
	if err := c.conn.Invoke(ctx, api.FullMethod(method), wrapperspb.Bytes(b), out); err != nil {
		return err
	}
	if resp == nil || len(out.GetValue()) == 0 {
		return nil
	}
	if err := json.Unmarshal(out.GetValue(), resp); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}

func (c *Client) Status(ctx context.Context) (api.StatusResponse, error) {
	var resp api.StatusResponse
	err := c.call(ctx, "GetStatus", nil, &resp)
	return resp, err
}

func (c *Client) SignIn(ctx context.Context, req api.SignInRequest) (api.SignInResponse, error) {
	var resp api.SignInResponse
	err := c.call(ctx, "SignIn", req, &resp)
	return resp, err
}

func (c *Client) SignOut(ctx context.Context) error {
	return c.call(ctx, "SignOut", nil, nil)
}

func (c *Client) Conversations(ctx context.Context) ([]model.Conversation, error) {
	var resp api.ConversationsResponse
	err := c.call(ctx, "ListConversations", nil, &resp)
	return resp.Conversations, err
}

func (c *Client) Open(ctx context.Context, conversationID string) ([]model.Message, error) {
	var resp api.MessagesResponse
	err := c.call(ctx, "OpenConversation", api.ConversationRequest{ConversationID: conversationID}, &resp)
	return resp.Messages, err
}

func (c *Client) Messages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var resp api.MessagesResponse
	err := c.call(ctx, "ListMessages", api.ConversationRequest{ConversationID: conversationID}, &resp)
	return resp.Messages, err
}

func (c *Client) LoadOlder(ctx context.Context, conversationID string) (int, error) {
	var resp api.CountResponse
	err := c.call(ctx, "LoadOlder", api.ConversationRequest{ConversationID: conversationID}, &resp)
	return resp.Count, err
}

func (c *Client) SendText(ctx context.Context, req api.SendTextRequest) (model.Message, error) {
	var resp api.MessageResponse
	err := c.call(ctx, "SendText", req, &resp)
	return resp.Message, err
}

func (c *Client) SendPoll(ctx context.Context, req api.SendPollRequest) (model.Message, error) {
	var resp api.MessageResponse
	err := c.call(ctx, "SendPoll", req, &resp)
	return resp.Message, err
}

func (c *Client) Upload(ctx context.Context, req api.UploadFileRequest) (model.Message, error) {
	var resp api.MessageResponse
	err := c.call(ctx, "UploadFile", req, &resp)
	return resp.Message, err
}

func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	return c.call(ctx, "MarkRead", api.ConversationRequest{ConversationID: conversationID}, nil)
}

func (c *Client) SetPinned(ctx context.Context, conversationID string, pinned bool) error {
	return c.call(ctx, "SetPinned", api.SetPinnedRequest{ConversationID: conversationID, Pinned: pinned}, nil)
}

func (c *Client) Typing(ctx context.Context) error {
	return c.call(ctx, "Typing", nil, nil)
}

func (c *Client) TypingUsers(ctx context.Context) ([]model.TypingEntry, error) {
	var resp api.TypingResponse
	err := c.call(ctx, "ListTyping", nil, &resp)
	return resp.Typing, err
}

func (c *Client) Find(ctx context.Context, term string) (api.FindResponse, error) {
	var resp api.FindResponse
	err := c.call(ctx, "FindInThread", api.FindRequest{Term: term}, &resp)
	return resp, err
}

func (c *Client) Navigate(ctx context.Context, direction string) (search.Step, error) {
	var step search.Step
	err := c.call(ctx, "Navigate", api.NavigateRequest{Direction: direction}, &step)
	return step, err
}

func (c *Client) Notifications(ctx context.Context) ([]model.Notification, error) {
	var resp api.NotificationsResponse
	err := c.call(ctx, "ListNotifications", nil, &resp)
	return resp.Notifications, err
}

func (c *Client) MarkNotificationsRead(ctx context.Context, ids []string) error {
	return c.call(ctx, "MarkNotificationsRead", api.MarkNotificationsReadRequest{IDs: ids}, nil)
}

func (c *Client) ActOnJoinRequest(ctx context.Context, notificationID string, decision model.JoinDecision) error {
	return c.call(ctx, "ActOnJoinRequest", api.JoinDecisionRequest{NotificationID: notificationID, Decision: decision}, nil)
}

func (c *Client) Search(ctx context.Context, query string) (deck.SearchResult, error) {
	var resp deck.SearchResult
	err := c.call(ctx, "Search", api.SearchRequest{Query: query}, &resp)
	return resp, err
}

func (c *Client) Discover(ctx context.Context) ([]model.Conversation, error) {
	var resp api.ConversationsResponse
	err := c.call(ctx, "Discover", nil, &resp)
	return resp.Conversations, err
}

func (c *Client) Join(ctx context.Context, groupID string) (bool, error) {
	var resp api.JoinResponse
	err := c.call(ctx, "Join", api.JoinRequest{GroupID: groupID}, &resp)
	return resp.Joined, err
}

func (c *Client) RecentEmoji(ctx context.Context) ([]string, error) {
	var resp api.EmojiResponse
	err := c.call(ctx, "RecentEmoji", nil, &resp)
	return resp.Emoji, err
}

func (c *Client) UseEmoji(ctx context.Context, emoji string) ([]string, error) {
	var resp api.EmojiResponse
	err := c.call(ctx, "UseEmoji", api.EmojiRequest{Emoji: emoji}, &resp)
	return resp.Emoji, err
}

func (c *Client) Outbox(ctx context.Context, status string, limit int) ([]store.OutboxEntry, error) {
	var resp api.OutboxResponse
	err := c.call(ctx, "ListOutbox", api.ListOutboxRequest{Status: status, Limit: limit}, &resp)
	return resp.Entries, err
}

// Watch streams bus events until ctx ends or the stream fails. The
// returned channel is closed when the stream ends; the error channel then
// receives the reason, nil for a clean end.
func (c *Client) Watch(ctx context.Context, namespaces ...string) (<-chan api.Event, <-chan error, error) {
	desc := &api.ServiceDesc.Streams[0]
	stream, err := c.conn.NewStream(ctx, desc, api.FullMethod(api.WatchEventsMethod))
	if err != nil {
		return nil, nil, err
	}
	b, err := json.Marshal(api.WatchRequest{Namespaces: namespaces})
	if err != nil {
		return nil, nil, err
	}
	if err := stream.SendMsg(wrapperspb.Bytes(b)); err != nil {
		return nil, nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, nil, err
	}

	events := make(chan api.Event, 64)
	errc := make(chan error, 1)
	go func() {
		defer close(events)
		for {
			in := new(wrapperspb.BytesValue)
			if err := stream.RecvMsg(in); err != nil {
				if ctx.Err() != nil || errors.Is(err, io.EOF) {
					err = nil
				}
				errc <- err
				return
			}
			var evt api.Event
			if err := json.Unmarshal(in.GetValue(), &evt); err != nil {
				continue
			}
			select {
			case events <- evt:
			case <-ctx.Done():
				errc <- nil
				return
			}
		}
	}()
	return events, errc, nil
}
