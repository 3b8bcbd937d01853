// Package api exposes a running deck over gRPC on the session's Unix
// socket. Requests and responses are JSON documents carried in
// wrapperspb.BytesValue messages, so the service needs no generated code.
package api

import (
	"context"
	"encoding/json"

	"github.com/dropdeck/dropdeck/internal/deck"
	"github.com/dropdeck/dropdeck/internal/search"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "dropdeck.v1.Deck"

// WatchEventsMethod is the only streaming method.
const WatchEventsMethod = "WatchEvents"

// DeckServer is the server API for the Deck service.
type DeckServer interface {
	GetStatus(context.Context, *Empty) (*StatusResponse, error)
	SignIn(context.Context, *SignInRequest) (*SignInResponse, error)
	SignOut(context.Context, *Empty) (*Empty, error)

	ListConversations(context.Context, *Empty) (*ConversationsResponse, error)
	OpenConversation(context.Context, *ConversationRequest) (*MessagesResponse, error)
	ListMessages(context.Context, *ConversationRequest) (*MessagesResponse, error)
	LoadOlder(context.Context, *ConversationRequest) (*CountResponse, error)
	SendText(context.Context, *SendTextRequest) (*MessageResponse, error)
	SendPoll(context.Context, *SendPollRequest) (*MessageResponse, error)
	UploadFile(context.Context, *UploadFileRequest) (*MessageResponse, error)
	MarkRead(context.Context, *ConversationRequest) (*Empty, error)
	SetPinned(context.Context, *SetPinnedRequest) (*Empty, error)
	Typing(context.Context, *Empty) (*Empty, error)
	ListTyping(context.Context, *Empty) (*TypingResponse, error)
	FindInThread(context.Context, *FindRequest) (*FindResponse, error)
	Navigate(context.Context, *NavigateRequest) (*search.Step, error)

	ListNotifications(context.Context, *Empty) (*NotificationsResponse, error)
	MarkNotificationsRead(context.Context, *MarkNotificationsReadRequest) (*Empty, error)
	ActOnJoinRequest(context.Context, *JoinDecisionRequest) (*Empty, error)

	Search(context.Context, *SearchRequest) (*deck.SearchResult, error)
	Discover(context.Context, *Empty) (*ConversationsResponse, error)
	Join(context.Context, *JoinRequest) (*JoinResponse, error)
	RecentEmoji(context.Context, *Empty) (*EmojiResponse, error)
	UseEmoji(context.Context, *EmojiRequest) (*EmojiResponse, error)
	ListOutbox(context.Context, *ListOutboxRequest) (*OutboxResponse, error)

	WatchEvents(*WatchRequest, EventStream) error
}

// EventStream is the server side of WatchEvents.
type EventStream interface {
	Send(*Event) error
	Context() context.Context
}

// ServiceDesc describes the Deck service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DeckServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetStatus", DeckServer.GetStatus),
		unary("SignIn", DeckServer.SignIn),
		unary("SignOut", DeckServer.SignOut),
		unary("ListConversations", DeckServer.ListConversations),
		unary("OpenConversation", DeckServer.OpenConversation),
		unary("ListMessages", DeckServer.ListMessages),
		unary("LoadOlder", DeckServer.LoadOlder),
		unary("SendText", DeckServer.SendText),
		unary("SendPoll", DeckServer.SendPoll),
		unary("UploadFile", DeckServer.UploadFile),
		unary("MarkRead", DeckServer.MarkRead),
		unary("SetPinned", DeckServer.SetPinned),
		unary("Typing", DeckServer.Typing),
		unary("ListTyping", DeckServer.ListTyping),
		unary("FindInThread", DeckServer.FindInThread),
		unary("Navigate", DeckServer.Navigate),
		unary("ListNotifications", DeckServer.ListNotifications),
		unary("MarkNotificationsRead", DeckServer.MarkNotificationsRead),
		unary("ActOnJoinRequest", DeckServer.ActOnJoinRequest),
		unary("Search", DeckServer.Search),
		unary("Discover", DeckServer.Discover),
		unary("Join", DeckServer.Join),
		unary("RecentEmoji", DeckServer.RecentEmoji),
		unary("UseEmoji", DeckServer.UseEmoji),
		unary("ListOutbox", DeckServer.ListOutbox),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    WatchEventsMethod,
			ServerStreams: true,
			Handler:       watchEventsHandler,
		},
	},
}

// RegisterDeckServer registers srv on s.
func RegisterDeckServer(s grpc.ServiceRegistrar, srv DeckServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// FullMethod returns the gRPC path of a Deck method.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unary[Req, Resp any](name string, fn func(DeckServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(wrapperspb.BytesValue)
			if err := dec(in); err != nil {
				return nil, err
			}
			call := func(ctx context.Context, raw any) (any, error) {
				req := new(Req)
				if err := decodeJSON(raw.(*wrapperspb.BytesValue), req); err != nil {
					return nil, err
				}
				resp, err := fn(srv.(DeckServer), ctx, req)
				if err != nil {
					return nil, toStatus(err)
				}
				return encodeJSON(resp)
			}
			if interceptor == nil {
				return call(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, call)
		},
	}
}

func watchEventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(wrapperspb.BytesValue)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	req := new(WatchRequest)
	if err := decodeJSON(in, req); err != nil {
		return err
	}
	return srv.(DeckServer).WatchEvents(req, &eventStream{stream})
}

type eventStream struct {
	grpc.ServerStream
}

func (s *eventStream) Send(evt *Event) error {
	out, err := encodeJSON(evt)
	if err != nil {
		return err
	}
	return s.ServerStream.SendMsg(out)
}

func decodeJSON(in *wrapperspb.BytesValue, v any) error {
	if len(in.GetValue()) == 0 {
		return nil
	}
	if err := json.Unmarshal(in.GetValue(), v); err != nil {
		return grpcstatus.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	return nil
}

func encodeJSON(v any) (*wrapperspb.BytesValue, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "encode response: %v", err)
	}
	return wrapperspb.Bytes(b), nil
}
