package client

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dropdeck/dropdeck/internal/api"
	"github.com/dropdeck/dropdeck/internal/auth"
	"github.com/dropdeck/dropdeck/internal/bus"
	"github.com/dropdeck/dropdeck/internal/deck"
	"github.com/dropdeck/dropdeck/internal/model"
	"github.com/dropdeck/dropdeck/internal/prefs"
	"github.com/dropdeck/dropdeck/internal/realtime"
	"github.com/dropdeck/dropdeck/internal/rest"
	"github.com/dropdeck/dropdeck/internal/store"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

type backend struct {
	mu   sync.Mutex
	sent []string
}

func (b *backend) Verify(context.Context) error { return nil }

func (b *backend) ListConversations(context.Context) ([]model.Conversation, error) {
	return []model.Conversation{
		{ID: "1", Name: "General", CreatedAt: time.Unix(100, 0)},
		{ID: "2", Name: "Random", CreatedAt: time.Unix(200, 0)},
	}, nil
}

func (b *backend) ListMessages(_ context.Context, id string, _, offset int) ([]model.Message, error) {
	if offset > 0 {
		return nil, nil
	}
	return []model.Message{{ID: "m-" + id, ConversationID: id, Body: model.TextBody("first"), CreatedAt: time.Unix(300, 0), Status: model.StatusSent}}, nil
}

func (b *backend) ListUnreadNotifications(context.Context) ([]model.Notification, error) {
	return nil, nil
}

func (b *backend) SendMessage(_ context.Context, id string, body model.Body, replyTo, corr string) (model.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, body.Text)
	return model.Message{ID: "srv-1", CorrelationID: corr, ConversationID: id, Body: body, CreatedAt: time.Now(), Status: model.StatusSent}, nil
}

func (b *backend) UploadFile(context.Context, string, model.Upload, string) (model.Message, error) {
	return model.Message{}, errors.New("uploads disabled")
}

func (b *backend) MarkRead(context.Context, string) error { return nil }
func (b *backend) MarkNotificationsRead(context.Context, []string) error { return nil }
func (b *backend) ActOnJoinRequest(context.Context, string, model.JoinDecision) error {
	return nil
}

func (b *backend) Profile(context.Context) (model.User, error) {
	return model.User{ID: "u1", Username: "me"}, nil
}

func (b *backend) Login(context.Context, rest.LoginRequest) (string, model.User, error) {
	return "", model.User{}, rest.ErrUnauthorized
}

func (b *backend) Search(context.Context, string) (model.SearchResults, error) {
	return model.SearchResults{}, nil
}

func (b *backend) DiscoverGroups(context.Context) ([]model.Conversation, error) { return nil, nil }

func (b *backend) JoinGroup(context.Context, string, string) (bool, error) { return false, nil }

type nopConn struct{}

func (nopConn) Connect(context.Context) error { return nil }
func (nopConn) Disconnect() {}
func (nopConn) JoinScope(context.Context, realtime.Join) error { return nil }
func (nopConn) LeaveScope(realtime.Join) {}
func (nopConn) Emit(context.Context, string, any) error { return nil }
func (nopConn) OnEvent(realtime.Handler) {}
func (nopConn) OnAuthFailure(func()) {}

func startDaemon(t *testing.T) (*Client, *bus.Bus, *backend) {
	t.Helper()
	// Short path to stay under the Unix socket length limit.
	dir, err := os.MkdirTemp("/tmp", "deck-client-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	db, _, err := store.OpenMigrated(filepath.Join(dir, "deck.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	p := prefs.New(prefs.NewMemory())
	if err := p.SaveCredential(ctx, prefs.Credential{Token: "tok", UserID: "u1", Username: "me"}); err != nil {
		t.Fatal(err)
	}
	be := &backend{}
	b := bus.New()
	d := deck.New(deck.Deps{
		API:   be,
		Conn:  nopConn{},
		Auth:  auth.New(p, be, nil),
		Prefs: p,
		Cache: db,
		Bus:   b,
	}, deck.Config{})
	if err := d.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(d.Stop)

	socket := filepath.Join(dir, "d.sock")
	lis, err := net.Listen("unix", socket)
	if err != nil {
		t.Fatal(err)
	}
	srv := grpc.NewServer()
	api.RegisterDeckServer(srv, api.NewService("test", d, b, nil))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := New(socket, 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, b, be
}

func TestStatusAndConversations(t *testing.T) {
	c, _, _ := startDaemon(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := c.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Session != "test" || !st.SignedIn || st.UserID != "u1" || st.Conversations != 2 {
		t.Errorf("status = %+v", st)
	}

	convs, err := c.Conversations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 2 || convs[0].ID != "2" {
		t.Errorf("conversations = %+v", convs)
	}

	if err := c.SetPinned(ctx, "1", true); err != nil {
		t.Fatal(err)
	}
	convs, _ = c.Conversations(ctx)
	if convs[0].ID != "1" || !convs[0].Pinned {
		t.Errorf("pinned conversation should sort first: %+v", convs)
	}
}

func TestOpenAndSend(t *testing.T) {
	c, _, be := startDaemon(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msgs, err := c.Open(ctx, "1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != "m-1" {
		t.Errorf("messages = %+v", msgs)
	}

	m, err := c.SendText(ctx, api.SendTextRequest{Text: "hi"})
	if err != nil {
		t.Fatalf("SendText() error = %v", err)
	}
	if m.ID != "srv-1" || m.ConversationID != "1" {
		t.Errorf("sent = %+v", m)
	}
	be.mu.Lock()
	sent := be.sent
	be.mu.Unlock()
	if len(sent) != 1 || sent[0] != "hi" {
		t.Errorf("backend received %v", sent)
	}

	msgs, err = c.Messages(ctx, "")
	if err != nil || len(msgs) != 2 {
		t.Errorf("Messages() = %d, %v", len(msgs), err)
	}
	find, err := c.Find(ctx, "FIRST")
	if err != nil || len(find.Matches) != 1 {
		t.Errorf("Find() = %+v, %v", find, err)
	}
}

func TestErrorCodes(t *testing.T) {
	c, _, _ := startDaemon(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := c.SendText(ctx, api.SendTextRequest{ConversationID: "1", Text: "   "})
	if grpcstatus.Code(err) != codes.InvalidArgument {
		t.Errorf("blank text: %v", err)
	}
	_, err = c.Open(ctx, "404")
	if grpcstatus.Code(err) != codes.NotFound {
		t.Errorf("unknown conversation: %v", err)
	}
	_, err = c.SignIn(ctx, api.SignInRequest{Email: "a@b.c", Password: "nope"})
	if grpcstatus.Code(err) != codes.Unauthenticated {
		t.Errorf("bad sign in: %v", err)
	}
	_, err = c.Navigate(ctx, "sideways")
	if grpcstatus.Code(err) != codes.InvalidArgument {
		t.Errorf("bad direction: %v", err)
	}
}

func TestWatchStreamsBusEvents(t *testing.T) {
	c, b, _ := startDaemon(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, _, err := c.Watch(ctx, "notification.")
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	// The subscription is registered asynchronously on the server.
	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case evt := <-events:
			if evt.Kind != bus.KindNotificationToast || evt.ID == "" || evt.Session != "test" {
				t.Errorf("event = %+v", evt)
			}
			if string(evt.Payload) != `{"message":"hello"}` {
				t.Errorf("payload = %s", evt.Payload)
			}
			return
		case <-tick.C:
			b.Emit(bus.KindNotificationToast, deck.Toast{Message: "hello"})
			b.Emit(bus.KindSyncError, "ignored")
		case <-deadline:
			t.Fatal("no event received")
		}
	}
}
