package viewmodel

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dropdeck/dropdeck/internal/api"
	"github.com/dropdeck/dropdeck/internal/bus"
	"github.com/dropdeck/dropdeck/internal/deck"
	"github.com/dropdeck/dropdeck/internal/model"
	"github.com/dropdeck/dropdeck/internal/outbox"
	"github.com/dropdeck/dropdeck/internal/search"
	"github.com/dropdeck/dropdeck/internal/status"
)

type fakeBackend struct {
	mu       sync.Mutex
	convs    []model.Conversation
	msgs     map[string][]model.Message
	typing   []model.TypingEntry
	notifs   []model.Notification
	pinned   map[string]bool
	sent     []api.SendTextRequest
	marked   []string
	calls    map[string]int
	openErr  error
	lastNav  string
	findResp api.FindResponse
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		convs: []model.Conversation{
			{ID: "1", Name: "General"},
			{ID: "2", Name: "Gardening"},
			{ID: "3", Name: "Random", Pinned: true},
		},
		msgs: map[string][]model.Message{
			"1": {{ID: "a", ConversationID: "1", Body: model.TextBody("hello")}},
			"2": {{ID: "b", ConversationID: "2", Body: model.TextBody("tomatoes")}},
		},
		pinned: map[string]bool{},
		calls:  map[string]int{},
	}
}

func (f *fakeBackend) hit(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeBackend) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeBackend) Status(context.Context) (api.StatusResponse, error) {
	f.hit("Status")
	return api.StatusResponse{Session: "main", Status: deck.Status{Connection: status.Connected, SignedIn: true}}, nil
}

func (f *fakeBackend) SignIn(context.Context, api.SignInRequest) (api.SignInResponse, error) {
	return api.SignInResponse{UserID: "u1", Username: "me"}, nil
}

func (f *fakeBackend) SignOut(context.Context) error { return nil }

func (f *fakeBackend) Conversations(context.Context) ([]model.Conversation, error) {
	f.hit("Conversations")
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Conversation, len(f.convs))
	for i, c := range f.convs {
		if p, ok := f.pinned[c.ID]; ok {
			c.Pinned = p
		}
		out[i] = c
	}
	return out, nil
}

func (f *fakeBackend) Open(_ context.Context, id string) ([]model.Message, error) {
	f.hit("Open")
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.msgs[id], nil
}

func (f *fakeBackend) Messages(_ context.Context, id string) ([]model.Message, error) {
	f.hit("Messages")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.msgs[id], nil
}

func (f *fakeBackend) LoadOlder(context.Context, string) (int, error) { return 0, nil }

func (f *fakeBackend) SendText(_ context.Context, req api.SendTextRequest) (model.Message, error) {
	f.mu.Lock()
	f.sent = append(f.sent, req)
	f.mu.Unlock()
	return model.Message{}, nil
}

func (f *fakeBackend) SendPoll(context.Context, api.SendPollRequest) (model.Message, error) {
	return model.Message{}, nil
}

func (f *fakeBackend) Upload(context.Context, api.UploadFileRequest) (model.Message, error) {
	return model.Message{}, nil
}

func (f *fakeBackend) MarkRead(context.Context, string) error { return nil }

func (f *fakeBackend) SetPinned(_ context.Context, id string, pinned bool) error {
	f.mu.Lock()
	f.pinned[id] = pinned
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) Typing(context.Context) error {
	f.hit("Typing")
	return nil
}

func (f *fakeBackend) TypingUsers(context.Context) ([]model.TypingEntry, error) {
	f.hit("TypingUsers")
	return f.typing, nil
}

func (f *fakeBackend) Find(_ context.Context, term string) (api.FindResponse, error) {
	f.hit("Find")
	if term == "" {
		return api.FindResponse{Step: search.Step{Cursor: -1, Message: -1}}, nil
	}
	return f.findResp, nil
}

func (f *fakeBackend) Navigate(_ context.Context, dir string) (search.Step, error) {
	f.mu.Lock()
	f.lastNav = dir
	f.mu.Unlock()
	return search.Step{Moved: true, Cursor: 1, Message: 4, HasPrev: true}, nil
}

func (f *fakeBackend) Notifications(context.Context) ([]model.Notification, error) {
	f.hit("Notifications")
	return f.notifs, nil
}

func (f *fakeBackend) MarkNotificationsRead(_ context.Context, ids []string) error {
	f.mu.Lock()
	f.marked = append(f.marked, ids...)
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) ActOnJoinRequest(context.Context, string, model.JoinDecision) error {
	return nil
}

func (f *fakeBackend) Search(context.Context, string) (deck.SearchResult, error) {
	return deck.SearchResult{Offline: true}, nil
}

func (f *fakeBackend) Discover(context.Context) ([]model.Conversation, error) { return nil, nil }

func (f *fakeBackend) Join(context.Context, string) (bool, error) { return true, nil }

func (f *fakeBackend) RecentEmoji(context.Context) ([]string, error) { return nil, nil }

func (f *fakeBackend) UseEmoji(_ context.Context, e string) ([]string, error) {
	return []string{e}, nil
}

func event(t *testing.T, kind string, payload any) api.Event {
	t.Helper()
	evt := api.Event{Kind: kind, OccurredAt: time.Now()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatal(err)
		}
		evt.Payload = raw
	}
	return evt
}

func TestOpenResetsFind(t *testing.T) {
	fb := newFakeBackend()
	fb.findResp = api.FindResponse{Matches: []int{0}, Step: search.Step{Cursor: 0, Message: 0}}
	vm := New(fb)
	ctx := context.Background()

	if err := vm.Open(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	if err := vm.Find(ctx, "hell"); err != nil {
		t.Fatal(err)
	}
	if vm.FindTerm() != "hell" || len(vm.FindState().Matches) != 1 {
		t.Fatalf("find state = %q %+v", vm.FindTerm(), vm.FindState())
	}

	if err := vm.Open(ctx, "2"); err != nil {
		t.Fatal(err)
	}
	if vm.Active() != "2" || vm.FindTerm() != "" || len(vm.FindState().Matches) != 0 {
		t.Errorf("after switching: active=%q term=%q", vm.Active(), vm.FindTerm())
	}
	if msgs := vm.Messages(); len(msgs) != 1 || msgs[0].ID != "b" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestOpenErrorKeepsPreviousConversation(t *testing.T) {
	fb := newFakeBackend()
	vm := New(fb)
	ctx := context.Background()
	if err := vm.Open(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	fb.openErr = errors.New("boom")
	if err := vm.Open(ctx, "2"); err == nil {
		t.Fatal("expected error")
	}
	if vm.Active() != "1" {
		t.Errorf("active = %q, want 1", vm.Active())
	}
}

func TestMessagesEventOnlyRefreshesActive(t *testing.T) {
	fb := newFakeBackend()
	vm := New(fb)
	ctx := context.Background()
	_ = vm.Open(ctx, "1")

	change, err := vm.HandleEvent(ctx, event(t, bus.KindMessagesChange, "2"))
	if err != nil || change != 0 {
		t.Errorf("other conversation: change=%v err=%v", change, err)
	}
	if fb.count("Messages") != 0 {
		t.Error("other conversation should not be fetched")
	}

	fb.mu.Lock()
	fb.msgs["1"] = append(fb.msgs["1"], model.Message{ID: "c", ConversationID: "1", Body: model.TextBody("again")})
	fb.mu.Unlock()
	change, err = vm.HandleEvent(ctx, event(t, bus.KindMessagesChange, "1"))
	if err != nil || !change.Has(ChangeMessages) {
		t.Fatalf("active conversation: change=%v err=%v", change, err)
	}
	if len(vm.Messages()) != 2 {
		t.Errorf("messages = %d, want 2", len(vm.Messages()))
	}
}

func TestMessagesEventReappliesFind(t *testing.T) {
	fb := newFakeBackend()
	fb.findResp = api.FindResponse{Matches: []int{0}}
	vm := New(fb)
	ctx := context.Background()
	_ = vm.Open(ctx, "1")
	_ = vm.Find(ctx, "hel")
	before := fb.count("Find")

	if _, err := vm.HandleEvent(ctx, event(t, bus.KindMessagesChange, "1")); err != nil {
		t.Fatal(err)
	}
	if fb.count("Find") != before+1 {
		t.Errorf("find calls = %d, want %d", fb.count("Find"), before+1)
	}
}

func TestTypingNamesFilterActive(t *testing.T) {
	fb := newFakeBackend()
	fb.typing = []model.TypingEntry{
		{ConversationID: "1", UserID: "u2", Name: "ana"},
		{ConversationID: "1", UserID: "u3"},
		{ConversationID: "2", UserID: "u4", Name: "bob"},
	}
	vm := New(fb)
	ctx := context.Background()
	_ = vm.Open(ctx, "1")

	change, err := vm.HandleEvent(ctx, event(t, bus.KindTypingChange, "1"))
	if err != nil || !change.Has(ChangeTyping) {
		t.Fatalf("change=%v err=%v", change, err)
	}
	names := vm.TypingNames()
	if len(names) != 2 || names[0] != "ana" || names[1] != "u3" {
		t.Errorf("names = %v", names)
	}
}

func TestToastEvents(t *testing.T) {
	vm := New(newFakeBackend())
	ctx := context.Background()

	tests := []struct {
		name    string
		evt     api.Event
		want    Toast
		changed bool
	}{
		{"toast", event(t, bus.KindNotificationToast, deck.Toast{Message: "ana joined"}), Toast{ToastNotice, "ana joined"}, true},
		{"empty toast", event(t, bus.KindNotificationToast, deck.Toast{}), Toast{}, false},
		{"send failed", event(t, bus.KindSendFailed, outbox.SendFailure{Error: "too large"}), Toast{ToastFailure, "Send failed: too large"}, true},
		{"rejected credential", event(t, bus.KindSignedOut, "credential rejected"), Toast{ToastSignedOut, "Signed out (credential rejected), sign in to continue"}, true},
		{"user sign-out", event(t, bus.KindSignedOut, "user"), Toast{ToastSignedOut, "Signed out"}, true},
		{"unknown kind", event(t, "other.thing", nil), Toast{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			change, err := vm.HandleEvent(ctx, tt.evt)
			if err != nil {
				t.Fatal(err)
			}
			if change.Has(ChangeToast) != tt.changed {
				t.Errorf("change = %v", change)
			}
			got, ok := vm.TakeToast()
			if got != tt.want || ok != tt.changed {
				t.Errorf("toast = %+v, %v, want %+v", got, ok, tt.want)
			}
			if _, ok := vm.TakeToast(); ok {
				t.Error("toast should be consumed")
			}
		})
	}
}

func TestConnStatusEventUpdatesStatus(t *testing.T) {
	fb := newFakeBackend()
	vm := New(fb)
	change, err := vm.HandleEvent(context.Background(), event(t, bus.KindConnStatus, status.StatusChange{From: status.Connecting, To: status.Connected}))
	if err != nil || !change.Has(ChangeStatus) {
		t.Fatalf("change=%v err=%v", change, err)
	}
	if st := vm.Status(); st.Connection != status.Connected || !vm.SignedIn() {
		t.Errorf("status = %+v", st)
	}
}

func TestSignedOutEventClearsView(t *testing.T) {
	fb := newFakeBackend()
	vm := New(fb)
	ctx := context.Background()
	_ = vm.LoadConversations(ctx)
	_ = vm.Open(ctx, "1")

	change, err := vm.HandleEvent(ctx, event(t, bus.KindSignedOut, "expired"))
	if err != nil {
		t.Fatal(err)
	}
	if !change.Has(ChangeConversations) || !change.Has(ChangeToast) {
		t.Errorf("change = %v", change)
	}
	if vm.Active() != "" || len(vm.Conversations()) != 0 || len(vm.Messages()) != 0 {
		t.Error("view should be cleared after sign-out")
	}
}

func TestTogglePin(t *testing.T) {
	fb := newFakeBackend()
	vm := New(fb)
	ctx := context.Background()
	_ = vm.LoadConversations(ctx)

	pinned, err := vm.TogglePin(ctx, "1")
	if err != nil || !pinned {
		t.Fatalf("TogglePin(1) = %v, %v", pinned, err)
	}
	pinned, err = vm.TogglePin(ctx, "3")
	if err != nil || pinned {
		t.Fatalf("TogglePin(3) = %v, %v", pinned, err)
	}
}

func TestConversationByName(t *testing.T) {
	vm := New(newFakeBackend())
	_ = vm.LoadConversations(context.Background())

	tests := []struct {
		query  string
		wantID string
		ok     bool
	}{
		{"general", "1", true},
		{"GAR", "2", true},
		{"2", "2", true},
		{"g", "1", true},
		{"nope", "", false},
		{"  ", "", false},
	}
	for _, tt := range tests {
		c, ok := vm.ConversationByName(tt.query)
		if ok != tt.ok || c.ID != tt.wantID {
			t.Errorf("ConversationByName(%q) = %q, %v", tt.query, c.ID, ok)
		}
	}
}

func TestNavigateAndTyping(t *testing.T) {
	fb := newFakeBackend()
	vm := New(fb)
	ctx := context.Background()

	if err := vm.Typing(ctx); err != nil || fb.count("Typing") != 0 {
		t.Error("typing without an active conversation should not reach the daemon")
	}
	_ = vm.Open(ctx, "1")
	_ = vm.Typing(ctx)
	if fb.count("Typing") != 1 {
		t.Error("typing not forwarded")
	}

	step, err := vm.Navigate(ctx, search.Prev)
	if err != nil || !step.Moved {
		t.Fatalf("Navigate() = %+v, %v", step, err)
	}
	if fb.lastNav != "prev" || vm.FindState().Step.Message != 4 {
		t.Errorf("nav=%q state=%+v", fb.lastNav, vm.FindState())
	}
}

func TestMarkAllNotificationsRead(t *testing.T) {
	fb := newFakeBackend()
	fb.notifs = []model.Notification{{ID: "n1"}, {ID: "n2"}}
	vm := New(fb)
	ctx := context.Background()

	if err := vm.MarkAllNotificationsRead(ctx); err != nil {
		t.Fatal(err)
	}
	if len(fb.marked) != 0 {
		t.Error("nothing loaded yet, nothing to mark")
	}
	if _, err := vm.HandleEvent(ctx, event(t, bus.KindNotificationsChange, nil)); err != nil {
		t.Fatal(err)
	}
	if err := vm.MarkAllNotificationsRead(ctx); err != nil {
		t.Fatal(err)
	}
	if len(fb.marked) != 2 {
		t.Errorf("marked = %v", fb.marked)
	}
}
