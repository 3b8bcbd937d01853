package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dropdeck/dropdeck/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, WithToken("tok"), WithTimeout(5*time.Second))
}

func TestListConversationsDecodesGroups(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/groups" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		_, _ = io.WriteString(w, `{"groups":[
			{"group_id": 12, "group_name": "Ops", "created_at": "2024-03-01T10:00:00Z",
			 "last_message": {"message_id": 5, "content": "{\"question\":\"Lunch?\",\"options\":[\"a\",\"b\"]}", "message_type": "poll", "created_at": "2024-03-02 09:30:00"}},
			{"group_id": "x7", "group_name": "Dev", "created_at": 1709287200000}
		]}`)
	})

	got, err := c.ListConversations(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d conversations", len(got))
	}
	if got[0].ID != "12" || got[0].Name != "Ops" {
		t.Errorf("first = %+v", got[0])
	}
	if got[0].LastMessage == nil || got[0].LastMessage.Preview != "[poll] Lunch?" {
		t.Errorf("last message = %+v", got[0].LastMessage)
	}
	if got[0].LastMessage.CreatedAt.Day() != 2 {
		t.Errorf("last message time = %v", got[0].LastMessage.CreatedAt)
	}
	if got[1].ID != "x7" || got[1].CreatedAt.IsZero() {
		t.Errorf("second = %+v", got[1])
	}
}

func TestUnauthorizedMapsToSentinel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":"token expired"}`)
	})
	_, err := c.ListConversations(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestAPIErrorCarriesMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"message":"maintenance"}`)
	})
	err := c.MarkRead(context.Background(), "1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != 503 || apiErr.Message != "maintenance" || !apiErr.Temporary() {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestListMessagesPagination(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/messages/groups/9/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("limit") != "100" || r.URL.Query().Get("offset") != "0" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, `{"messages":[
			{"message_id": 1, "user_id": 3, "user_name": "ana", "content": "hi", "message_type": "text", "created_at": "2024-03-01T10:00:00Z", "reactions": [{"emoji":"👍","count":2}]},
			{"message_id": 2, "user_id": 3, "user_name": "ana", "content": "report.pdf", "message_type": "file", "created_at": "2024-03-01T10:01:00Z", "file": {"file_id": 44, "file_size": 1024, "mime_type": "application/pdf"}}
		]}`)
	})
	got, err := c.ListMessages(context.Background(), "9", 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d messages", len(got))
	}
	if got[0].ConversationID != "9" || got[0].Status != model.StatusSent || len(got[0].Reactions) != 1 {
		t.Errorf("first = %+v", got[0])
	}
	f := got[1].Body.File
	if got[1].Body.Kind != model.KindFile || f == nil || f.Name != "report.pdf" || f.ID != "44" || f.Size != 1024 {
		t.Errorf("file body = %+v", got[1].Body)
	}
}

func TestSendPollEncodesContent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req sendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Error(err)
			return
		}
		if req.MessageType != "poll" || req.ClientMsgID != "corr-1" {
			t.Errorf("request = %+v", req)
		}
		var p model.Poll
		if err := json.Unmarshal([]byte(req.Content), &p); err != nil || len(p.Options) != 2 {
			t.Errorf("poll content = %q (%v)", req.Content, err)
		}
		_, _ = io.WriteString(w, `{"message":{"message_id": 77, "content": `+strconvQuote(req.Content)+`, "message_type": "poll", "created_at": "2024-03-01T10:00:00Z"}}`)
	})

	got, err := c.SendMessage(context.Background(), "9", model.PollBody("Lunch?", []string{"a", "b"}), "", "corr-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "77" || got.CorrelationID != "corr-1" || got.ConversationID != "9" {
		t.Errorf("message = %+v", got)
	}
	if got.Body.Poll == nil || got.Body.Poll.Question != "Lunch?" {
		t.Errorf("body = %+v", got.Body)
	}
}

func strconvQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestUploadFileMultipart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/messages/groups/9/files" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Error(err)
			return
		}
		if r.FormValue("client_msg_id") != "corr-2" {
			t.Errorf("client_msg_id = %q", r.FormValue("client_msg_id"))
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Error(err)
			return
		}
		defer func() { _ = f.Close() }()
		data, _ := io.ReadAll(f)
		if hdr.Filename != "notes.txt" || string(data) != "hello" {
			t.Errorf("file = %s %q", hdr.Filename, data)
		}
		_, _ = io.WriteString(w, `{"message":{"message_id": 5, "content": "notes.txt", "message_type": "file", "created_at": "2024-03-01T10:00:00Z"}}`)
	})

	got, err := c.UploadFile(context.Background(), "9", model.Upload{
		Name: "notes.txt", MIME: "text/plain", Size: 5, Content: strings.NewReader("hello"),
	}, "corr-2")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "5" || got.Body.File == nil || got.Body.File.Name != "notes.txt" {
		t.Errorf("message = %+v", got)
	}
}

func TestNotifications(t *testing.T) {
	var (
		mu            sync.Mutex
		marked, acted map[string]any
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.URL.Path {
		case "/api/notifications":
			if r.URL.Query().Get("unread_only") != "true" {
				t.Errorf("query = %s", r.URL.RawQuery)
			}
			_, _ = io.WriteString(w, `{"unread_count":2,"notifications":[
				{"notification_id": 1, "message": "bob requested to join Ops", "group_name": "Ops", "created_at": "2024-03-01T10:00:00Z"},
				{"notification_id": 2, "message": "welcome", "type": "general", "created_at": "2024-03-01T10:00:00Z"}
			]}`)
		case "/api/notifications/mark-read":
			_ = json.NewDecoder(r.Body).Decode(&marked)
		case "/api/notifications/join-request/action":
			_ = json.NewDecoder(r.Body).Decode(&acted)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	ctx := context.Background()

	got, err := c.ListUnreadNotifications(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Kind != model.NotificationJoinRequest || !got[0].Actionable() {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Kind != model.NotificationGeneral {
		t.Errorf("second kind = %s", got[1].Kind)
	}

	if err := c.MarkNotificationsRead(ctx, []string{"1", "2"}); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	if ids, _ := marked["notification_ids"].([]any); len(ids) != 2 {
		t.Errorf("mark-read body = %v", marked)
	}
	mu.Unlock()

	if err := c.ActOnJoinRequest(ctx, "1", model.Accept); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	defer mu.Unlock()
	if acted["notification_id"] != "1" || acted["action"] != "accept" {
		t.Errorf("action body = %v", acted)
	}
}

func TestSearch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "deploy plan" {
			t.Errorf("q = %q", r.URL.Query().Get("q"))
		}
		_, _ = io.WriteString(w, `{"messages":[{"message_id":1,"content":"deploy plan","created_at":"2024-03-01T10:00:00Z"}],
			"files":[{"file_id":2,"name":"plan.pdf"}],
			"groups":[{"group_id":3,"group_name":"Deploys"}]}`)
	})
	got, err := c.Search(context.Background(), "deploy plan")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Messages) != 1 || len(got.Files) != 1 || len(got.Conversations) != 1 {
		t.Fatalf("results = %+v", got)
	}
	if got.Files[0].Name != "plan.pdf" || got.Conversations[0].Name != "Deploys" {
		t.Errorf("results = %+v", got)
	}
}

func TestLoginAndVerify(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			var req LoginRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.Email != "a@b.c" || req.Password != "pw" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = io.WriteString(w, `{"token":"jwt","user":{"user_id":7,"username":"ana"}}`)
		case "/api/auth/verify":
			w.WriteHeader(http.StatusOK)
		}
	})
	ctx := context.Background()

	tok, user, err := c.Login(ctx, LoginRequest{Email: "a@b.c", Password: "pw"})
	if err != nil {
		t.Fatal(err)
	}
	if tok != "jwt" || user.ID != "7" || user.Username != "ana" {
		t.Errorf("login = %q %+v", tok, user)
	}
	if _, _, err := c.Login(ctx, LoginRequest{Email: "a@b.c", Password: "bad"}); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("bad login err = %v", err)
	}
	if err := c.Verify(ctx); err != nil {
		t.Errorf("Verify = %v", err)
	}
}

func TestJoinGroupByAccessType(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		paths = append(paths, r.URL.Path)
	})
	ctx := context.Background()

	if joined, err := c.JoinGroup(ctx, "4", AccessPublic); err != nil || !joined {
		t.Errorf("public join = %v, %v", joined, err)
	}
	if joined, err := c.JoinGroup(ctx, "5", AccessApproval); err != nil || joined {
		t.Errorf("approval join = %v, %v", joined, err)
	}
	if _, err := c.JoinGroup(ctx, "6", "secret"); err == nil {
		t.Error("unknown access type should fail")
	}
	mu.Lock()
	defer mu.Unlock()
	want := []string{"/api/groups/4/join", "/api/groups/5/request"}
	if len(paths) != 2 || paths[0] != want[0] || paths[1] != want[1] {
		t.Errorf("paths = %v, want %v", paths, want)
	}
}

func TestTransportErrorIsNotUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()
	c := NewClient(srv.URL)
	err := c.Verify(context.Background())
	if err == nil || errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want a transport error", err)
	}
}
