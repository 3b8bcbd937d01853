package viewmodel

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/dropdeck/dropdeck/internal/api"
	"github.com/dropdeck/dropdeck/internal/bus"
	"github.com/dropdeck/dropdeck/internal/deck"
	"github.com/dropdeck/dropdeck/internal/model"
	"github.com/dropdeck/dropdeck/internal/outbox"
	"github.com/dropdeck/dropdeck/internal/search"
	"github.com/dropdeck/dropdeck/internal/status"
	intsync "github.com/dropdeck/dropdeck/internal/sync"
)

// Backend is the part of the daemon client the TUI uses.
type Backend interface {
	Status(ctx context.Context) (api.StatusResponse, error)
	SignIn(ctx context.Context, req api.SignInRequest) (api.SignInResponse, error)
	SignOut(ctx context.Context) error
	Conversations(ctx context.Context) ([]model.Conversation, error)
	Open(ctx context.Context, conversationID string) ([]model.Message, error)
	Messages(ctx context.Context, conversationID string) ([]model.Message, error)
	LoadOlder(ctx context.Context, conversationID string) (int, error)
	SendText(ctx context.Context, req api.SendTextRequest) (model.Message, error)
	SendPoll(ctx context.Context, req api.SendPollRequest) (model.Message, error)
	Upload(ctx context.Context, req api.UploadFileRequest) (model.Message, error)
	MarkRead(ctx context.Context, conversationID string) error
	SetPinned(ctx context.Context, conversationID string, pinned bool) error
	Typing(ctx context.Context) error
	TypingUsers(ctx context.Context) ([]model.TypingEntry, error)
	Find(ctx context.Context, term string) (api.FindResponse, error)
	Navigate(ctx context.Context, direction string) (search.Step, error)
	Notifications(ctx context.Context) ([]model.Notification, error)
	MarkNotificationsRead(ctx context.Context, ids []string) error
	ActOnJoinRequest(ctx context.Context, notificationID string, decision model.JoinDecision) error
	Search(ctx context.Context, query string) (deck.SearchResult, error)
	Discover(ctx context.Context) ([]model.Conversation, error)
	Join(ctx context.Context, groupID string) (bool, error)
	RecentEmoji(ctx context.Context) ([]string, error)
	UseEmoji(ctx context.Context, emoji string) ([]string, error)
}

// Change tells the UI which parts of the view model an event refreshed.
type Change uint8

const (
	ChangeStatus Change = 1 << iota
	ChangeConversations
	ChangeMessages
	ChangeNotifications
	ChangeTyping
	ChangeToast
)

// Has reports whether c includes part.
func (c Change) Has(part Change) bool { return c&part != 0 }

// ViewModel caches daemon state for the views. Views read snapshots; the
// app refreshes parts as daemon events arrive.
type ViewModel struct {
	mu sync.RWMutex

	backend       Backend
	status        api.StatusResponse
	conversations []model.Conversation
	activeID      string
	messages      []model.Message
	typing        []model.TypingEntry
	notifications []model.Notification
	findTerm      string
	find          api.FindResponse
	results       deck.SearchResult
	toast         Toast
}

// ToastKind says what a toast reports.
type ToastKind int

const (
	// ToastNotice is a notification pushed by the backend.
	ToastNotice ToastKind = iota
	// ToastFailure reports a send or refresh that failed in the daemon.
	ToastFailure
	// ToastSignedOut reports that the session lost its credential.
	ToastSignedOut
)

// Toast is a one-line message raised by a daemon event.
type Toast struct {
	Kind ToastKind
	Text string
}

// New creates a view model backed by the daemon client.
func New(b Backend) *ViewModel {
	return &ViewModel{backend: b}
}

// LoadStatus fetches the session status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	st, err := vm.backend.Status(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = st
	vm.mu.Unlock()
	return nil
}

// LoadConversations fetches the sorted conversation list.
func (vm *ViewModel) LoadConversations(ctx context.Context) error {
	convs, err := vm.backend.Conversations(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.conversations = convs
	vm.mu.Unlock()
	return nil
}

// Open makes id the active conversation and loads its messages. Any
// in-thread search is dropped.
func (vm *ViewModel) Open(ctx context.Context, id string) error {
	msgs, err := vm.backend.Open(ctx, id)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.activeID = id
	vm.messages = msgs
	vm.typing = nil
	vm.findTerm = ""
	vm.find = api.FindResponse{}
	vm.mu.Unlock()
	return nil
}

// LoadMessages refreshes the active conversation's messages and reapplies
// the in-thread search term.
func (vm *ViewModel) LoadMessages(ctx context.Context) error {
	id, term := vm.Active(), vm.FindTerm()
	if id == "" {
		return nil
	}
	msgs, err := vm.backend.Messages(ctx, id)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	if vm.activeID == id {
		vm.messages = msgs
	}
	vm.mu.Unlock()
	if term != "" {
		return vm.Find(ctx, term)
	}
	return nil
}

// LoadOlder pulls the previous page of the active conversation.
func (vm *ViewModel) LoadOlder(ctx context.Context) (int, error) {
	id := vm.Active()
	if id == "" {
		return 0, deck.ErrNoConversation
	}
	n, err := vm.backend.LoadOlder(ctx, id)
	if err != nil {
		return 0, err
	}
	return n, vm.LoadMessages(ctx)
}

// LoadTyping refreshes who is typing in the active conversation.
func (vm *ViewModel) LoadTyping(ctx context.Context) error {
	entries, err := vm.backend.TypingUsers(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.typing = entries
	vm.mu.Unlock()
	return nil
}

// LoadNotifications fetches unread notifications.
func (vm *ViewModel) LoadNotifications(ctx context.Context) error {
	list, err := vm.backend.Notifications(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.notifications = list
	vm.mu.Unlock()
	return nil
}

// Find sets the in-thread search term. An empty term clears it.
func (vm *ViewModel) Find(ctx context.Context, term string) error {
	resp, err := vm.backend.Find(ctx, term)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.findTerm = term
	vm.find = resp
	vm.mu.Unlock()
	return nil
}

// Navigate moves the in-thread search cursor. It does not wrap.
func (vm *ViewModel) Navigate(ctx context.Context, dir search.Direction) (search.Step, error) {
	name := "next"
	if dir == search.Prev {
		name = "prev"
	}
	step, err := vm.backend.Navigate(ctx, name)
	if err != nil {
		return step, err
	}
	vm.mu.Lock()
	vm.find.Step = step
	vm.mu.Unlock()
	return step, nil
}

// Send posts text to the active conversation.
func (vm *ViewModel) Send(ctx context.Context, text, replyTo string) error {
	_, err := vm.backend.SendText(ctx, api.SendTextRequest{Text: text, ReplyTo: replyTo})
	return err
}

// SendPoll posts a poll to the active conversation.
func (vm *ViewModel) SendPoll(ctx context.Context, question string, options []string) error {
	_, err := vm.backend.SendPoll(ctx, api.SendPollRequest{Question: question, Options: options})
	return err
}

// Upload sends a file to the active conversation.
func (vm *ViewModel) Upload(ctx context.Context, name, mime string, content []byte) error {
	_, err := vm.backend.Upload(ctx, api.UploadFileRequest{Name: name, MIME: mime, Content: content})
	return err
}

// Typing tells the daemon the user is composing. The daemon debounces.
func (vm *ViewModel) Typing(ctx context.Context) error {
	if vm.Active() == "" {
		return nil
	}
	return vm.backend.Typing(ctx)
}

// TogglePin flips the pinned flag of a conversation and returns the new value.
func (vm *ViewModel) TogglePin(ctx context.Context, id string) (bool, error) {
	pinned := false
	for _, c := range vm.Conversations() {
		if c.ID == id {
			pinned = !c.Pinned
			break
		}
	}
	if err := vm.backend.SetPinned(ctx, id, pinned); err != nil {
		return false, err
	}
	return pinned, vm.LoadConversations(ctx)
}

// MarkRead clears the unread count of the active conversation.
func (vm *ViewModel) MarkRead(ctx context.Context) error {
	return vm.backend.MarkRead(ctx, vm.Active())
}

// MarkAllNotificationsRead marks every cached notification read.
func (vm *ViewModel) MarkAllNotificationsRead(ctx context.Context) error {
	var ids []string
	for _, n := range vm.Notifications() {
		ids = append(ids, n.ID)
	}
	if len(ids) == 0 {
		return nil
	}
	return vm.backend.MarkNotificationsRead(ctx, ids)
}

// Decide answers a join request notification.
func (vm *ViewModel) Decide(ctx context.Context, notificationID string, d model.JoinDecision) error {
	return vm.backend.ActOnJoinRequest(ctx, notificationID, d)
}

// Search runs a global search and keeps the results.
func (vm *ViewModel) Search(ctx context.Context, query string) (deck.SearchResult, error) {
	res, err := vm.backend.Search(ctx, query)
	if err != nil {
		return res, err
	}
	vm.mu.Lock()
	vm.results = res
	vm.mu.Unlock()
	return res, nil
}

// Discover lists groups the user could join.
func (vm *ViewModel) Discover(ctx context.Context) ([]model.Conversation, error) {
	return vm.backend.Discover(ctx)
}

// Join joins a group or requests to join it. It reports whether the user
// is now a member.
func (vm *ViewModel) Join(ctx context.Context, groupID string) (bool, error) {
	return vm.backend.Join(ctx, groupID)
}

// UseEmoji records emoji as recently used and returns the updated list.
func (vm *ViewModel) UseEmoji(ctx context.Context, emoji string) ([]string, error) {
	return vm.backend.UseEmoji(ctx, emoji)
}

// RecentEmoji returns the recently used emoji, newest first.
func (vm *ViewModel) RecentEmoji(ctx context.Context) ([]string, error) {
	return vm.backend.RecentEmoji(ctx)
}

// SignIn signs the session in.
func (vm *ViewModel) SignIn(ctx context.Context, email, password, captcha string) (api.SignInResponse, error) {
	return vm.backend.SignIn(ctx, api.SignInRequest{Email: email, Password: password, CaptchaToken: captcha})
}

// SignOut signs out and forgets the cached view.
func (vm *ViewModel) SignOut(ctx context.Context) error {
	if err := vm.backend.SignOut(ctx); err != nil {
		return err
	}
	vm.reset()
	return nil
}

func (vm *ViewModel) reset() {
	vm.mu.Lock()
	vm.conversations = nil
	vm.activeID = ""
	vm.messages = nil
	vm.typing = nil
	vm.notifications = nil
	vm.findTerm = ""
	vm.find = api.FindResponse{}
	vm.results = deck.SearchResult{}
	vm.mu.Unlock()
}

// HandleEvent refreshes whatever a daemon event invalidates and reports
// what changed. Load errors are returned alongside the parts that did
// refresh.
func (vm *ViewModel) HandleEvent(ctx context.Context, evt api.Event) (Change, error) {
	switch evt.Kind {
	case bus.KindConnStatus:
		var sc status.StatusChange
		if json.Unmarshal(evt.Payload, &sc) == nil && sc.To != "" {
			vm.mu.Lock()
			vm.status.Connection = sc.To
			vm.mu.Unlock()
		}
		return ChangeStatus, vm.LoadStatus(ctx)

	case bus.KindSignedIn:
		if err := vm.LoadStatus(ctx); err != nil {
			return 0, err
		}
		return ChangeStatus | ChangeConversations, vm.LoadConversations(ctx)

	case bus.KindSignedOut:
		var reason string
		_ = json.Unmarshal(evt.Payload, &reason)
		vm.reset()
		vm.setToast(ToastSignedOut, signedOutText(reason))
		return ChangeStatus | ChangeConversations | ChangeMessages | ChangeNotifications | ChangeToast, vm.LoadStatus(ctx)

	case bus.KindConversationsChange:
		return ChangeConversations, vm.LoadConversations(ctx)

	case bus.KindMessagesChange:
		var id string
		if err := json.Unmarshal(evt.Payload, &id); err != nil || id != vm.Active() {
			return 0, nil
		}
		return ChangeMessages, vm.LoadMessages(ctx)

	case bus.KindNotificationsChange:
		return ChangeNotifications, vm.LoadNotifications(ctx)

	case bus.KindTypingChange:
		var id string
		if err := json.Unmarshal(evt.Payload, &id); err != nil || id != vm.Active() {
			return 0, nil
		}
		return ChangeTyping, vm.LoadTyping(ctx)

	case bus.KindNotificationToast:
		var t deck.Toast
		if err := json.Unmarshal(evt.Payload, &t); err != nil || t.Message == "" {
			return 0, nil
		}
		vm.setToast(ToastNotice, t.Message)
		return ChangeToast, nil

	case bus.KindSendFailed:
		var f outbox.SendFailure
		if err := json.Unmarshal(evt.Payload, &f); err != nil {
			return 0, nil
		}
		vm.setToast(ToastFailure, fmt.Sprintf("Send failed: %s", f.Error))
		return ChangeToast, nil

	case bus.KindSyncError:
		var f intsync.Failure
		if err := json.Unmarshal(evt.Payload, &f); err != nil {
			return 0, nil
		}
		vm.setToast(ToastFailure, fmt.Sprintf("Refresh of %s failed: %s", f.Scope, f.Error))
		return ChangeToast, nil
	}
	return 0, nil
}

func (vm *ViewModel) setToast(kind ToastKind, text string) {
	vm.mu.Lock()
	vm.toast = Toast{Kind: kind, Text: text}
	vm.mu.Unlock()
}

// signedOutText explains a sign-out. A sign-out the user asked for needs
// no reason.
func signedOutText(reason string) string {
	if reason == "" || reason == "user" {
		return "Signed out"
	}
	return "Signed out (" + reason + "), sign in to continue"
}

// TakeToast returns the pending toast, if any, and clears it.
func (vm *ViewModel) TakeToast() (Toast, bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	t := vm.toast
	vm.toast = Toast{}
	return t, t.Text != ""
}

// Status returns the last fetched session status.
func (vm *ViewModel) Status() api.StatusResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// SignedIn reports whether the daemon holds a credential.
func (vm *ViewModel) SignedIn() bool {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status.SignedIn
}

// Active returns the active conversation id.
func (vm *ViewModel) Active() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.activeID
}

// ActiveConversation returns the cached active conversation.
func (vm *ViewModel) ActiveConversation() (model.Conversation, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for _, c := range vm.conversations {
		if c.ID == vm.activeID {
			return c, true
		}
	}
	return model.Conversation{}, false
}

// Conversations returns the cached conversation list.
func (vm *ViewModel) Conversations() []model.Conversation {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.conversations
}

// ConversationByName finds a conversation by case-insensitive name prefix.
func (vm *ViewModel) ConversationByName(name string) (model.Conversation, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return model.Conversation{}, false
	}
	for _, c := range vm.Conversations() {
		if strings.ToLower(c.Name) == name || c.ID == name {
			return c, true
		}
	}
	for _, c := range vm.Conversations() {
		if strings.HasPrefix(strings.ToLower(c.Name), name) {
			return c, true
		}
	}
	return model.Conversation{}, false
}

// Messages returns the active conversation's messages, oldest first.
func (vm *ViewModel) Messages() []model.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.messages
}

// TypingNames returns who is typing in the active conversation.
func (vm *ViewModel) TypingNames() []string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	var names []string
	for _, e := range vm.typing {
		if e.ConversationID != vm.activeID {
			continue
		}
		name := e.Name
		if name == "" {
			name = e.UserID
		}
		names = append(names, name)
	}
	return names
}

// Notifications returns the cached unread notifications.
func (vm *ViewModel) Notifications() []model.Notification {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.notifications
}

// FindTerm returns the in-thread search term.
func (vm *ViewModel) FindTerm() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.findTerm
}

// FindState returns the in-thread search step and match positions.
func (vm *ViewModel) FindState() api.FindResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.find
}

// Results returns the last global search results.
func (vm *ViewModel) Results() deck.SearchResult {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.results
}
