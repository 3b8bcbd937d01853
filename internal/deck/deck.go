// Package deck is the client-state context of one signed-in session. It
// owns the realtime connection, the state store and every component that
// keeps that state in step with the backend, and it switches them between
// conversations as the user moves around.
package deck

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dropdeck/dropdeck/internal/auth"
	"github.com/dropdeck/dropdeck/internal/bus"
	"github.com/dropdeck/dropdeck/internal/dispatch"
	"github.com/dropdeck/dropdeck/internal/model"
	"github.com/dropdeck/dropdeck/internal/outbox"
	"github.com/dropdeck/dropdeck/internal/prefs"
	"github.com/dropdeck/dropdeck/internal/realtime"
	"github.com/dropdeck/dropdeck/internal/rest"
	"github.com/dropdeck/dropdeck/internal/search"
	"github.com/dropdeck/dropdeck/internal/state"
	"github.com/dropdeck/dropdeck/internal/status"
	"github.com/dropdeck/dropdeck/internal/store"
	intsync "github.com/dropdeck/dropdeck/internal/sync"
	"github.com/dropdeck/dropdeck/internal/typing"
	"go.uber.org/zap"
)

var (
	// ErrSignedOut is returned by operations that need a credential.
	ErrSignedOut = errors.New("signed out")
	// ErrNoConversation is returned when a conversation is unknown or none
	// is open.
	ErrNoConversation = errors.New("no such conversation")
)

// API is the backend REST surface the deck uses.
type API interface {
	intsync.Fetcher
	outbox.Writer
	Profile(ctx context.Context) (model.User, error)
	Login(ctx context.Context, req rest.LoginRequest) (string, model.User, error)
	Search(ctx context.Context, query string) (model.SearchResults, error)
	DiscoverGroups(ctx context.Context) ([]model.Conversation, error)
	JoinGroup(ctx context.Context, groupID, accessType string) (bool, error)
}

// Conn is the realtime connection.
type Conn interface {
	Connect(ctx context.Context) error
	Disconnect()
	JoinScope(ctx context.Context, j realtime.Join) error
	LeaveScope(j realtime.Join)
	Emit(ctx context.Context, event string, data any) error
	OnEvent(h realtime.Handler)
	OnAuthFailure(fn func())
}

// Cache is the local sqlite cache and outbox journal.
type Cache interface {
	intsync.Cache
	outbox.Journal
	LoadConversations(ctx context.Context) ([]model.Conversation, error)
	LoadMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
	SearchMessages(ctx context.Context, query string, limit int) ([]model.Message, error)
	ListOutbox(ctx context.Context, status string, limit int) ([]store.OutboxEntry, error)
	AbandonStaleOutbox(ctx context.Context) (int64, error)
}

// Config tunes a Deck.
type Config struct {
	PageSize       int
	SearchLimit    int
	MarkReadOnOpen bool
	MaxUploadBytes int64
	Typing         typing.Options
}

// Deps are the collaborators a Deck is built from.
type Deps struct {
	API     API
	Conn    Conn
	Auth    *auth.Authenticator
	Prefs   *prefs.Preferences
	Cache   Cache
	Machine *status.Machine
	Bus     *bus.Bus
	Logger  *zap.Logger
}

// Deck is safe for concurrent use.
type Deck struct {
	api     API
	conn    Conn
	auth    *auth.Authenticator
	prefs   *prefs.Preferences
	cache   Cache
	machine *status.Machine
	bus     *bus.Bus
	logger  *zap.Logger
	cfg     Config

	dispatcher *dispatch.Dispatcher
	state      *state.Store
	engine     *intsync.Engine
	pipeline   *outbox.Pipeline
	typing     *typing.Tracker
	index      *search.Index

	mu          sync.Mutex
	active      string
	activeGroup *dispatch.Group
	userGroup   *dispatch.Group
	userJoin    realtime.Join
	discovered  map[string]string
	cancel      context.CancelFunc
	startedAt   time.Time
	signingOut  atomic.Bool
}

// New wires a Deck. Nothing touches the network until Start.
func New(deps Deps, cfg Config) *Deck {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 50
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	machine := deps.Machine
	if machine == nil {
		machine = status.NewMachine(deps.Bus)
	}

	d := &Deck{
		api:        deps.API,
		conn:       deps.Conn,
		auth:       deps.Auth,
		prefs:      deps.Prefs,
		cache:      deps.Cache,
		machine:    machine,
		bus:        deps.Bus,
		logger:     logger,
		cfg:        cfg,
		dispatcher: dispatch.New(logger.Named("dispatch")),
		state:      state.New(deps.Bus),
		index:      search.New(),
		discovered: make(map[string]string),
	}
	d.engine = intsync.NewEngine(d.api, d.state, d.bus, logger.Named("sync"), intsync.Options{
		PageSize:      cfg.PageSize,
		Cache:         d.cache,
		OnAuthFailure: d.forceSignOut,
	})
	d.pipeline = outbox.New(d.api, d.state, d.bus, logger.Named("outbox"), outbox.Options{
		Journal:        d.cache,
		Identity:       d.identity,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	d.typing = typing.NewTracker(typingEmitter{d}, d.bus, logger.Named("typing"), cfg.Typing)
	d.conn.OnEvent(d.onEnvelope)
	d.conn.OnAuthFailure(d.forceSignOut)
	return d
}

// State exposes the reconciled view for read-only use by frontends.
func (d *Deck) State() *state.Store { return d.state }

func (d *Deck) identity() (string, string) {
	c := d.auth.Credential()
	return c.UserID, c.Username
}

// Start restores the cached view, verifies the stored credential and, if it
// is still accepted, connects and runs the initial sync. A backend that is
// unreachable is not an error: the deck keeps retrying in the background.
func (d *Deck) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	d.mu.Lock()
	d.cancel = cancel
	d.startedAt = time.Now()
	d.mu.Unlock()

	d.engine.Start(runCtx)
	d.typing.Start(runCtx)
	go d.watchMessages(runCtx)

	if n, err := d.cache.AbandonStaleOutbox(ctx); err != nil {
		d.logger.Warn("abandon stale outbox failed", zap.Error(err))
	} else if n > 0 {
		d.logger.Info("abandoned unfinished mutations from previous run", zap.Int64("count", n))
	}
	if pins, err := d.prefs.PinnedIDs(ctx); err != nil {
		d.logger.Warn("load pinned conversations failed", zap.Error(err))
	} else {
		d.state.SetPinnedIDs(pins)
	}
	if cached, err := d.cache.LoadConversations(ctx); err != nil {
		d.logger.Warn("load cached conversations failed", zap.Error(err))
	} else if len(cached) > 0 {
		d.state.ReplaceConversations(cached)
		d.logger.Info("restored cached conversations", zap.Int("count", len(cached)))
	}

	if err := d.auth.Load(ctx); err != nil {
		return err
	}
	if !d.auth.HasCredential() {
		d.logger.Info("no usable credential, sign-in required")
		_ = d.machine.Transition(status.AuthRequired)
		return nil
	}
	ok, err := d.auth.Verify(ctx)
	if err != nil {
		d.logger.Warn("could not verify credential, continuing offline", zap.Error(err))
	} else if !ok {
		d.signedOut("credential rejected")
		return nil
	}
	return d.online(ctx)
}

// Stop tears everything down. The deck cannot be restarted.
func (d *Deck) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	active, userGroup := d.activeGroup, d.userGroup
	d.activeGroup, d.userGroup = nil, nil
	d.mu.Unlock()

	d.typing.Stop()
	active.Close()
	userGroup.Close()
	d.conn.Disconnect()
	if cancel != nil {
		cancel()
	}
	d.engine.Stop()
}

// watchMessages keeps the search index on the active conversation's
// current message list.
func (d *Deck) watchMessages(ctx context.Context) {
	ch, unsub := d.bus.Subscribe("state.", 64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-ch:
			if evt.Kind != bus.KindMessagesChange {
				continue
			}
			id, _ := evt.Payload.(string)
			if id != "" && id == d.Active() {
				d.index.SetMessages(d.state.Messages(id))
			}
		}
	}
}

// Active returns the open conversation id, or "".
func (d *Deck) Active() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Status summarizes the session.
type Status struct {
	Connection    status.State `json:"connection"`
	SignedIn      bool         `json:"signed_in"`
	UserID        string       `json:"user_id,omitempty"`
	Username      string       `json:"username,omitempty"`
	Active        string       `json:"active,omitempty"`
	Conversations int          `json:"conversations"`
	Notifications int          `json:"notifications"`
	Pending       int          `json:"pending"`
	Uptime        string       `json:"uptime"`
}

// Status reports connection and session state.
func (d *Deck) Status() Status {
	c := d.auth.Credential()
	d.mu.Lock()
	active, started := d.active, d.startedAt
	d.mu.Unlock()
	s := Status{
		Connection:    d.machine.Current(),
		SignedIn:      d.auth.HasCredential(),
		UserID:        c.UserID,
		Username:      c.Username,
		Active:        active,
		Conversations: len(d.state.Conversations()),
		Notifications: len(d.state.Notifications()),
	}
	if active != "" {
		s.Pending = d.pipeline.Pending(active)
	}
	if !started.IsZero() {
		s.Uptime = time.Since(started).Round(time.Second).String()
	}
	return s
}
