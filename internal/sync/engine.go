// Package sync keeps the in-memory state in step with the server by
// refetching scopes when realtime events say they changed.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dropdeck/dropdeck/internal/bus"
	"github.com/dropdeck/dropdeck/internal/model"
	"github.com/dropdeck/dropdeck/internal/rest"
	"github.com/dropdeck/dropdeck/internal/state"
	"go.uber.org/zap"
)

// ErrSuperseded is returned by Sync when Cancel or Stop discarded the
// refetch it was waiting on.
var ErrSuperseded = errors.New("sync: refetch superseded")

// Fetcher is the read side of the REST API.
type Fetcher interface {
	ListConversations(ctx context.Context) ([]model.Conversation, error)
	ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error)
	ListUnreadNotifications(ctx context.Context) ([]model.Notification, error)
}

// Cache receives a snapshot after each successful merge.
type Cache interface {
	SaveConversations(ctx context.Context, list []model.Conversation) error
	SaveMessages(ctx context.Context, conversationID string, msgs []model.Message) error
	UpdateCheckpoint(ctx context.Context, key, value string) error
}

// Failure is the payload of bus.KindSyncError.
type Failure struct {
	Scope string `json:"scope"`
	Error string `json:"error"`
}

// Options tunes an Engine.
type Options struct {
	PageSize      int
	Cache         Cache
	OnAuthFailure func()
	Now           func() time.Time
}

type scopeState struct {
	running bool
	dirty   bool
	gen     uint64
	cancel  context.CancelFunc
	waiters []chan error
}

// Engine coalesces refetch triggers per scope and merges results into the
// state store. At most one fetch per scope is in flight.
type Engine struct {
	fetch  Fetcher
	store  *state.Store
	bus    *bus.Bus
	logger *zap.Logger
	opts   Options

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu     sync.Mutex
	scopes map[string]*scopeState
}

// NewEngine creates a sync engine.
func NewEngine(fetch Fetcher, st *state.Store, b *bus.Bus, logger *zap.Logger, opts Options) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	base, stop := context.WithCancel(context.Background())
	return &Engine{
		fetch:  fetch,
		store:  st,
		bus:    b,
		logger: logger,
		opts:   opts,
		base:   base,
		stop:   stop,
		scopes: make(map[string]*scopeState),
	}
}

// Start ties the engine's lifetime to ctx.
func (e *Engine) Start(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			e.Stop()
		case <-e.base.Done():
		}
	}()
}

// Stop cancels every in-flight refetch and waits for the workers to exit.
// Triggers after Stop are ignored.
func (e *Engine) Stop() {
	e.stop()
	e.wg.Wait()
}

func (e *Engine) scope(key string) *scopeState {
	st, ok := e.scopes[key]
	if !ok {
		st = &scopeState{}
		e.scopes[key] = st
	}
	return st
}

// Refetch schedules a reload of scope. While a reload is in flight any
// number of further calls collapse into exactly one follow-up.
func (e *Engine) Refetch(scope Scope) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.triggerLocked(scope)
}

func (e *Engine) triggerLocked(scope Scope) bool {
	if e.base.Err() != nil {
		return false
	}
	st := e.scope(scope.Key())
	if st.running {
		st.dirty = true
		return true
	}
	st.running = true
	e.wg.Add(1)
	go e.run(scope, st)
	return true
}

// OnScopeEvent reacts to a realtime event that invalidated scope.
func (e *Engine) OnScopeEvent(scope Scope, kind string) {
	e.logger.Debug("scope invalidated", zap.String("scope", scope.Key()), zap.String("event", kind))
	e.Refetch(scope)
}

// Sync triggers a refetch of scope and waits until the scope is idle,
// returning the error of the last fetch.
func (e *Engine) Sync(ctx context.Context, scope Scope) error {
	done := make(chan error, 1)
	e.mu.Lock()
	if !e.triggerLocked(scope) {
		e.mu.Unlock()
		return ErrSuperseded
	}
	st := e.scope(scope.Key())
	st.waiters = append(st.waiters, done)
	e.mu.Unlock()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel aborts the in-flight fetch of scope and drops any pending
// follow-up. A result that arrives anyway is discarded.
func (e *Engine) Cancel(scope Scope) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.scopes[scope.Key()]
	if !ok {
		return
	}
	st.gen++
	st.dirty = false
	if st.cancel != nil {
		st.cancel()
	}
}

func (e *Engine) run(scope Scope, st *scopeState) {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		st.dirty = false
		gen := st.gen
		ctx, cancel := context.WithCancel(e.base)
		st.cancel = cancel
		e.mu.Unlock()

		err := e.refetch(ctx, scope, st, gen)
		cancel()

		e.mu.Lock()
		st.cancel = nil
		if st.dirty && e.base.Err() == nil {
			e.mu.Unlock()
			continue
		}
		st.running = false
		waiters := st.waiters
		st.waiters = nil
		e.mu.Unlock()

		for _, w := range waiters {
			w <- err
		}
		return
	}
}

func (e *Engine) refetch(ctx context.Context, scope Scope, st *scopeState, gen uint64) error {
	var apply func()
	var persist func(context.Context) error

	switch scope.Kind {
	case ScopeConversations:
		list, err := e.fetch.ListConversations(ctx)
		if err != nil {
			return e.failed(ctx, scope, st, gen, err)
		}
		apply = func() { e.store.ReplaceConversations(list) }
		persist = func(ctx context.Context) error {
			return e.opts.Cache.SaveConversations(ctx, e.store.Conversations())
		}
	case ScopeConversation:
		page, err := e.fetch.ListMessages(ctx, scope.ID, e.opts.PageSize, 0)
		if err != nil {
			return e.failed(ctx, scope, st, gen, err)
		}
		apply = func() { e.store.MergeMessages(scope.ID, page) }
		persist = func(ctx context.Context) error {
			return e.opts.Cache.SaveMessages(ctx, scope.ID, e.store.Messages(scope.ID))
		}
	case ScopeNotifications:
		list, err := e.fetch.ListUnreadNotifications(ctx)
		if err != nil {
			return e.failed(ctx, scope, st, gen, err)
		}
		apply = func() { e.store.ReplaceNotifications(list) }
	default:
		return fmt.Errorf("refetch %s: unknown scope", scope.Key())
	}

	e.mu.Lock()
	if gen != st.gen || ctx.Err() != nil {
		e.mu.Unlock()
		e.logger.Debug("discarding stale refetch", zap.String("scope", scope.Key()))
		return ErrSuperseded
	}
	apply()
	e.mu.Unlock()

	if e.opts.Cache != nil {
		if persist != nil {
			if err := persist(ctx); err != nil {
				e.logger.Warn("cache snapshot failed", zap.String("scope", scope.Key()), zap.Error(err))
			}
		}
		stamp := e.opts.Now().UTC().Format(time.RFC3339)
		if err := e.opts.Cache.UpdateCheckpoint(ctx, "last_sync:"+scope.Key(), stamp); err != nil {
			e.logger.Warn("checkpoint failed", zap.String("scope", scope.Key()), zap.Error(err))
		}
	}
	return nil
}

func (e *Engine) failed(ctx context.Context, scope Scope, st *scopeState, gen uint64, err error) error {
	e.mu.Lock()
	stale := gen != st.gen || ctx.Err() != nil
	e.mu.Unlock()
	if stale {
		return ErrSuperseded
	}

	err = fmt.Errorf("refetch %s: %w", scope.Key(), err)
	if errors.Is(err, rest.ErrUnauthorized) {
		e.logger.Warn("refetch unauthorized", zap.String("scope", scope.Key()))
		if e.opts.OnAuthFailure != nil {
			e.opts.OnAuthFailure()
		} else {
			e.bus.Emit(bus.KindSignedOut, scope.Key())
		}
		return err
	}
	e.logger.Error("refetch failed", zap.String("scope", scope.Key()), zap.Error(err))
	e.bus.Emit(bus.KindSyncError, Failure{Scope: scope.Key(), Error: err.Error()})
	return err
}
