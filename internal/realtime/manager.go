// Package realtime owns the session's single WebSocket to the backend: it
// dials, replays scope joins, reconnects with backoff and hands inbound
// frames to a handler.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/dropdeck/dropdeck/internal/status"
	"go.uber.org/zap"
)

var (
	// ErrUnauthorized means the backend refused the handshake credential.
	ErrUnauthorized = errors.New("realtime: handshake unauthorized")
	// ErrNotConnected is returned by Emit when there is no live socket.
	ErrNotConnected = errors.New("realtime: not connected")
	// ErrClosed means Disconnect was called while a dial was in flight.
	ErrClosed = errors.New("realtime: disconnected")
)

// Config configures a Manager. Zero values fall back to defaults.
type Config struct {
	URL               string
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	MaxAttempts       int // 0 means unlimited
	HeartbeatInterval time.Duration
	DialTimeout       time.Duration
	WriteTimeout      time.Duration
	ReadLimit         int64
}

func (c *Config) defaults() {
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 1 << 20
	}
}

// Handler receives inbound envelopes in arrival order on the read
// goroutine. It must not block.
type Handler func(Envelope)

// Manager is safe for concurrent use.
type Manager struct {
	cfg           Config
	token         func() string
	onEvent       Handler
	onAuthFailure func()
	machine       *status.Machine
	logger        *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	joins   []Join
	timer   *time.Timer
	recon   *reconnector
	closing bool
	dialSeq uint64
	connSeq uint64
}

// NewManager creates a disconnected manager. token is read on every dial.
func NewManager(cfg Config, token func() string, machine *status.Machine, logger *zap.Logger) *Manager {
	cfg.defaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	if machine == nil {
		machine = status.NewMachine(nil)
	}
	if token == nil {
		token = func() string { return "" }
	}
	return &Manager{
		cfg:           cfg,
		token:         token,
		onEvent:       func(Envelope) {},
		onAuthFailure: func() {},
		machine:       machine,
		logger:        logger,
		recon:         newReconnector(cfg),
	}
}

// OnEvent sets the inbound handler. Call before Connect.
func (m *Manager) OnEvent(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEvent = h
}

// OnAuthFailure sets the callback run when the handshake is refused.
func (m *Manager) OnAuthFailure(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAuthFailure = fn
}

// State returns the connection state.
func (m *Manager) State() status.State {
	return m.machine.Current()
}

// Connect dials the backend unless a socket is already live or being
// dialed, in which case it returns nil immediately. A failed dial is
// returned and retried in the background like a dropped connection;
// only a rejected handshake stops retries.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.conn != nil || m.machine.Is(status.Connecting) {
		m.mu.Unlock()
		return nil
	}
	m.closing = false
	m.stopTimerLocked()
	m.recon.reset()
	seq := m.beginDialLocked()
	m.mu.Unlock()

	return m.dial(ctx, seq)
}

func (m *Manager) beginDialLocked() uint64 {
	m.dialSeq++
	m.transitionLocked(status.Connecting)
	return m.dialSeq
}

func (m *Manager) dial(ctx context.Context, seq uint64) error {
	header := http.Header{}
	if tok := m.token(); tok != "" {
		header.Set("Authorization", "Bearer "+tok)
	}
	dctx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
	conn, resp, err := websocket.Dial(dctx, m.cfg.URL, &websocket.DialOptions{HTTPHeader: header})
	cancel()

	m.mu.Lock()
	if m.closing || seq != m.dialSeq {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.CloseNow()
		}
		return ErrClosed
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			m.transitionLocked(status.AuthRequired)
			onAuth := m.onAuthFailure
			m.mu.Unlock()
			m.logger.Warn("realtime handshake rejected", zap.Int("status", resp.StatusCode))
			onAuth()
			return fmt.Errorf("dial %s: %w", m.cfg.URL, ErrUnauthorized)
		}
		m.transitionLocked(status.Reconnecting)
		m.scheduleLocked()
		m.mu.Unlock()
		return fmt.Errorf("dial %s: %w", m.cfg.URL, err)
	}

	conn.SetReadLimit(m.cfg.ReadLimit)
	connCtx, connCancel := context.WithCancel(context.Background())
	m.conn = conn
	m.cancel = connCancel
	m.connSeq++
	gen := m.connSeq
	m.recon.markConnected()
	m.transitionLocked(status.Connected)
	joins := slices.Clone(m.joins)
	handler := m.onEvent
	m.mu.Unlock()

	m.logger.Info("realtime connected", zap.String("url", m.cfg.URL), zap.Int("joins", len(joins)))
	for _, j := range joins {
		if err := m.writeJoin(connCtx, conn, j); err != nil {
			m.logger.Warn("replay join failed", zap.String("event", j.Event), zap.String("scope", j.ScopeID), zap.Error(err))
		}
	}
	go m.readLoop(connCtx, conn, gen, handler)
	go m.heartbeat(connCtx, conn)
	return nil
}

func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn, gen uint64, handler Handler) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			m.dropped(gen, err)
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			m.logger.Debug("ignoring malformed frame", zap.Int("bytes", len(data)))
			continue
		}
		handler(env)
	}
}

func (m *Manager) heartbeat(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, m.cfg.HeartbeatInterval)
			err := conn.Ping(pctx)
			cancel()
			if err != nil && ctx.Err() == nil {
				m.logger.Warn("heartbeat failed, dropping socket", zap.Error(err))
				_ = conn.CloseNow()
				return
			}
		}
	}
}

// dropped handles the end of connection gen. Only the current connection
// schedules a reconnect; Disconnect and superseded sockets are ignored.
func (m *Manager) dropped(gen uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.connSeq || m.conn == nil {
		return
	}
	m.conn = nil
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.closing {
		return
	}
	m.logger.Warn("realtime connection lost", zap.Error(err))
	m.transitionLocked(status.Reconnecting)
	m.scheduleLocked()
}

func (m *Manager) scheduleLocked() {
	if !m.recon.shouldReconnect() {
		m.logger.Error("giving up reconnecting", zap.Int("attempts", m.recon.attempt))
		m.transitionLocked(status.Disconnected)
		return
	}
	delay := m.recon.nextDelay()
	m.logger.Info("scheduling reconnect", zap.Duration("delay", delay), zap.Int("attempt", m.recon.attempt))
	m.stopTimerLocked()
	m.timer = time.AfterFunc(delay, m.redial)
}

func (m *Manager) redial() {
	m.mu.Lock()
	m.timer = nil
	if m.closing || m.conn != nil || !m.machine.Is(status.Reconnecting) {
		m.mu.Unlock()
		return
	}
	seq := m.beginDialLocked()
	m.mu.Unlock()
	_ = m.dial(context.Background(), seq)
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) transitionLocked(to status.State) {
	if err := m.machine.Transition(to); err != nil {
		m.logger.Debug("connection state", zap.Error(err))
	}
}

// Disconnect closes the socket, forgets every joined scope and cancels
// any pending reconnect.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.closing = true
	m.stopTimerLocked()
	m.joins = nil
	m.dialSeq++
	conn := m.conn
	m.conn = nil
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.transitionLocked(status.Disconnected)
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
}

// JoinScope registers j and sends it now if connected. Registered joins
// are re-sent after every reconnect until LeaveScope or Disconnect.
func (m *Manager) JoinScope(ctx context.Context, j Join) error {
	m.mu.Lock()
	if !slices.Contains(m.joins, j) {
		m.joins = append(m.joins, j)
	}
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		return nil
	}
	return m.writeJoin(ctx, conn, j)
}

// LeaveScope stops replaying j on reconnect.
func (m *Manager) LeaveScope(j Join) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joins = slices.DeleteFunc(m.joins, func(x Join) bool { return x == j })
}

// Joins returns the registered scope joins in registration order.
func (m *Manager) Joins() []Join {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.joins)
}

func (m *Manager) writeJoin(ctx context.Context, conn *websocket.Conn, j Join) error {
	env, err := j.envelope()
	if err != nil {
		return err
	}
	return m.write(ctx, conn, env)
}

// Emit sends an outbound event on the live socket.
func (m *Manager) Emit(ctx context.Context, event string, data any) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	env, err := NewEnvelope(event, data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	return m.write(ctx, conn, env)
}

func (m *Manager) write(ctx context.Context, conn *websocket.Conn, env Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, m.cfg.WriteTimeout)
	defer cancel()
	if err := conn.Write(wctx, websocket.MessageText, b); err != nil {
		return fmt.Errorf("write %s: %w", env.Event, err)
	}
	return nil
}
