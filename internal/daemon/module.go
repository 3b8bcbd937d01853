package daemon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dropdeck/dropdeck/internal/api"
	"github.com/dropdeck/dropdeck/internal/auth"
	"github.com/dropdeck/dropdeck/internal/bus"
	"github.com/dropdeck/dropdeck/internal/config"
	"github.com/dropdeck/dropdeck/internal/deck"
	"github.com/dropdeck/dropdeck/internal/lock"
	"github.com/dropdeck/dropdeck/internal/logging"
	"github.com/dropdeck/dropdeck/internal/prefs"
	"github.com/dropdeck/dropdeck/internal/prefs/redisprefs"
	"github.com/dropdeck/dropdeck/internal/realtime"
	"github.com/dropdeck/dropdeck/internal/rest"
	"github.com/dropdeck/dropdeck/internal/session"
	"github.com/dropdeck/dropdeck/internal/status"
	"github.com/dropdeck/dropdeck/internal/store"
	"github.com/dropdeck/dropdeck/internal/typing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string // optional override for testing; empty = use default
	DataDir     string // optional override for the session directory
	// Config skips loading config.toml and the environment when set.
	Config *config.Config
	// Logger skips creating the session log file when set.
	Logger *zap.Logger
}

func (p Params) dir() string {
	if p.DataDir != "" {
		return p.DataDir
	}
	return session.Dir(p.SessionName)
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			providePrefs,
			provideAuth,
			provideRESTClient,
			provideRealtime,
			provideDeck,
			provideService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, p.Config.Validate()
	}
	if err := config.LoadEnv(session.EnvPath(), ".env"); err != nil {
		return nil, err
	}
	cfg, err := config.LoadOrDefault(session.ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ApplyEnv(nil); err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	if p.Logger != nil {
		return p.Logger, nil
	}
	return logging.New(session.LogPath(p.SessionName), p.SessionName, cfg.Log.Level)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if p.DataDir == "" {
		if err := session.EnsureDir(p.SessionName); err != nil {
			return nil, err
		}
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(filepath.Join(p.dir(), "LOCK"))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideStore takes the lock so the database is never opened by a second
// daemon.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := filepath.Join(p.dir(), "deck.db")
	db, result, err := store.OpenMigrated(dbPath)
	if err != nil {
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("from", result.From), zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func providePrefs(lc fx.Lifecycle, cfg *config.Config, db *store.DB, logger *zap.Logger) (*prefs.Preferences, error) {
	switch cfg.Prefs.Backend {
	case config.BackendRedis:
		rs, err := redisprefs.New(context.Background(), cfg.Prefs.RedisURL, cfg.Prefs.RedisKey)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.StopHook(rs.Close))
		logger.Info("preferences in redis", zap.String("key", cfg.Prefs.RedisKey))
		return prefs.New(rs), nil
	case config.BackendMemory:
		logger.Warn("preferences kept in memory, sign-in will not survive a restart")
		return prefs.New(prefs.NewMemory()), nil
	default:
		return prefs.New(db), nil
	}
}

func provideAuth(p *prefs.Preferences, logger *zap.Logger) *auth.Authenticator {
	return auth.New(p, nil, logger.Named("auth"),
		auth.WithUnauthorizedMatcher(func(err error) bool { return errors.Is(err, rest.ErrUnauthorized) }))
}

func provideRESTClient(cfg *config.Config, a *auth.Authenticator) *rest.Client {
	c := rest.NewClient(cfg.Server.URL,
		rest.WithTimeout(cfg.Server.Timeout.Duration),
		rest.WithTokenSource(a.Token))
	a.SetVerifier(c)
	return c
}

func provideRealtime(cfg *config.Config, a *auth.Authenticator, m *status.Machine, logger *zap.Logger) *realtime.Manager {
	return realtime.NewManager(realtime.Config{
		URL:               cfg.WebSocketURL(),
		BaseDelay:         cfg.Realtime.BaseDelay.Duration,
		MaxDelay:          cfg.Realtime.MaxDelay.Duration,
		MaxAttempts:       cfg.Realtime.MaxAttempts,
		HeartbeatInterval: cfg.Realtime.HeartbeatInterval.Duration,
	}, a.Token, m, logger.Named("realtime"))
}

func provideDeck(cfg *config.Config, c *rest.Client, rt *realtime.Manager, a *auth.Authenticator, p *prefs.Preferences, db *store.DB, m *status.Machine, b *bus.Bus, logger *zap.Logger) *deck.Deck {
	return deck.New(deck.Deps{
		API:     c,
		Conn:    rt,
		Auth:    a,
		Prefs:   p,
		Cache:   db,
		Machine: m,
		Bus:     b,
		Logger:  logger.Named("deck"),
	}, deck.Config{
		PageSize:       cfg.Sync.PageSize,
		SearchLimit:    cfg.Sync.SearchLimit,
		MarkReadOnOpen: cfg.Sync.MarkReadOnOpen,
		MaxUploadBytes: cfg.Uploads.MaxBytes,
		Typing: typing.Options{
			Debounce: cfg.Typing.Debounce.Duration,
			Expiry:   cfg.Typing.Expiry.Duration,
		},
	})
}

func provideService(p Params, d *deck.Deck, b *bus.Bus, logger *zap.Logger) *api.Service {
	return api.NewService(p.SessionName, d, b, logger.Named("api"))
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, db *store.DB, d *deck.Deck, logger *zap.Logger) {
	startCtx, cancelStart := context.WithCancel(context.Background())
	started := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			// The first sync talks to the backend, so it must not hold up startup.
			go func() {
				defer close(started)
				if err := d.Start(startCtx); err != nil {
					logger.Error("deck start failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			cancelStart()
			select {
			case <-started:
			case <-ctx.Done():
			}
			d.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
