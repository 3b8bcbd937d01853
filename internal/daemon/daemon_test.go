package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dropdeck/dropdeck/internal/api"
	"github.com/dropdeck/dropdeck/internal/bus"
	"github.com/dropdeck/dropdeck/internal/config"
	"github.com/dropdeck/dropdeck/internal/lock"
	"github.com/dropdeck/dropdeck/internal/status"
	"github.com/dropdeck/dropdeck/internal/tui/client"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

func tempDir(t *testing.T, pattern string) string {
	t.Helper()
	// Use a short path to stay under the Unix socket length limit.
	dir, err := os.MkdirTemp("/tmp", pattern)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func testConfig() *config.Config {
	cfg := config.Default()
	// Nothing listens here; the daemon must still come up.
	cfg.Server.URL = "http://127.0.0.1:1"
	cfg.Server.Timeout = config.Duration{Duration: 200 * time.Millisecond}
	cfg.Prefs.Backend = config.BackendMemory
	return cfg
}

func startApp(t *testing.T, p Params) *fx.App {
	t.Helper()
	app := fx.New(Module(p), fx.NopLogger)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("app.Start() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.Stop(ctx)
	})
	return app
}

// TestFxModuleWiring starts the whole daemon graph and talks to it over its
// socket.
func TestFxModuleWiring(t *testing.T) {
	dir := tempDir(t, "deck-fx-*")
	socket := filepath.Join(dir, "d.sock")
	startApp(t, Params{
		SessionName: "fxtest",
		SocketPath:  socket,
		DataDir:     dir,
		Config:      testConfig(),
		Logger:      zap.NewNop(),
	})

	if _, err := os.Stat(filepath.Join(dir, "deck.db")); err != nil {
		t.Errorf("store not created in data dir: %v", err)
	}
	if h, ok := lock.Held(filepath.Join(dir, "LOCK")); !ok || h.PID != os.Getpid() {
		t.Errorf("lock holder = %+v, %v", h, ok)
	}

	c, err := client.New(socket, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	// Start runs in the background, so poll until it has settled.
	deadline := time.Now().Add(3 * time.Second)
	var st api.StatusResponse
	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		st, err = c.Status(ctx)
		cancel()
		if err == nil && st.Connection == status.AuthRequired {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("status = %+v, %v; want AUTH_REQUIRED", st, err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if st.Session != "fxtest" || st.SignedIn {
		t.Errorf("status = %+v", st)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := c.SendText(ctx, api.SendTextRequest{ConversationID: "1", Text: "hi"}); grpcstatus.Code(err) != codes.Unauthenticated {
		t.Errorf("send while signed out: %v", err)
	}
	emoji, err := c.UseEmoji(ctx, "🎉")
	if err != nil || len(emoji) == 0 || emoji[0] != "🎉" {
		t.Errorf("UseEmoji() = %v, %v", emoji, err)
	}
}

func TestSecondDaemonFailsOnLock(t *testing.T) {
	dir := tempDir(t, "deck-lock-*")
	startApp(t, Params{
		SessionName: "one",
		SocketPath:  filepath.Join(dir, "a.sock"),
		DataDir:     dir,
		Config:      testConfig(),
		Logger:      zap.NewNop(),
	})

	second := fx.New(Module(Params{
		SessionName: "one",
		SocketPath:  filepath.Join(dir, "b.sock"),
		DataDir:     dir,
		Config:      testConfig(),
		Logger:      zap.NewNop(),
	}), fx.NopLogger)
	err := second.Err()
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = second.Start(ctx)
		_ = second.Stop(ctx)
	}
	var held *lock.LockHeldError
	if !errors.As(err, &held) {
		t.Fatalf("second daemon error = %v, want LockHeldError", err)
	}
	if held.Holder.PID != os.Getpid() {
		t.Errorf("holder pid = %d", held.Holder.PID)
	}
}

func TestInvalidConfigRejected(t *testing.T) {
	dir := tempDir(t, "deck-cfg-*")
	cfg := testConfig()
	cfg.Server.URL = ""
	app := fx.New(Module(Params{
		SessionName: "bad",
		SocketPath:  filepath.Join(dir, "d.sock"),
		DataDir:     dir,
		Config:      cfg,
		Logger:      zap.NewNop(),
	}), fx.NopLogger)
	if app.Err() == nil {
		t.Fatal("expected invalid config to fail the graph")
	}
}

// TestServerCreatesSocket builds the server directly, without fx.
func TestServerCreatesSocket(t *testing.T) {
	dir := tempDir(t, "deck-srv-*")
	socket := filepath.Join(dir, "d.sock")
	if err := os.WriteFile(socket, []byte("stale"), 0600); err != nil {
		t.Fatal(err)
	}

	srv, err := NewServer(Params{SessionName: "s", SocketPath: socket}, config.Default(), zap.NewNop(), api.NewService("s", nil, bus.New(), nil))
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	info, err := os.Stat(socket)
	if err != nil {
		t.Fatalf("socket not created at %s: %v", socket, err)
	}
	if info.Mode()&os.ModeSocket == 0 {
		t.Error("stale file was not replaced by a socket")
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("socket perm = %o", perm)
	}
	if srv.SocketPath() != socket {
		t.Errorf("SocketPath() = %q", srv.SocketPath())
	}
	srv.Stop(context.Background())
	if _, err := os.Stat(socket); !os.IsNotExist(err) {
		t.Errorf("socket left behind: %v", err)
	}
}
