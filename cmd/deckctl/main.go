package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dropdeck/dropdeck/internal/config"
	"github.com/dropdeck/dropdeck/internal/session"
	"github.com/dropdeck/dropdeck/internal/tui/client"
	"github.com/spf13/cobra"
	grpcstatus "google.golang.org/grpc/status"
)

var (
	sessionFlag string
	jsonOutput  bool
	timeoutFlag time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "deckctl",
	Short:         "Control a running deckd session",
	Long:          "Command-line interface to the deckd daemon: sign in, read and send messages, manage notifications and groups.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sessionFlag, "session", "", "session name (overrides config default)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 15*time.Second, "request timeout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", errorMessage(err))
		os.Exit(1)
	}
}

// errorMessage strips the RPC framing from daemon errors.
func errorMessage(err error) string {
	if s, ok := grpcstatus.FromError(err); ok {
		return s.Message()
	}
	return err.Error()
}

func sessionName() (string, error) {
	name := session.Resolve(sessionFlag)
	if err := session.ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

func loadConfig() (*config.Config, error) {
	if err := config.LoadEnv(session.EnvPath()); err != nil {
		return nil, err
	}
	cfg, err := config.LoadOrDefault(session.ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, cfg.ApplyEnv(nil)
}

// withClient dials the session's daemon and runs fn with a request
// deadline.
func withClient(fn func(ctx context.Context, c *client.Client) error) error {
	name, err := sessionName()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := client.New(session.SocketPath(name), cfg.MaxMessageBytes())
	if err != nil {
		return fmt.Errorf("cannot connect to daemon for session %q: %w", name, err)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), timeoutFlag)
	defer cancel()
	return fn(ctx, c)
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func valueOrDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
