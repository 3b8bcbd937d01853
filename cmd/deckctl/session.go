package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dropdeck/dropdeck/internal/api"
	"github.com/dropdeck/dropdeck/internal/lock"
	"github.com/dropdeck/dropdeck/internal/session"
	"github.com/dropdeck/dropdeck/internal/tui/client"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	signinEmail    string
	signinPassword string
	signinCaptcha  string

	outboxStatus string
	outboxLimit  int
)

func init() {
	signinCmd.Flags().StringVar(&signinEmail, "email", "", "account email")
	signinCmd.Flags().StringVar(&signinPassword, "password", "", "account password (prompted when omitted)")
	signinCmd.Flags().StringVar(&signinCaptcha, "captcha", "", "captcha token, if the server asks for one")

	outboxCmd.Flags().StringVar(&outboxStatus, "status", "", "filter by status (queued, sent, failed)")
	outboxCmd.Flags().IntVar(&outboxLimit, "limit", 50, "maximum entries")

	rootCmd.AddCommand(statusCmd, signinCmd, signoutCmd, sessionsCmd, outboxCmd, watchCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := sessionName()
		if err != nil {
			return err
		}
		holder, running := lock.Held(session.LockPath(name))
		if !running {
			if jsonOutput {
				return outputJSON(map[string]any{"session": name, "daemon_running": false})
			}
			fmt.Printf("Session: %s\n", name)
			fmt.Println("Daemon:  not running")
			return nil
		}
		return withClient(func(ctx context.Context, c *client.Client) error {
			st, err := c.Status(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(st)
			}
			fmt.Printf("Session:       %s\n", st.Session)
			fmt.Printf("Daemon:        running (PID %d since %s)\n", holder.PID, holder.Since.Format(time.RFC3339))
			fmt.Printf("Connection:    %s\n", st.Connection)
			if st.SignedIn {
				fmt.Printf("User:          %s (%s)\n", st.Username, st.UserID)
			} else {
				fmt.Println("User:          (signed out)")
			}
			fmt.Printf("Active:        %s\n", valueOrDefault(st.Active, "-"))
			fmt.Printf("Conversations: %d\n", st.Conversations)
			fmt.Printf("Notifications: %d\n", st.Notifications)
			fmt.Printf("Pending sends: %d\n", st.Pending)
			fmt.Printf("Uptime:        %s\n", st.Uptime)
			return nil
		})
	},
}

var signinCmd = &cobra.Command{
	Use:   "signin",
	Short: "Sign in to the chat server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, password := signinEmail, signinPassword
		if email == "" {
			fmt.Print("Email: ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil {
				return fmt.Errorf("read email: %w", err)
			}
			email = strings.TrimSpace(line)
		}
		if password == "" {
			fmt.Print("Password: ")
			b, err := term.ReadPassword(int(syscall.Stdin))
			fmt.Println()
			if err != nil {
				return fmt.Errorf("read password: %w", err)
			}
			password = string(b)
		}
		return withClient(func(ctx context.Context, c *client.Client) error {
			resp, err := c.SignIn(ctx, api.SignInRequest{Email: email, Password: password, CaptchaToken: signinCaptcha})
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(resp)
			}
			fmt.Printf("Signed in as %s (%s)\n", resp.Username, resp.UserID)
			return nil
		})
	},
}

var signoutCmd = &cobra.Command{
	Use:     "signout",
	Aliases: []string{"logout"},
	Short:   "Sign out and forget the stored credential",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			if err := c.SignOut(ctx); err != nil {
				return err
			}
			fmt.Println("Signed out")
			return nil
		})
	},
}

type sessionInfo struct {
	Name          string `json:"name"`
	Path          string `json:"path"`
	DaemonRunning bool   `json:"daemon_running"`
	PID           int    `json:"pid,omitempty"`
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List known sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := os.ReadDir(filepath.Join(session.BaseDir(), "sessions"))
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		var out []sessionInfo
		for _, e := range entries {
			if !e.IsDir() || session.ValidateName(e.Name()) != nil {
				continue
			}
			info := sessionInfo{Name: e.Name(), Path: session.Dir(e.Name())}
			if h, ok := lock.Held(session.LockPath(e.Name())); ok {
				info.DaemonRunning = true
				info.PID = h.PID
			}
			out = append(out, info)
		}
		if jsonOutput {
			return outputJSON(out)
		}
		if len(out) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}
		for _, s := range out {
			running := "stopped"
			if s.DaemonRunning {
				running = fmt.Sprintf("running, PID %d", s.PID)
			}
			fmt.Printf("%-20s %s (%s)\n", s.Name, s.Path, running)
		}
		return nil
	},
}

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Show the journal of pending and recent sends",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			entries, err := c.Outbox(ctx, outboxStatus, outboxLimit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(entries)
			}
			for _, e := range entries {
				line := fmt.Sprintf("%s  %-7s %-5s %-12s %s", e.CreatedAt.Local().Format("2006-01-02 15:04"), e.Status, e.Kind, e.ConversationID, e.Summary)
				if e.ErrorMessage != "" {
					line += "  (" + e.ErrorMessage + ")"
				}
				fmt.Println(line)
			}
			return nil
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [namespace...]",
	Short: "Stream daemon events until interrupted",
	Long:  "Stream daemon events. Namespaces such as \"state\" or \"message\" limit the stream to kinds with that prefix.",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := sessionName()
		if err != nil {
			return err
		}
		c, err := client.New(session.SocketPath(name), 0)
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		ctx, stop := signalContext()
		defer stop()
		events, errc, err := c.Watch(ctx, args...)
		if err != nil {
			return err
		}
		for evt := range events {
			if jsonOutput {
				if err := outputJSON(evt); err != nil {
					return err
				}
				continue
			}
			fmt.Printf("%s  %-26s %s\n", evt.OccurredAt.Local().Format("15:04:05.000"), evt.Kind, string(evt.Payload))
		}
		return <-errc
	},
}
