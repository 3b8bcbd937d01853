package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dropdeck/dropdeck/internal/model"
	"github.com/dropdeck/dropdeck/internal/tui/client"
	"github.com/dropdeck/dropdeck/internal/tui/ui"
	"github.com/spf13/cobra"
)

var markAllFlag bool

func init() {
	notificationsReadCmd.Flags().BoolVar(&markAllFlag, "all", false, "mark every unread notification read")
	notificationsCmd.AddCommand(notificationsReadCmd)
	joinRequestCmd.AddCommand(joinDecisionCommand(model.Accept), joinDecisionCommand(model.Decline))

	rootCmd.AddCommand(notificationsCmd, joinRequestCmd, searchCmd, findCmd, discoverCmd, joinCmd, emojiCmd, inviteCmd)
}

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "List notifications, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			items, err := c.Notifications(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(items)
			}
			for _, n := range items {
				mark := " "
				if !n.Read {
					mark = "*"
				}
				state := ""
				if n.Kind == model.NotificationJoinRequest {
					state = " [" + string(n.Action) + "]"
				}
				fmt.Printf("%s %-12s %s  %s%s\n", mark, n.ID, n.CreatedAt.Local().Format(time.DateTime), oneLine(n.Message), state)
			}
			return nil
		})
	},
}

var notificationsReadCmd = &cobra.Command{
	Use:   "read [notification-id...]",
	Short: "Mark notifications read",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !markAllFlag {
			return fmt.Errorf("give notification ids or --all")
		}
		return withClient(func(ctx context.Context, c *client.Client) error {
			return c.MarkNotificationsRead(ctx, args)
		})
	},
}

var joinRequestCmd = &cobra.Command{
	Use:   "join-request",
	Short: "Answer a request to join one of your groups",
}

func joinDecisionCommand(d model.JoinDecision) *cobra.Command {
	return &cobra.Command{
		Use:   string(d) + " <notification-id>",
		Short: strings.ToUpper(string(d[:1])) + string(d[1:]) + " a join request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *client.Client) error {
				if err := c.ActOnJoinRequest(ctx, args[0], d); err != nil {
					return err
				}
				fmt.Printf("Join request %s\n", d.State())
				return nil
			})
		},
	}
}

var searchCmd = &cobra.Command{
	Use:   "search <query...>",
	Short: "Search messages, files and groups",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			res, err := c.Search(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(res)
			}
			if res.Offline {
				fmt.Println("(offline results from the local cache)")
			}
			for _, m := range res.Messages {
				fmt.Printf("MSG   %-12s %s\n", m.ConversationID, messageLine(m))
			}
			for _, g := range res.Conversations {
				fmt.Printf("GROUP %-12s %s\n", g.ID, g.Name)
			}
			for _, f := range res.Files {
				fmt.Printf("FILE  %-12s %s (%s, %d bytes)\n", f.ID, f.Name, f.MIME, f.Size)
			}
			return nil
		})
	},
}

var findCmd = &cobra.Command{
	Use:   "find <term>",
	Short: "Find a term in the open conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			resp, err := c.Find(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(resp)
			}
			fmt.Printf("%d matching messages\n", len(resp.Matches))
			msgs, err := c.Messages(ctx, "")
			if err != nil {
				return err
			}
			for _, i := range resp.Matches {
				if i >= 0 && i < len(msgs) {
					fmt.Println(messageLine(msgs[i]))
				}
			}
			return nil
		})
	},
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List public groups you have not joined",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			groups, err := c.Discover(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(groups)
			}
			for _, g := range groups {
				fmt.Printf("%-12s %-24s %-10s %s\n", g.ID, g.Name, g.AccessType, oneLine(g.Description))
			}
			return nil
		})
	},
}

var joinCmd = &cobra.Command{
	Use:   "join <group-id>",
	Short: "Join a group, or ask to join one that needs approval",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			joined, err := c.Join(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(map[string]bool{"joined": joined})
			}
			if joined {
				fmt.Println("Joined")
			} else {
				fmt.Println("Join request sent")
			}
			return nil
		})
	},
}

var emojiCmd = &cobra.Command{
	Use:   "emoji [emoji]",
	Short: "List recently used emoji, or record one as used",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			var recent []string
			var err error
			if len(args) == 1 {
				recent, err = c.UseEmoji(ctx, args[0])
			} else {
				recent, err = c.RecentEmoji(ctx)
			}
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(recent)
			}
			fmt.Println(strings.Join(recent, " "))
			return nil
		})
	},
}

var inviteCmd = &cobra.Command{
	Use:   "invite <group-id>",
	Short: "Print an invite link for a group as a QR code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		link := cfg.InviteURL(args[0])
		if jsonOutput {
			return outputJSON(map[string]string{"group_id": args[0], "url": link})
		}
		qr, err := ui.RenderQR(link, "  ")
		if err != nil {
			return err
		}
		fmt.Println(link)
		fmt.Println()
		fmt.Print(qr)
		return nil
	},
}
