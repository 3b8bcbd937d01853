package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dropdeck/dropdeck/internal/api"
	"github.com/dropdeck/dropdeck/internal/model"
	"github.com/dropdeck/dropdeck/internal/tui/client"
	"github.com/spf13/cobra"
)

var (
	sendTo      string
	sendReplyTo string
	uploadMIME  string
	olderFlag   bool
)

func init() {
	for _, c := range []*cobra.Command{sendCmd, pollCmd, uploadCmd} {
		c.Flags().StringVar(&sendTo, "to", "", "conversation id (defaults to the open conversation)")
	}
	sendCmd.Flags().StringVar(&sendReplyTo, "reply-to", "", "message id to reply to")
	uploadCmd.Flags().StringVar(&uploadMIME, "mime", "", "content type (guessed from the extension when omitted)")
	messagesCmd.Flags().BoolVar(&olderFlag, "older", false, "fetch one more page of history first")

	rootCmd.AddCommand(conversationsCmd, openCmd, messagesCmd, sendCmd, pollCmd, uploadCmd,
		readCmd, pinCmd, unpinCmd, typingCmd)
}

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"ls"},
	Short:   "List joined conversations, pinned first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			convs, err := c.Conversations(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return outputJSON(convs)
			}
			if len(convs) == 0 {
				fmt.Println("No conversations.")
				return nil
			}
			for _, cv := range convs {
				fmt.Println(conversationLine(cv))
			}
			return nil
		})
	},
}

func conversationLine(c model.Conversation) string {
	pin := " "
	if c.Pinned {
		pin = "*"
	}
	unread := ""
	if c.UnreadCount > 0 {
		unread = fmt.Sprintf("(%d)", c.UnreadCount)
	}
	preview := ""
	if c.LastMessage != nil {
		preview = c.LastMessage.Preview
		if c.LastMessage.SenderName != "" {
			preview = c.LastMessage.SenderName + ": " + preview
		}
	}
	return fmt.Sprintf("%s %-12s %-24s %-5s %s", pin, c.ID, c.Name, unread, oneLine(preview))
}

var openCmd = &cobra.Command{
	Use:   "open <conversation-id>",
	Short: "Make a conversation active and print its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			msgs, err := c.Open(ctx, args[0])
			if err != nil {
				return err
			}
			return printMessages(msgs)
		})
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages <conversation-id>",
	Short: "Print cached messages of a conversation, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			if olderFlag {
				n, err := c.LoadOlder(ctx, args[0])
				if err != nil {
					return err
				}
				if !jsonOutput {
					fmt.Fprintf(os.Stderr, "loaded %d older messages\n", n)
				}
			}
			msgs, err := c.Messages(ctx, args[0])
			if err != nil {
				return err
			}
			return printMessages(msgs)
		})
	},
}

func printMessages(msgs []model.Message) error {
	if jsonOutput {
		return outputJSON(msgs)
	}
	for _, m := range msgs {
		fmt.Println(messageLine(m))
	}
	return nil
}

func messageLine(m model.Message) string {
	sender := valueOrDefault(m.SenderName, m.SenderID)
	at := m.CreatedAt.Local().Format(time.DateTime)
	state := ""
	if m.Placeholder() || m.Status == model.StatusSending {
		state = " [sending]"
	}
	return fmt.Sprintf("%s  %s: %s%s", at, sender, oneLine(m.Body.Preview()), state)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var sendCmd = &cobra.Command{
	Use:   "send <text...>",
	Short: "Send a text message",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		return withClient(func(ctx context.Context, c *client.Client) error {
			m, err := c.SendText(ctx, api.SendTextRequest{ConversationID: sendTo, Text: text, ReplyTo: sendReplyTo})
			if err != nil {
				return err
			}
			return printQueued(m)
		})
	},
}

var pollCmd = &cobra.Command{
	Use:   "poll <question> <option> <option> [option...]",
	Short: "Send a poll",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			m, err := c.SendPoll(ctx, api.SendPollRequest{ConversationID: sendTo, Question: args[0], Options: args[1:]})
			if err != nil {
				return err
			}
			return printQueued(m)
		})
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <path>",
	Short: "Send a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		name := filepath.Base(args[0])
		mt := uploadMIME
		if mt == "" {
			mt = mime.TypeByExtension(filepath.Ext(name))
		}
		return withClient(func(ctx context.Context, c *client.Client) error {
			m, err := c.Upload(ctx, api.UploadFileRequest{ConversationID: sendTo, Name: name, MIME: mt, Content: content})
			if err != nil {
				return err
			}
			return printQueued(m)
		})
	},
}

func printQueued(m model.Message) error {
	if jsonOutput {
		return outputJSON(m)
	}
	fmt.Printf("Queued %s in %s\n", m.CorrelationID, m.ConversationID)
	return nil
}

var readCmd = &cobra.Command{
	Use:   "read <conversation-id>",
	Short: "Mark a conversation read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			return c.MarkRead(ctx, args[0])
		})
	},
}

func pinCommand(use string, pinned bool) *cobra.Command {
	verb := "Pin"
	if !pinned {
		verb = "Unpin"
	}
	return &cobra.Command{
		Use:   use + " <conversation-id>",
		Short: verb + " a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(func(ctx context.Context, c *client.Client) error {
				return c.SetPinned(ctx, args[0], pinned)
			})
		},
	}
}

var (
	pinCmd   = pinCommand("pin", true)
	unpinCmd = pinCommand("unpin", false)
)

var typingCmd = &cobra.Command{
	Use:   "typing",
	Short: "Signal that you are typing in the open conversation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *client.Client) error {
			return c.Typing(ctx)
		})
	},
}
