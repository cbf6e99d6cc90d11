package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/GetStream/chatsync/api"
)

func newMessagesCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "messages",
		Aliases: []string{"msg"},
		Short:   "Read and write messages",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list <conversation-id>",
			Short: "Show the messages of a conversation",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a := c.app
				if err := a.requireLogin(); err != nil {
					return err
				}
				msgs, err := a.messages.FetchForConversation(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				for _, m := range msgs {
					printMessage(c.out, m, a.cfg.API.PhotoBaseURL)
				}
				return nil
			},
		},
		newSendCmd(c),
		newSendPhotoCmd(c),
		c.messageCmd("edit <conversation-id> <message-id> <text>", "Edit a message", 3,
			func(cmd *cobra.Command, args []string) error {
				if err := c.app.messages.Update(cmd.Context(), args[1], args[2]); err != nil {
					return err
				}
				c.printf("Edited %s\n", args[1])
				return nil
			}),
		c.messageCmd("delete <conversation-id> <message-id>", "Delete a message", 2,
			func(cmd *cobra.Command, args []string) error {
				if err := c.app.messages.Delete(cmd.Context(), args[1]); err != nil {
					return err
				}
				c.printf("Deleted %s\n", args[1])
				return nil
			}),
		c.messageCmd("react <conversation-id> <message-id> <emoji>", "React to a message", 3,
			func(cmd *cobra.Command, args []string) error {
				if err := c.app.messages.AddReaction(cmd.Context(), args[1], api.Reaction{Emoji: args[2]}); err != nil {
					return err
				}
				c.printf("Reacted %s to %s\n", args[2], args[1])
				return nil
			}),
		c.messageCmd("unreact <conversation-id> <message-id> <emoji>", "Withdraw a reaction", 3,
			func(cmd *cobra.Command, args []string) error {
				if err := c.app.messages.RemoveReaction(cmd.Context(), args[1], args[2]); err != nil {
					return err
				}
				c.printf("Removed %s from %s\n", args[2], args[1])
				return nil
			}),
		c.messageCmd("forward <conversation-id> <message-id> <target-conversation-id>", "Forward a message", 3,
			func(cmd *cobra.Command, args []string) error {
				msg, err := c.app.messages.Forward(cmd.Context(), args[1], args[2])
				if err != nil {
					return err
				}
				if msg == nil {
					c.printf("Forwarded %s to %s\n", args[1], args[2])
					return nil
				}
				c.printf("Forwarded %s to %s as %s\n", args[1], args[2], msg.ID)
				return nil
			}),
	)
	return cmd
}

// messageCmd builds a command acting on one message. The conversation named
// by the first argument is loaded before run is called.
func (c *cli) messageCmd(use, short string, n int, run func(cmd *cobra.Command, args []string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(n),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := c.app
			if err := a.requireLogin(); err != nil {
				return err
			}
			if _, err := a.messages.FetchForConversation(cmd.Context(), args[0]); err != nil {
				return err
			}
			return run(cmd, args)
		},
	}
}

func newSendCmd(c *cli) *cobra.Command {
	var replyTo string
	cmd := &cobra.Command{
		Use:   "send <conversation-id> <text>...",
		Short: "Send a text message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := c.app
			if err := a.requireLogin(); err != nil {
				return err
			}
			msg, err := a.messages.SendText(cmd.Context(), api.NewMessage{
				ConversationID: args[0],
				Content:        strings.Join(args[1:], " "),
				ReplyTo:        replyTo,
			})
			if err != nil {
				return err
			}
			c.printf("Sent %s\n", msg.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&replyTo, "reply-to", "", "id of the message to reply to")
	return cmd
}

func newSendPhotoCmd(c *cli) *cobra.Command {
	var replyTo string
	cmd := &cobra.Command{
		Use:   "photo <conversation-id> <file>",
		Short: "Send a photo",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := c.app
			if err := a.requireLogin(); err != nil {
				return err
			}
			photo, closeFn, err := openPhoto(args[1])
			if err != nil {
				return err
			}
			defer closeFn()
			msg, err := a.messages.SendPhoto(cmd.Context(), args[0], photo, replyTo)
			if err != nil {
				return err
			}
			c.printf("Sent %s\n", msg.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&replyTo, "reply-to", "", "id of the message to reply to")
	return cmd
}

func printMessage(w io.Writer, m api.Message, photoBase string) {
	author := m.AuthorName
	if author == "" {
		author = m.AuthorID
	}
	content := m.Content
	if m.Type == api.PhotoMessage {
		content = "[photo] " + api.PhotoURL(photoBase, m.Content)
	}
	fmt.Fprintf(w, "%s  %s  %s: %s", m.ID, humanize.Time(m.CreatedAt), author, content)
	if m.ReplyTo != "" {
		fmt.Fprintf(w, "  (reply to %s)", m.ReplyTo)
	}
	if len(m.Reactions) > 0 {
		emojis := make([]string, len(m.Reactions))
		for i, r := range m.Reactions {
			emojis[i] = r.Emoji
		}
		fmt.Fprintf(w, "  [%s]", strings.Join(emojis, " "))
	}
	fmt.Fprintln(w)
}
