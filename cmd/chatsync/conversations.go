package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GetStream/chatsync/api"
)

func newConversationsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "Manage conversations and groups",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List your conversations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				a := c.app
				if err := a.requireLogin(); err != nil {
					return err
				}
				convs, err := a.convs.FetchAll(cmd.Context())
				if err != nil {
					return err
				}
				tw := c.table()
				fmt.Fprintln(tw, "ID\tTYPE\tNAME\tLAST MESSAGE")
				for _, conv := range convs {
					last := ""
					if conv.LastMessage != nil {
						last = conv.LastMessage.Content
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", conv.ID, conv.Type, title(conv, a.session.UserID()), last)
				}
				return tw.Flush()
			},
		},
		&cobra.Command{
			Use:   "show <id>",
			Short: "Show a conversation and its participants",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a := c.app
				if err := a.requireLogin(); err != nil {
					return err
				}
				conv, err := a.convs.FetchOne(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printConversation(c.out, conv, a.session.UserID(), a.cfg.API.PhotoBaseURL)
				return nil
			},
		},
		newCreateConversationCmd(c),
		&cobra.Command{
			Use:   "rename <id> <name>",
			Short: "Rename a group",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				a := c.app
				if err := a.requireLogin(); err != nil {
					return err
				}
				conv, err := a.convs.Rename(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				c.printf("Renamed %s to %s\n", conv.ID, conv.Name)
				return nil
			},
		},
		&cobra.Command{
			Use:   "photo <id> <file>",
			Short: "Set a group photo",
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
				conv, err := a.convs.SetGroupPhoto(cmd.Context(), args[0], photo)
				if err != nil {
					return err
				}
				c.printf("Group photo: %s\n", api.PhotoURL(a.cfg.API.PhotoBaseURL, conv.Photo))
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a conversation",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a := c.app
				if err := a.requireLogin(); err != nil {
					return err
				}
				if err := a.convs.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				c.printf("Deleted %s\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "leave <id>",
			Short: "Leave a group",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a := c.app
				if err := a.requireLogin(); err != nil {
					return err
				}
				if err := a.convs.LeaveGroup(cmd.Context(), args[0]); err != nil {
					return err
				}
				c.printf("Left %s\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "add-members <id> <user-id>...",
			Short: "Add users to a group",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				a := c.app
				if err := a.requireLogin(); err != nil {
					return err
				}
				res, err := a.convs.AddMembers(cmd.Context(), args[0], args[1:])
				if err != nil {
					return err
				}
				if len(res.Succeeded) > 0 {
					c.printf("Added %s\n", strings.Join(res.Succeeded, ", "))
				}
				for _, f := range res.Failed {
					c.printf("Could not add %s: %v\n", f.ID, f.Err)
				}
				return res.Err()
			},
		},
	)
	return cmd
}

func newCreateConversationCmd(c *cli) *cobra.Command {
	var (
		kind string
		name string
	)
	cmd := &cobra.Command{
		Use:   "create <user-id>...",
		Short: "Start a direct chat or a group",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := c.app
			if err := a.requireLogin(); err != nil {
				return err
			}
			conv, err := a.convs.Create(cmd.Context(), api.NewConversation{
				Participants: args,
				Type:         api.ConversationType(kind),
				Name:         name,
			})
			if err != nil {
				return err
			}
			c.printf("Created %s %s\n", conv.Type, conv.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&kind, "type", "t", string(api.DirectConversation), "conversation type: direct or group")
	cmd.Flags().StringVarP(&name, "name", "n", "", "group name")
	return cmd
}

// title names a conversation from the point of view of userID. Direct
// chats are named after the other participant.
func title(conv api.Conversation, userID string) string {
	if conv.IsGroup() || conv.Name != "" {
		return conv.Name
	}
	var names []string
	for _, p := range conv.Participants {
		if p.ID != userID {
			names = append(names, p.Name)
		}
	}
	return strings.Join(names, ", ")
}

func printConversation(w io.Writer, conv api.Conversation, userID, photoBase string) {
	fmt.Fprintf(w, "%s (%s)\n", title(conv, userID), conv.Type)
	if conv.Photo != "" {
		fmt.Fprintf(w, "Photo: %s\n", api.PhotoURL(photoBase, conv.Photo))
	}
	fmt.Fprintln(w, "Participants:")
	for _, p := range conv.Participants {
		fmt.Fprintf(w, "  %s  %s\n", p.ID, p.Name)
	}
}
