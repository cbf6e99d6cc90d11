package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/GetStream/chatsync/api"
)

func newUsersCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Browse users and edit your profile",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List all users",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				a := c.app
				if err := a.requireLogin(); err != nil {
					return err
				}
				users, err := a.users.FetchUsers(cmd.Context())
				if err != nil {
					return err
				}
				tw := c.table()
				fmt.Fprintln(tw, "ID\tNAME\tSTATUS")
				for _, u := range users {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", u.ID, u.Name, u.Status)
				}
				return tw.Flush()
			},
		},
		&cobra.Command{
			Use:   "rename <name>",
			Short: "Change your display name",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a := c.app
				if err := a.requireLogin(); err != nil {
					return err
				}
				if _, err := a.users.FetchCurrentUser(cmd.Context()); err != nil {
					return err
				}
				name, err := a.users.UpdateUsername(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				c.printf("Renamed to %s\n", name)
				return nil
			},
		},
		&cobra.Command{
			Use:   "photo <file>",
			Short: "Upload a new profile photo",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a := c.app
				if err := a.requireLogin(); err != nil {
					return err
				}
				photo, closeFn, err := openPhoto(args[0])
				if err != nil {
					return err
				}
				defer closeFn()

				if _, err := a.users.FetchCurrentUser(cmd.Context()); err != nil {
					return err
				}
				path, err := a.users.UploadProfilePhoto(cmd.Context(), photo)
				if err != nil {
					return err
				}
				c.printf("Profile photo: %s\n", api.PhotoURL(a.cfg.API.PhotoBaseURL, path))
				return nil
			},
		},
	)
	return cmd
}

// openPhoto opens an image file for upload. The caller must call the
// returned func once the upload is done.
func openPhoto(path string) (api.Photo, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return api.Photo{}, nil, fmt.Errorf("open photo: %w", err)
	}
	return api.Photo{Name: filepath.Base(path), Content: f}, func() { f.Close() }, nil
}
