package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/GetStream/chatsync/api"
	"github.com/GetStream/chatsync/store"
)

func newLoginCmd(c *cli) *cobra.Command {
	var remember bool
	cmd := &cobra.Command{
		Use:   "login [username]",
		Short: "Log in, creating the account if needed",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := c.app
			var name string
			if len(args) == 1 {
				name = args[0]
			} else {
				var err error
				if name, err = promptUsername(cmd.InOrStdin(), c.out); err != nil {
					return err
				}
			}

			user, err := a.session.Login(cmd.Context(), name, remember)
			if err != nil {
				return err
			}
			a.users.SyncFromSession(a.session)
			c.printf("Logged in as %s (%s), session kept in %s storage\n", user.Name, user.ID, a.session.Tier())

			target, err := a.session.TakeRedirect(cmd.Context())
			if err != nil {
				return err
			}
			if target != "" {
				c.printf("Continue with: %s\n", command(target))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&remember, "remember", "r", false, "keep the session in durable storage")
	return cmd
}

// promptUsername reads a username when stdin is a terminal.
func promptUsername(in io.Reader, out io.Writer) (string, error) {
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return "", errors.New("username required")
	}
	fmt.Fprint(out, "Username: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read username: %w", err)
	}
	name := strings.TrimSpace(line)
	if name == "" {
		return "", errors.New("username required")
	}
	return name, nil
}

func newLogoutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.session.Logout(cmd.Context()); err != nil {
				return err
			}
			c.app.users.ClearUser()
			c.printf("Logged out\n")
			return nil
		},
	}
}

func newWhoamiCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := c.app
			if err := a.requireLogin(); err != nil {
				return err
			}
			if _, err := a.users.FetchCurrentUser(cmd.Context()); err != nil {
				return err
			}
			tw := c.table()
			fmt.Fprintf(tw, "ID\t%s\n", a.session.UserID())
			fmt.Fprintf(tw, "Name\t%s\n", a.users.DisplayName())
			if photo := a.users.ProfilePhoto(); photo != "" {
				fmt.Fprintf(tw, "Photo\t%s\n", api.PhotoURL(a.cfg.API.PhotoBaseURL, photo))
			}
			fmt.Fprintf(tw, "Storage\t%s\n", a.session.Tier())
			return tw.Flush()
		},
	}
}

func newStateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "List the keys held in the persistence tiers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := c.app
			tw := c.table()
			fmt.Fprintln(tw, "TIER\tKEY")
			for _, t := range []struct {
				tier store.Tier
				kv   store.KV
			}{
				{store.TierDurable, a.tiers.Durable},
				{store.TierEphemeral, a.tiers.Ephemeral},
			} {
				lister, ok := t.kv.(keyLister)
				if !ok {
					fmt.Fprintf(tw, "%s\t(not listable)\n", t.tier)
					continue
				}
				keys, err := lister.Keys(cmd.Context())
				if err != nil {
					return fmt.Errorf("list %s keys: %w", t.tier, err)
				}
				for _, k := range keys {
					fmt.Fprintf(tw, "%s\t%s\n", t.tier, k)
				}
			}
			return tw.Flush()
		},
	}
}
