package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/GetStream/chatsync/config"
)

const defaultConfigPath = "chatsync.yaml"

// cli holds the state shared by all commands of one invocation.
type cli struct {
	out    io.Writer
	errOut io.Writer

	configPath string
	profile    string
	logLevel   string

	// build creates the app once the configuration is known.
	build func(ctx context.Context, cfg *config.Config, logger *slog.Logger, nav *navigator) (*app, error)

	app *app
}

func newCLI(out, errOut io.Writer) *cli {
	return &cli{out: out, errOut: errOut, build: newApp}
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	return c.app.Close()
}

func (c *cli) setup(cmd *cobra.Command, args []string) error {
	path, required := defaultConfigPath, false
	if cmd.Flags().Changed("config") {
		path, required = c.configPath, true
	}
	cfg, err := config.Load(path, required)
	if err != nil {
		return err
	}
	if c.profile != "" {
		cfg.Storage.Profile = c.profile
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := config.NewLogger(cfg.Logging, c.errOut)
	nav := newNavigator(c.errOut)
	nav.enter(cmd.CommandPath(), args)

	a, err := c.build(cmd.Context(), cfg, logger, nav)
	if err != nil {
		return err
	}
	c.app = a
	return nil
}

func (c *cli) table() *tabwriter.Writer {
	return tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
}

func (c *cli) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:               "chatsync",
		Short:             "Terminal client for the messaging service",
		Version:           fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetOut(c.out)
	root.SetErr(c.errOut)

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", defaultConfigPath, "config file path")
	root.PersistentFlags().StringVarP(&c.profile, "profile", "p", "", "storage profile (overrides the config file)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newLoginCmd(c),
		newLogoutCmd(c),
		newWhoamiCmd(c),
		newStateCmd(c),
		newUsersCmd(c),
		newConversationsCmd(c),
		newMessagesCmd(c),
		newListenCmd(c),
	)
	return root
}
