package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/GetStream/chatsync/api"
	"github.com/GetStream/chatsync/realtime"
)

func newListenCmd(c *cli) *cobra.Command {
	var conversationID string
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Print incoming messages until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := c.app
			if err := a.requireLogin(); err != nil {
				return err
			}
			ctx := cmd.Context()

			if conversationID != "" {
				if _, err := a.messages.FetchForConversation(ctx, conversationID); err != nil {
					return err
				}
			}
			if addr := a.cfg.Metrics.Addr; addr != "" {
				stop := a.serveMetrics(addr)
				defer stop()
			}

			url := a.cfg.API.EventsURL
			if url == "" {
				url = eventsURL(a.cfg.API.BaseURL)
			}
			l := &realtime.Listener{
				URL:           url,
				Tokens:        a.session,
				Logger:        a.logger.With("component", "realtime"),
				Messages:      a.messages,
				Conversations: &printingSink{c: c, conversationID: conversationID, next: a.convs},
			}
			err := l.Run(ctx)
			var authErr *api.AuthError
			if errors.As(err, &authErr) {
				a.session.HandleUnauthorized(ctx)
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&conversationID, "conversation", "C", "", "only print messages of this conversation")
	return cmd
}

// printingSink prints delivered messages, optionally only those of one
// conversation, and forwards every message to the conversation store.
type printingSink struct {
	c              *cli
	conversationID string
	next           realtime.ConversationSink
}

func (p *printingSink) AddMessageToConversation(id string, msg api.Message) {
	p.next.AddMessageToConversation(id, msg)
	if p.conversationID == "" || p.conversationID == id {
		printMessage(p.c.out, msg, p.c.app.cfg.API.PhotoBaseURL)
	}
}

// eventsURL derives the websocket endpoint from the REST base URL.
func eventsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return strings.TrimSuffix(base, "/") + "/events"
}

// serveMetrics exposes the gateway metrics on addr. The returned func shuts
// the server down.
func (a *app) serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		a.logger.Info("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Could not serve metrics", "error", err.Error())
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			a.logger.Error("Could not stop metrics server", "error", err.Error())
		}
	}
}
