package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/GetStream/chatsync/api"
	"github.com/GetStream/chatsync/config"
	"github.com/GetStream/chatsync/memory"
	"github.com/GetStream/chatsync/pebble"
	"github.com/GetStream/chatsync/postgres"
	"github.com/GetStream/chatsync/redis"
	"github.com/GetStream/chatsync/store"
)

// app wires the gateway, the stores and the persistence tiers for one
// command invocation.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	client   *api.Client
	registry *prometheus.Registry
	nav      *navigator

	tiers    store.Tiers
	session  *store.SessionStore
	users    *store.UserStore
	convs    *store.ConversationStore
	messages *store.MessageStore

	closers []io.Closer
}

// keyLister is implemented by tiers that can enumerate their keys.
type keyLister interface {
	Keys(ctx context.Context) ([]string, error)
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, nav *navigator) (*app, error) {
	a := &app{cfg: cfg, logger: logger, nav: nav}
	tiers, err := a.openTiers(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	if err := a.wire(ctx, tiers, nil); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// wire builds the gateway and the stores on top of tiers. httpClient may be
// nil.
func (a *app) wire(ctx context.Context, tiers store.Tiers, httpClient *http.Client) error {
	a.tiers = tiers
	a.registry = prometheus.NewRegistry()

	if httpClient == nil {
		httpClient = &http.Client{Timeout: a.cfg.API.Timeout.Std()}
	}
	a.client = &api.Client{
		BaseURL:       a.cfg.API.BaseURL,
		HTTPClient:    httpClient,
		Logger:        a.logger.With("component", "api"),
		Metrics:       api.NewMetrics(a.registry),
		MaxUploadSize: int64(a.cfg.API.MaxUploadSize),
	}
	if rps := a.cfg.API.RateLimit.RPS; rps > 0 {
		burst := a.cfg.API.RateLimit.Burst
		if burst < 1 {
			burst = 1
		}
		a.client.Limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}

	session, err := store.NewSessionStore(ctx, store.SessionConfig{
		API:       a.client,
		Tiers:     tiers,
		Navigator: a.nav,
		Logger:    a.logger.With("component", "session"),
	})
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	a.session = session
	a.client.Tokens = session
	a.client.OnUnauthorized = session.HandleUnauthorized

	a.users = store.NewUserStore(a.client, a.logger.With("component", "users"))
	a.users.SyncFromSession(session)
	a.convs = store.NewConversationStore(a.client, a.logger.With("component", "conversations"))
	a.messages = store.NewMessageStore(a.client, session, a.logger.With("component", "messages"))
	return nil
}

func (a *app) openTiers(ctx context.Context) (store.Tiers, error) {
	st := a.cfg.Storage
	var tiers store.Tiers

	session := st.Session
	if session == "" {
		session = strconv.Itoa(os.Getppid())
	}
	ephemeralNS := st.Profile + "/session/" + session

	var pdb *pebble.DB
	usePebble := func() (*pebble.DB, error) {
		if pdb != nil {
			return pdb, nil
		}
		db, err := pebble.Open(st.Path, a.logger, nil)
		if err != nil {
			return nil, err
		}
		pdb = db
		a.closers = append(a.closers, db)
		return db, nil
	}
	var rdb *redis.Redis
	useRedis := func() (*redis.Redis, error) {
		if rdb != nil {
			return rdb, nil
		}
		r, err := redis.Connect(ctx, st.Redis.Addr, st.Redis.Password, st.Redis.DB)
		if err != nil {
			return nil, err
		}
		rdb = r
		a.closers = append(a.closers, r)
		return r, nil
	}

	switch st.Durable {
	case "pebble":
		db, err := usePebble()
		if err != nil {
			return tiers, err
		}
		kv, err := db.KV(st.Profile)
		if err != nil {
			return tiers, err
		}
		tiers.Durable = kv
	case "redis":
		r, err := useRedis()
		if err != nil {
			return tiers, err
		}
		tiers.Durable = r.KV(st.Profile+":local", 0)
	case "postgres":
		pg, err := postgres.Connect(ctx, st.Postgres.DSN)
		if err != nil {
			return tiers, err
		}
		a.closers = append(a.closers, pg)
		if err := pg.Migrate(ctx); err != nil {
			return tiers, err
		}
		tiers.Durable = pg.KV(st.Profile)
	case "memory":
		tiers.Durable = memory.New(nil)
	default:
		return tiers, fmt.Errorf("unknown durable storage %q", st.Durable)
	}

	switch st.Ephemeral {
	case "pebble":
		db, err := usePebble()
		if err != nil {
			return tiers, err
		}
		kv, err := db.KV(ephemeralNS)
		if err != nil {
			return tiers, err
		}
		tiers.Ephemeral = kv
	case "memory":
		tiers.Ephemeral = memory.New(nil)
	case "redis":
		r, err := useRedis()
		if err != nil {
			return tiers, err
		}
		tiers.Ephemeral = r.KV(st.Profile+":session:"+session, st.Redis.TTL.Std())
	default:
		return tiers, fmt.Errorf("unknown ephemeral storage %q", st.Ephemeral)
	}

	a.logger.Debug("Opened storage", "durable", st.Durable, "ephemeral", st.Ephemeral, "profile", st.Profile, "session", session)
	return tiers, nil
}

// Close releases the storage backends.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// requireLogin fails when no session is stored.
func (a *app) requireLogin() error {
	if !a.session.CheckAuthStatus() {
		a.nav.Redirect(store.LoginPath)
		return errNotLoggedIn
	}
	return nil
}

var errNotLoggedIn = errors.New("not logged in")
