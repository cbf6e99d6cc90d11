package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/GetStream/chatsync/api"
)

// SessionAPI is the part of the API the session store needs.
type SessionAPI interface {
	Login(ctx context.Context, name string) (api.LoginResponse, error)
	SetAuthorization(token string)
	ClearAuthorization()
}

// SessionConfig holds the collaborators of a SessionStore. Navigator may be
// nil, in which case expired sessions are cleared without redirecting.
type SessionConfig struct {
	API       SessionAPI
	Tiers     Tiers
	Navigator Navigator
	Logger    *slog.Logger
}

// SessionStore owns the authentication token and the identity of the logged
// in user. The token is the user's id. It implements api.TokenSource.
type SessionStore struct {
	api    SessionAPI
	tiers  Tiers
	nav    Navigator
	logger *slog.Logger

	mu      sync.Mutex
	token   string
	user    *api.User
	tier    Tier
	loading bool
}

// NewSessionStore creates a SessionStore and restores any session persisted
// by an earlier run.
func NewSessionStore(ctx context.Context, cfg SessionConfig) (*SessionStore, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &SessionStore{
		api:    cfg.API,
		tiers:  cfg.Tiers,
		nav:    cfg.Navigator,
		logger: cfg.Logger,
	}
	if err := s.Restore(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Restore reloads the session from the tier recorded in the durable tier
// preference. Without a preference the ephemeral tier is read.
func (s *SessionStore) Restore(ctx context.Context) error {
	pref, _, err := s.tiers.Durable.Get(ctx, keyTier)
	if err != nil {
		return fmt.Errorf("read tier preference: %w", err)
	}
	tier := ParseTier(pref)
	kv := s.tiers.kv(tier)

	token, _, err := kv.Get(ctx, keyToken)
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}

	var user *api.User
	raw, ok, err := kv.Get(ctx, keyUser)
	if err != nil {
		return fmt.Errorf("read user: %w", err)
	}
	if ok && raw != "" {
		user = &api.User{}
		if err := json.Unmarshal([]byte(raw), user); err != nil {
			s.logger.Warn("Discarding unreadable persisted user", "error", err.Error())
			user = nil
		}
	}

	s.mu.Lock()
	s.token = token
	s.user = user
	s.tier = tier
	s.mu.Unlock()

	if token != "" {
		s.api.SetAuthorization(token)
		s.logger.Debug("Session restored", "tier", tier.String())
	}
	return nil
}

func (s *SessionStore) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

// Login signs in as username, creating the account if needed. With
// rememberMe the session is persisted in the durable tier, otherwise in the
// ephemeral tier. Any failure clears partial state and is returned as an
// *api.AuthError.
func (s *SessionStore) Login(ctx context.Context, username string, rememberMe bool) (api.User, error) {
	s.setLoading(true)
	defer s.setLoading(false)

	res, err := s.api.Login(ctx, username)
	if err != nil {
		s.logger.Error("Could not log in", "username", username, "error", err.Error())
		s.discard(ctx)
		return api.User{}, authError("Could not log in", err)
	}

	user := api.User{ID: res.ID, Name: username}
	token := res.ID

	s.api.SetAuthorization(token)

	tier := TierEphemeral
	if rememberMe {
		tier = TierDurable
	}
	if err := s.SetAuthToken(ctx, token, tier); err != nil {
		s.logger.Error("Could not persist token", "error", err.Error())
		s.discard(ctx)
		return api.User{}, authError("Could not persist session", err)
	}
	if err := s.SetUser(ctx, &user, tier); err != nil {
		s.logger.Error("Could not persist user", "error", err.Error())
		s.discard(ctx)
		return api.User{}, authError("Could not persist session", err)
	}

	s.logger.Info("Logged in", "user_id", user.ID, "tier", tier.String())
	return user, nil
}

func authError(msg string, err error) error {
	var authErr *api.AuthError
	if errors.As(err, &authErr) {
		return err
	}
	return &api.AuthError{Status: api.StatusOf(err), Message: msg, Err: err}
}

// discard drops all credentials. Storage failures are logged only.
func (s *SessionStore) discard(ctx context.Context) {
	s.api.ClearAuthorization()
	if err := s.SetAuthToken(ctx, "", TierEphemeral); err != nil {
		s.logger.Error("Could not remove token", "error", err.Error())
	}
	if err := s.SetUser(ctx, nil, TierEphemeral); err != nil {
		s.logger.Error("Could not remove user", "error", err.Error())
	}
}

// Logout clears the credential and the persisted session from both tiers.
// It is safe to call when nothing is stored.
func (s *SessionStore) Logout(ctx context.Context) error {
	s.api.ClearAuthorization()
	return errors.Join(
		s.SetAuthToken(ctx, "", TierEphemeral),
		s.SetUser(ctx, nil, TierEphemeral),
	)
}

// SetAuthToken sets the token and persists it in tier, recording the tier
// preference durably. An empty token removes the token from both tiers.
func (s *SessionStore) SetAuthToken(ctx context.Context, token string, tier Tier) error {
	s.mu.Lock()
	s.token = token
	if token != "" {
		s.tier = tier
	}
	s.mu.Unlock()

	if token == "" {
		return s.tiers.deleteAll(ctx, keyToken)
	}

	if err := s.tiers.Durable.Set(ctx, keyTier, tier.String()); err != nil {
		return fmt.Errorf("store tier preference: %w", err)
	}
	if err := s.tiers.kv(tier).Set(ctx, keyToken, token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	// Only the preferred tier may hold a token.
	if err := s.tiers.other(tier).Delete(ctx, keyToken); err != nil {
		return fmt.Errorf("delete stale token: %w", err)
	}
	return nil
}

// SetUser sets the user and persists it in tier. A nil user removes the user
// from both tiers.
func (s *SessionStore) SetUser(ctx context.Context, user *api.User, tier Tier) error {
	var cp *api.User
	if user != nil {
		u := *user
		cp = &u
	}
	s.mu.Lock()
	s.user = cp
	s.mu.Unlock()

	if cp == nil {
		return s.tiers.deleteAll(ctx, keyUser)
	}

	b, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	if err := s.tiers.kv(tier).Set(ctx, keyUser, string(b)); err != nil {
		return fmt.Errorf("store user: %w", err)
	}
	if err := s.tiers.other(tier).Delete(ctx, keyUser); err != nil {
		return fmt.Errorf("delete stale user: %w", err)
	}
	return nil
}

// HandleUnauthorized invalidates the session after the server rejected the
// credential and sends the consumer to the login path. The current path is
// kept as the post-login target unless it is the root or a login path.
// Nothing is redirected when the consumer is already on a login path.
func (s *SessionStore) HandleUnauthorized(ctx context.Context) {
	s.api.ClearAuthorization()

	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.mu.Unlock()

	if err := errors.Join(s.tiers.deleteAll(ctx, keyToken), s.tiers.deleteAll(ctx, keyUser)); err != nil {
		s.logger.Error("Could not clear expired session", "error", err.Error())
	}

	if s.nav == nil {
		return
	}
	path := s.nav.CurrentPath()
	if strings.Contains(path, LoginPath) {
		return
	}
	if path != "" && path != "/" {
		if err := s.tiers.Ephemeral.Set(ctx, keyRedirect, path); err != nil {
			s.logger.Error("Could not save redirect target", "path", path, "error", err.Error())
		}
	}
	s.logger.Warn("Session expired, redirecting to login", "from", path)
	s.nav.Redirect(LoginPath)
}

// TakeRedirect returns the path saved by HandleUnauthorized and forgets it.
// It returns "" when there is none.
func (s *SessionStore) TakeRedirect(ctx context.Context) (string, error) {
	path, ok, err := s.tiers.Ephemeral.Get(ctx, keyRedirect)
	if err != nil {
		return "", fmt.Errorf("read redirect target: %w", err)
	}
	if !ok {
		return "", nil
	}
	if err := s.tiers.Ephemeral.Delete(ctx, keyRedirect); err != nil {
		return "", fmt.Errorf("delete redirect target: %w", err)
	}
	return path, nil
}

// Token returns the current token, or "" when logged out.
func (s *SessionStore) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// User returns a copy of the logged in user, or nil.
func (s *SessionStore) User() *api.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// UserID returns the current user's id. The token is used when no user is
// stored, since the two are the same.
func (s *SessionStore) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user != nil && s.user.ID != "" {
		return s.user.ID
	}
	return s.token
}

// Name returns the current user's name, or "".
func (s *SessionStore) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return ""
	}
	return s.user.Name
}

// IsAuthenticated reports whether a token is present.
func (s *SessionStore) IsAuthenticated() bool {
	return s.Token() != ""
}

// CheckAuthStatus is IsAuthenticated under the name consumers use for route
// guards.
func (s *SessionStore) CheckAuthStatus() bool {
	return s.IsAuthenticated()
}

// Tier returns the tier the current session is persisted in.
func (s *SessionStore) Tier() Tier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tier
}

// IsLoading reports whether a login is in flight.
func (s *SessionStore) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}
