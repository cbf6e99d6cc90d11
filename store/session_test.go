package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/neilotoole/slogt"

	"github.com/GetStream/chatsync/api"
	"github.com/GetStream/chatsync/memory"
)

func TestSessionStore_Login(t *testing.T) {
	tests := []struct {
		name          string
		rememberMe    bool
		wantTier      Tier
		wantDurable   map[string]string
		wantEphemeral map[string]string
	}{
		{
			name:       "RememberMe",
			rememberMe: true,
			wantTier:   TierDurable,
			wantDurable: map[string]string{
				"auth_storage_type": "local",
				"user_token":        "u1",
				"user_data":         `{"id":"u1","name":"alice"}`,
			},
			wantEphemeral: map[string]string{},
		},
		{
			name:     "Ephemeral",
			wantTier: TierEphemeral,
			wantDurable: map[string]string{
				"auth_storage_type": "session",
			},
			wantEphemeral: map[string]string{
				"user_token": "u1",
				"user_data":  `{"id":"u1","name":"alice"}`,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			sapi := &testSessionAPI{
				T: t,
				login: func(t *testing.T, name string) (api.LoginResponse, error) {
					if name != "alice" {
						t.Errorf("Got name %q, want %q", name, "alice")
					}
					return api.LoginResponse{ID: "u1"}, nil
				},
			}
			s, durable, ephemeral := newTestSession(t, sapi, nil)

			user, err := s.Login(ctx, "alice", tt.rememberMe)
			if err != nil {
				t.Fatalf("Login: %v", err)
			}
			if diff := cmp.Diff(api.User{ID: "u1", Name: "alice"}, user); diff != "" {
				t.Errorf("User mismatch (-want +got):\n%s", diff)
			}
			if !s.IsAuthenticated() {
				t.Error("Got IsAuthenticated false, want true")
			}
			if got := s.Token(); got != "u1" {
				t.Errorf("Got token %q, want %q", got, "u1")
			}
			if got := s.Tier(); got != tt.wantTier {
				t.Errorf("Got tier %v, want %v", got, tt.wantTier)
			}
			if got := sapi.auth; got != "u1" {
				t.Errorf("Got gateway credential %q, want %q", got, "u1")
			}
			if s.IsLoading() {
				t.Error("Got IsLoading true after Login returned")
			}
			checkKV(t, "durable", durable, tt.wantDurable)
			checkKV(t, "ephemeral", ephemeral, tt.wantEphemeral)
		})
	}
}

func TestSessionStore_Login_failure(t *testing.T) {
	ctx := context.Background()
	sapi := &testSessionAPI{
		T: t,
		login: func(t *testing.T, name string) (api.LoginResponse, error) {
			return api.LoginResponse{}, &api.NetworkError{Op: "POST /session", Err: errors.New("connection refused")}
		},
	}
	s, durable, ephemeral := newTestSession(t, sapi, nil)
	if err := s.SetAuthToken(ctx, "stale", TierEphemeral); err != nil {
		t.Fatal(err)
	}
	sapi.auth = "stale"

	_, err := s.Login(ctx, "alice", true)
	var authErr *api.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Got error %v, want *api.AuthError", err)
	}
	var netErr *api.NetworkError
	if !errors.As(err, &netErr) {
		t.Errorf("Got error %v, want it to wrap *api.NetworkError", err)
	}
	if s.IsAuthenticated() {
		t.Error("Got IsAuthenticated true after a failed login")
	}
	if s.User() != nil {
		t.Errorf("Got user %+v, want nil", s.User())
	}
	if sapi.auth != "" {
		t.Errorf("Got gateway credential %q, want it cleared", sapi.auth)
	}
	checkKV(t, "durable", durable, map[string]string{"auth_storage_type": "session"})
	checkKV(t, "ephemeral", ephemeral, map[string]string{})
}

func TestSessionStore_Logout(t *testing.T) {
	ctx := context.Background()
	sapi := &testSessionAPI{
		T: t,
		login: func(t *testing.T, name string) (api.LoginResponse, error) {
			return api.LoginResponse{ID: "u1"}, nil
		},
	}
	s, durable, ephemeral := newTestSession(t, sapi, nil)
	if _, err := s.Login(ctx, "alice", true); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := s.Logout(ctx); err != nil {
			t.Fatalf("Logout #%d: %v", i+1, err)
		}
		if s.IsAuthenticated() {
			t.Errorf("Got IsAuthenticated true after logout #%d", i+1)
		}
	}
	if sapi.auth != "" {
		t.Errorf("Got gateway credential %q, want it cleared", sapi.auth)
	}
	checkKV(t, "durable", durable, map[string]string{"auth_storage_type": "local"})
	checkKV(t, "ephemeral", ephemeral, map[string]string{})
}

func TestSessionStore_SetAuthToken_singleTier(t *testing.T) {
	ctx := context.Background()
	s, durable, ephemeral := newTestSession(t, &testSessionAPI{T: t}, nil)

	if err := s.SetAuthToken(ctx, "u1", TierDurable); err != nil {
		t.Fatal(err)
	}
	if err := s.SetAuthToken(ctx, "u2", TierEphemeral); err != nil {
		t.Fatal(err)
	}
	checkKV(t, "durable", durable, map[string]string{"auth_storage_type": "session"})
	checkKV(t, "ephemeral", ephemeral, map[string]string{"user_token": "u2"})
}

func TestSessionStore_HandleUnauthorized(t *testing.T) {
	tests := []struct {
		name         string
		path         string
		wantRedirect []string
		wantSaved    string
	}{
		{
			name:         "SavesPath",
			path:         "/conversations/c1",
			wantRedirect: []string{"/login"},
			wantSaved:    "/conversations/c1",
		},
		{
			name:         "Root",
			path:         "/",
			wantRedirect: []string{"/login"},
		},
		{
			name: "AlreadyOnLogin",
			path: "/login?next=%2F",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			nav := &testNavigator{path: tt.path}
			sapi := &testSessionAPI{T: t}
			s, durable, ephemeral := newTestSession(t, sapi, nav)
			if err := s.SetAuthToken(ctx, "u1", TierDurable); err != nil {
				t.Fatal(err)
			}
			if err := s.SetUser(ctx, &api.User{ID: "u1", Name: "alice"}, TierDurable); err != nil {
				t.Fatal(err)
			}
			sapi.auth = "u1"

			s.HandleUnauthorized(ctx)

			if s.IsAuthenticated() || s.User() != nil {
				t.Error("Session still populated after HandleUnauthorized")
			}
			if sapi.auth != "" {
				t.Errorf("Got gateway credential %q, want it cleared", sapi.auth)
			}
			if diff := cmp.Diff(tt.wantRedirect, nav.redirects); diff != "" {
				t.Errorf("Redirects mismatch (-want +got):\n%s", diff)
			}
			checkKV(t, "durable", durable, map[string]string{"auth_storage_type": "local"})
			wantEphemeral := map[string]string{}
			if tt.wantSaved != "" {
				wantEphemeral["redirect_after_login"] = tt.wantSaved
			}
			checkKV(t, "ephemeral", ephemeral, wantEphemeral)

			got, err := s.TakeRedirect(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.wantSaved {
				t.Errorf("Got redirect target %q, want %q", got, tt.wantSaved)
			}
			if again, _ := s.TakeRedirect(ctx); again != "" {
				t.Errorf("Got redirect target %q on second take, want empty", again)
			}
		})
	}
}

func TestSessionStore_HandleUnauthorized_keepsFirstTarget(t *testing.T) {
	ctx := context.Background()
	nav := &testNavigator{path: "/conversations/c1"}
	s, _, ephemeral := newTestSession(t, &testSessionAPI{T: t}, nav)

	s.HandleUnauthorized(ctx)
	nav.path = LoginPath
	s.HandleUnauthorized(ctx)

	checkKV(t, "ephemeral", ephemeral, map[string]string{"redirect_after_login": "/conversations/c1"})
	if got := len(nav.redirects); got != 1 {
		t.Errorf("Got %d redirects, want 1", got)
	}
}

func TestNewSessionStore_restore(t *testing.T) {
	tests := []struct {
		name      string
		durable   map[string]string
		ephemeral map[string]string
		wantToken string
		wantUser  *api.User
		wantTier  Tier
	}{
		{
			name: "Durable",
			durable: map[string]string{
				"auth_storage_type": "local",
				"user_token":        "u1",
				"user_data":         `{"id":"u1","name":"alice"}`,
			},
			wantToken: "u1",
			wantUser:  &api.User{ID: "u1", Name: "alice"},
			wantTier:  TierDurable,
		},
		{
			name: "EphemeralByDefault",
			durable: map[string]string{
				"user_token": "ignored",
			},
			ephemeral: map[string]string{
				"user_token": "u2",
			},
			wantToken: "u2",
			wantTier:  TierEphemeral,
		},
		{
			name: "CorruptUser",
			durable: map[string]string{
				"auth_storage_type": "local",
				"user_token":        "u1",
				"user_data":         `{not json`,
			},
			wantToken: "u1",
			wantTier:  TierDurable,
		},
		{
			name: "Empty",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sapi := &testSessionAPI{T: t}
			s, err := NewSessionStore(context.Background(), SessionConfig{
				API: sapi,
				Tiers: Tiers{
					Durable:   memory.New(tt.durable),
					Ephemeral: memory.New(tt.ephemeral),
				},
				Logger: slogt.New(t),
			})
			if err != nil {
				t.Fatal(err)
			}
			if got := s.Token(); got != tt.wantToken {
				t.Errorf("Got token %q, want %q", got, tt.wantToken)
			}
			if diff := cmp.Diff(tt.wantUser, s.User()); diff != "" {
				t.Errorf("User mismatch (-want +got):\n%s", diff)
			}
			if got := s.Tier(); got != tt.wantTier {
				t.Errorf("Got tier %v, want %v", got, tt.wantTier)
			}
			if got := sapi.auth; got != tt.wantToken {
				t.Errorf("Got gateway credential %q, want %q", got, tt.wantToken)
			}
		})
	}
}

func TestSessionStore_UserID(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestSession(t, &testSessionAPI{T: t}, nil)
	if err := s.SetAuthToken(ctx, "u1", TierEphemeral); err != nil {
		t.Fatal(err)
	}
	if got := s.UserID(); got != "u1" {
		t.Errorf("Got user id %q without a user, want the token %q", got, "u1")
	}
	if err := s.SetUser(ctx, &api.User{ID: "u9", Name: "bob"}, TierEphemeral); err != nil {
		t.Fatal(err)
	}
	if got := s.UserID(); got != "u9" {
		t.Errorf("Got user id %q, want %q", got, "u9")
	}
	if got := s.Name(); got != "bob" {
		t.Errorf("Got name %q, want %q", got, "bob")
	}
}

func TestParseTier(t *testing.T) {
	for _, tier := range []Tier{TierEphemeral, TierDurable} {
		if got := ParseTier(tier.String()); got != tier {
			t.Errorf("ParseTier(%q) = %v, want %v", tier.String(), got, tier)
		}
	}
	if got := ParseTier(""); got != TierEphemeral {
		t.Errorf("ParseTier(\"\") = %v, want %v", got, TierEphemeral)
	}
}

func newTestSession(t *testing.T, sapi *testSessionAPI, nav Navigator) (*SessionStore, *memory.KV, *memory.KV) {
	t.Helper()
	durable, ephemeral := memory.New(nil), memory.New(nil)
	s, err := NewSessionStore(context.Background(), SessionConfig{
		API:       sapi,
		Tiers:     Tiers{Durable: durable, Ephemeral: ephemeral},
		Navigator: nav,
		Logger:    slogt.New(t),
	})
	if err != nil {
		t.Fatal(err)
	}
	return s, durable, ephemeral
}

type testSessionAPI struct {
	T     *testing.T
	login func(t *testing.T, name string) (api.LoginResponse, error)
	auth  string
}

func (a *testSessionAPI) Login(_ context.Context, name string) (api.LoginResponse, error) {
	return a.login(a.T, name)
}

func (a *testSessionAPI) SetAuthorization(token string) {
	a.auth = token
}

func (a *testSessionAPI) ClearAuthorization() {
	a.auth = ""
}

type testNavigator struct {
	path      string
	redirects []string
}

func (n *testNavigator) CurrentPath() string {
	return n.path
}

func (n *testNavigator) Redirect(path string) {
	n.redirects = append(n.redirects, path)
}

func checkKV(t *testing.T, name string, kv *memory.KV, want map[string]string) {
	t.Helper()
	if diff := cmp.Diff(want, kv.Snapshot()); diff != "" {
		t.Errorf("%s tier mismatch (-want +got):\n%s", name, diff)
	}
}
