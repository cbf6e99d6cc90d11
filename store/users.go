package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/GetStream/chatsync/api"
)

// UserAPI is the part of the API the user store needs.
type UserAPI interface {
	GetMe(ctx context.Context) (api.User, error)
	ListUsers(ctx context.Context) ([]api.User, error)
	UpdateUsername(ctx context.Context, name string) (string, error)
	UploadUserPhoto(ctx context.Context, photo api.Photo) (string, error)
}

// UserStore holds the current user's profile and the roster of known users.
type UserStore struct {
	API    UserAPI
	Logger *slog.Logger

	mu      sync.Mutex
	current *api.User
	users   []api.User
	loading bool
	err     string
}

// NewUserStore creates an empty UserStore.
func NewUserStore(a UserAPI, logger *slog.Logger) *UserStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserStore{API: a, Logger: logger}
}

func (s *UserStore) begin() {
	s.mu.Lock()
	s.loading = true
	s.err = ""
	s.mu.Unlock()
}

func (s *UserStore) end() {
	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()
}

func (s *UserStore) fail(err error, msg string) error {
	s.mu.Lock()
	s.err = errMessage(err, msg)
	s.mu.Unlock()
	s.Logger.Error(msg, "error", err.Error())
	return err
}

// SetUser replaces the current user with a copy of user.
func (s *UserStore) SetUser(user *api.User) {
	var cp *api.User
	if user != nil {
		u := *user
		cp = &u
	}
	s.mu.Lock()
	s.current = cp
	s.mu.Unlock()
}

// ClearUser forgets the current user.
func (s *UserStore) ClearUser() {
	s.SetUser(nil)
}

// SyncFromSession copies the session's identity into the store.
func (s *UserStore) SyncFromSession(session *SessionStore) {
	s.SetUser(session.User())
}

// FetchCurrentUser loads the authenticated user's profile.
func (s *UserStore) FetchCurrentUser(ctx context.Context) (api.User, error) {
	s.begin()
	defer s.end()

	user, err := s.API.GetMe(ctx)
	if err != nil {
		return api.User{}, s.fail(err, "Could not fetch current user")
	}
	s.SetUser(&user)
	return user, nil
}

// FetchUsers replaces the roster with the server's list of users.
func (s *UserStore) FetchUsers(ctx context.Context) ([]api.User, error) {
	s.begin()
	defer s.end()

	users, err := s.API.ListUsers(ctx)
	if err != nil {
		return nil, s.fail(err, "Could not fetch users")
	}
	if users == nil {
		users = []api.User{}
	}

	s.mu.Lock()
	s.users = users
	s.mu.Unlock()
	return copyUsers(users), nil
}

// UpdateUsername renames the current user.
func (s *UserStore) UpdateUsername(ctx context.Context, name string) (string, error) {
	s.begin()
	defer s.end()

	updated, err := s.API.UpdateUsername(ctx, name)
	if err != nil {
		return "", s.fail(err, "Could not update username")
	}

	s.mu.Lock()
	if s.current != nil {
		s.current.Name = updated
	}
	s.mu.Unlock()
	return updated, nil
}

// UploadProfilePhoto replaces the current user's photo and returns its URL
// path.
func (s *UserStore) UploadProfilePhoto(ctx context.Context, photo api.Photo) (string, error) {
	s.begin()
	defer s.end()

	url, err := s.API.UploadUserPhoto(ctx, photo)
	if err != nil {
		return "", s.fail(err, "Could not upload profile photo")
	}

	s.mu.Lock()
	if s.current != nil {
		s.current.Photo = url
	}
	s.mu.Unlock()
	return url, nil
}

// CurrentUser returns a copy of the current user, or nil.
func (s *UserStore) CurrentUser() *api.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	u := *s.current
	return &u
}

// Users returns a copy of the roster.
func (s *UserStore) Users() []api.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyUsers(s.users)
}

func (s *UserStore) IsAuthenticated() bool {
	return s.CurrentUser() != nil
}

// DisplayName returns the current user's name. A user without a name is
// shown as "Unknown User"; no user at all yields "".
func (s *UserStore) DisplayName() string {
	u := s.CurrentUser()
	switch {
	case u == nil:
		return ""
	case u.Name == "":
		return "Unknown User"
	}
	return u.Name
}

func (s *UserStore) ProfilePhoto() string {
	if u := s.CurrentUser(); u != nil {
		return u.Photo
	}
	return ""
}

func (s *UserStore) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Error returns the message of the last failed operation, or "".
func (s *UserStore) Error() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func copyUsers(users []api.User) []api.User {
	if users == nil {
		return nil
	}
	out := make([]api.User, len(users))
	copy(out, users)
	return out
}
