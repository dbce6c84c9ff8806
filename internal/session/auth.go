package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"veritas/internal/api"
	"veritas/internal/logging"
)

var (
	// ErrMissingCredentials rejects a login form with an empty field.
	ErrMissingCredentials = errors.New("please enter both email and password")
	// ErrMissingSignupFields rejects a signup form with an empty field.
	ErrMissingSignupFields = errors.New("please fill in all required fields")
)

// Authenticator is the subset of the API client the auth flows need.
type Authenticator interface {
	Signup(ctx context.Context, in api.SignupRequest) (*api.User, error)
	Login(ctx context.Context, email, password string) (*api.Token, error)
}

// Manager runs login, signup and logout against the backend and keeps the
// store and the live session in step.
type Manager struct {
	auth  Authenticator
	store *Store
	live  *Session
	now   func() time.Time
	log   *slog.Logger
}

// NewManager returns a Manager that updates live in place, so API clients
// holding live as their TokenSource see the change immediately.
func NewManager(auth Authenticator, store *Store, live *Session) *Manager {
	return &Manager{auth: auth, store: store, live: live, now: time.Now, log: logging.New("session")}
}

// Current returns the live session.
func (m *Manager) Current() *Session { return m.live }

// Login authenticates and persists the new session.
func (m *Manager) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrMissingCredentials
	}
	tok, err := m.auth.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("login: backend returned no access token")
	}

	sess := &Session{AccessToken: tok.AccessToken, TokenType: tok.TokenType, CreatedAt: m.now().UTC()}
	id := sess.Subject()
	if id == "" {
		id = fmt.Sprintf("user-%d", m.now().UnixMilli())
	}
	sess.User = User{ID: id, Email: email, FirstName: firstNameFromEmail(email), Role: RoleAdjuster}
	return sess, m.install(sess)
}

// Signup registers an account and then logs in with the same credentials.
func (m *Manager) Signup(ctx context.Context, email, password, fullName string) (*Session, error) {
	email, fullName = strings.TrimSpace(email), strings.TrimSpace(fullName)
	if email == "" || password == "" || fullName == "" {
		return nil, ErrMissingSignupFields
	}
	user, err := m.auth.Signup(ctx, api.SignupRequest{Email: email, Password: password, FullName: fullName})
	if err != nil {
		return nil, err
	}
	tok, err := m.auth.Login(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("log in after signup: %w", err)
	}

	names := strings.Fields(user.FullName)
	if len(names) == 0 {
		names = strings.Fields(fullName)
	}
	sess := &Session{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		CreatedAt:   m.now().UTC(),
		User: User{
			ID:        user.ID,
			Email:     user.Email,
			FirstName: names[0],
			Role:      RoleAdjuster,
		},
	}
	if sess.User.Email == "" {
		sess.User.Email = email
	}
	return sess, m.install(sess)
}

// Logout clears both the live session and the stored one.
func (m *Manager) Logout() error {
	*m.live = Session{}
	return m.store.Clear()
}

func (m *Manager) install(sess *Session) error {
	*m.live = *sess
	if err := m.store.Save(sess); err != nil {
		return err
	}
	m.log.Info("session saved", "user", sess.User.Email, "path", m.store.Path())
	return nil
}

// firstNameFromEmail capitalizes the local part: "jane.doe@x" -> "Jane.doe".
func firstNameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	if local == "" {
		return "User"
	}
	r, size := utf8.DecodeRuneInString(local)
	return string(unicode.ToUpper(r)) + local[size:]
}
