// Package session holds the adjuster's authentication state: the bearer token
// and a minimal profile, persisted to a private file between runs and cleared
// on logout. A *Session is the api.TokenSource for authenticated calls.
package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotLoggedIn is returned when a command needs a session and none is stored.
var ErrNotLoggedIn = errors.New("not logged in (run `veritas login`)")

// ErrExpired is returned when the stored token's exp claim has passed.
var ErrExpired = errors.New("session expired, please log in again")

// Role is the adjuster's role in the dashboard.
type Role string

const (
	RoleAdjuster Role = "Adjuster"
	RoleAdmin    Role = "Admin"
)

// User is the profile kept alongside the token.
type User struct {
	ID        string `yaml:"id"`
	Email     string `yaml:"email"`
	FirstName string `yaml:"first_name"`
	Role      Role   `yaml:"role"`
}

// Session is the persisted login state. The zero value is logged out.
type Session struct {
	AccessToken string    `yaml:"access_token"`
	TokenType   string    `yaml:"token_type,omitempty"`
	User        User      `yaml:"user"`
	CreatedAt   time.Time `yaml:"created_at"`
}

// Token implements api.TokenSource. A nil session has no token.
func (s *Session) Token() string {
	if s == nil {
		return ""
	}
	return s.AccessToken
}

// LoggedIn reports whether a token is present.
func (s *Session) LoggedIn() bool { return s.Token() != "" }

// claims decodes the token's registered claims without verifying the
// signature. Only the backend can verify; the client reads exp and sub to
// avoid sending a token that is certainly stale.
func (s *Session) claims() (*jwt.RegisteredClaims, bool) {
	if !s.LoggedIn() {
		return nil, false
	}
	var rc jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, &rc); err != nil {
		return nil, false
	}
	return &rc, true
}

// Subject returns the token's sub claim, or "" for opaque tokens.
func (s *Session) Subject() string {
	rc, ok := s.claims()
	if !ok {
		return ""
	}
	return rc.Subject
}

// ExpiresAt returns the token's exp claim. ok is false for opaque tokens or
// tokens without exp.
func (s *Session) ExpiresAt() (t time.Time, ok bool) {
	rc, ok := s.claims()
	if !ok || rc.ExpiresAt == nil {
		return time.Time{}, false
	}
	return rc.ExpiresAt.Time, true
}

// Expired reports whether the token carries an exp claim that is not after now.
func (s *Session) Expired(now time.Time) bool {
	exp, ok := s.ExpiresAt()
	return ok && !now.Before(exp)
}

// Check returns ErrNotLoggedIn or ErrExpired when the session cannot be used.
func (s *Session) Check(now time.Time) error {
	if !s.LoggedIn() {
		return ErrNotLoggedIn
	}
	if s.Expired(now) {
		return ErrExpired
	}
	return nil
}
