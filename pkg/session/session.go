// Package session holds the bearer credential of the signed-in back-office user.
//
// A Session is issued at login and invalidated at logout. It is passed
// explicitly to the API client, editors and relation managers that need it;
// nothing reads the credential from ambient global state.
package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrEmptyToken   = errors.New("session: empty token")
	ErrInvalidToken = errors.New("session: malformed token")
	ErrExpiredToken = errors.New("session: token expired")
)

// Roles granting the staff capability.
const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

// Claims is the subset of the access token the client cares about. The token
// signature is checked by the server; the client only reads it.
type Claims struct {
	UserID  string `json:"user_id,omitempty"`
	Role    string `json:"role,omitempty"`
	IsStaff bool   `json:"is_staff,omitempty"`
	jwt.RegisteredClaims
}

type Session struct {
	mu       sync.RWMutex
	token    string
	claims   Claims
	issuedAt time.Time
	now      func() time.Time
}

// New returns an empty (signed-out) session.
func New() *Session {
	return &Session{now: time.Now}
}

// NewWithClock is New with an injectable clock, used for expiry checks.
func NewWithClock(now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	return &Session{now: now}
}

// Issue installs a freshly obtained access token.
func (s *Session) Issue(token string) error {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return ErrEmptyToken
	}

	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return errors.Join(ErrInvalidToken, err)
	}

	now := s.now()
	if claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		return ErrExpiredToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.claims = claims
	s.issuedAt = now
	return nil
}

// Invalidate signs the session out.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.claims = Claims{}
	s.issuedAt = time.Time{}
}

// Token returns the bearer credential, or false when signed out or expired.
func (s *Session) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.activeLocked() {
		return "", false
	}
	return s.token, true
}

// IsStaff is the capability test gating every mutating admin action.
func (s *Session) IsStaff() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.activeLocked() {
		return false
	}
	if s.claims.IsStaff {
		return true
	}
	switch strings.ToLower(s.claims.Role) {
	case RoleAdmin, RoleStaff:
		return true
	}
	return false
}

func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.claims.UserID != "" {
		return s.claims.UserID
	}
	return s.claims.Subject
}

// Active reports whether a non-expired credential is installed.
func (s *Session) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeLocked()
}

func (s *Session) activeLocked() bool {
	if s.token == "" {
		return false
	}
	if s.claims.ExpiresAt != nil && !s.now().Before(s.claims.ExpiresAt.Time) {
		return false
	}
	return true
}
