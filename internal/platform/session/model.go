// Package session keeps the backend's access and refresh tokens on the
// console side of the wire. The browser only ever holds a signed cookie
// naming its session; the tokens themselves live in a Store.
package session

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrNotFound       = errors.New("session not found")
	ErrNoSession      = errors.New("no session in context")
	ErrNoRefreshToken = errors.New("session has no refresh token")
)

// Session is one signed-in browser. Presence of AccessToken is the only
// signal that the user is authenticated.
type Session struct {
	ID           string    `json:"id"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	UserID       string    `json:"user_id,omitempty"`
	Email        string    `json:"email,omitempty"`
	Name         string    `json:"name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (s *Session) Authenticated() bool {
	return s != nil && s.AccessToken != ""
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Tokens is the credential pair issued by the backend.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Identity describes the user a session belongs to.
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// holder is what travels in the request context. Requests may fan out
// into goroutines that refresh tokens concurrently, so access is locked.
type holder struct {
	mu   sync.RWMutex
	sess Session
}

func (h *holder) get() Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sess
}

func (h *holder) setTokens(t Tokens) {
	h.mu.Lock()
	h.sess.AccessToken = t.AccessToken
	if t.RefreshToken != "" {
		h.sess.RefreshToken = t.RefreshToken
	}
	h.mu.Unlock()
}

func (h *holder) clearTokens() {
	h.mu.Lock()
	h.sess.AccessToken = ""
	h.sess.RefreshToken = ""
	h.mu.Unlock()
}
