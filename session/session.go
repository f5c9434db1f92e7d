// Package session holds the gateway's single authenticated session and
// orchestrates sign-in, refresh, and sign-out against the hosted auth
// provider. The Store is constructed once at startup and injected into
// everything that needs auth state; nothing else mutates the session.
package session

import (
	"context"
	"time"
)

// Session is the backend-issued proof of authentication plus its expiry
// metadata. Mutated only by sign-in, refresh, and sign-out; destroyed on
// sign-out or backend-reported invalidation.
type Session struct {
	UserID       string    `json:"user_id"`
	Token        string    `json:"-"` // Opaque access token - never serialize
	RefreshToken string    `json:"-"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`

	// RememberMe is fixed at sign-in for the lifetime of the session.
	RememberMe bool `json:"remember_me"`
}

// Expired reports whether the session's expiry has passed.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// EventKind tags an AuthEvent variant.
type EventKind string

const (
	EventSignedIn       EventKind = "signed_in"
	EventTokenRefreshed EventKind = "token_refreshed"
	EventSignedOut      EventKind = "signed_out"
)

// AuthEvent is the normalized auth-state change broadcast to store
// listeners and ingested from the backend's change stream. Transient; never
// persisted.
type AuthEvent struct {
	Kind EventKind

	// Session carries the event's session payload. Nil for SignedOut events
	// that identify no particular session.
	Session *Session
}

// Credentials are the inputs to a password sign-in. RememberMe becomes part
// of the resulting session and is immutable afterwards.
type Credentials struct {
	Email      string
	Password   string
	RememberMe bool
}

// Backend is the hosted auth provider's session API, treated as an opaque
// remote service.
type Backend interface {
	// CurrentSession recovers any existing session, or (nil, nil) when the
	// backend knows of none.
	CurrentSession(ctx context.Context) (*Session, error)

	// SignIn exchanges credentials for a new session.
	SignIn(ctx context.Context, creds Credentials) (*Session, error)

	// Refresh extends a session using its refresh token and returns the
	// replacement session.
	Refresh(ctx context.Context, refreshToken string) (*Session, error)

	// SignOut invalidates the session identified by token.
	SignOut(ctx context.Context, token string) error
}
