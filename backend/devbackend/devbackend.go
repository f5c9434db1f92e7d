// Package devbackend is an in-process stand-in for the hosted auth provider,
// used in local development and tests. It checks bcrypt password hashes,
// mints short-lived HS256 access tokens, rotates refresh tokens, and fans
// auth events out to subscribers the way the hosted change stream does.
package devbackend

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/openlettings/auth-gateway/internal/autherr"
	"github.com/openlettings/auth-gateway/session"
)

const defaultSessionTTL = time.Hour

type user struct {
	id           string
	email        string
	passwordHash string
}

// Backend implements session.Backend and the authstream source.
type Backend struct {
	secret     []byte
	sessionTTL time.Duration
	nowTime    func() time.Time

	mu           sync.RWMutex
	usersByEmail map[string]user
	sessions     map[string]*session.Session // access token -> session
	byRefresh    map[string]string           // refresh token -> access token
	persisted    *session.Session            // last signed-in session, recovered by CurrentSession
	subs         map[string]func(event string, s *session.Session)
}

// Option modifies a Backend instance.
type Option func(*Backend)

// WithSessionTTL sets the lifetime of minted sessions.
func WithSessionTTL(ttl time.Duration) Option {
	return func(b *Backend) { b.sessionTTL = ttl }
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(b *Backend) { b.nowTime = nowFunc }
}

// New creates a dev backend signing tokens with secret.
func New(secret []byte, options ...Option) *Backend {
	b := &Backend{
		secret:       secret,
		sessionTTL:   defaultSessionTTL,
		nowTime:      time.Now,
		usersByEmail: make(map[string]user),
		sessions:     make(map[string]*session.Session),
		byRefresh:    make(map[string]string),
		subs:         make(map[string]func(string, *session.Session)),
	}
	for _, opt := range options {
		opt(b)
	}
	return b
}

// SeedUser registers a user and returns the generated user ID.
func (b *Backend) SeedUser(email, password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "[devbackend.SeedUser] bcrypt.GenerateFromPassword")
	}
	id := uuid.New().String()
	b.mu.Lock()
	b.usersByEmail[email] = user{id: id, email: email, passwordHash: string(hash)}
	b.mu.Unlock()
	return id, nil
}

func (b *Backend) CurrentSession(ctx context.Context) (*session.Session, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.persisted == nil {
		return nil, nil
	}
	copied := *b.persisted
	return &copied, nil
}

func (b *Backend) SignIn(ctx context.Context, creds session.Credentials) (*session.Session, error) {
	b.mu.RLock()
	u, ok := b.usersByEmail[creds.Email]
	b.mu.RUnlock()
	if !ok {
		return nil, errors.Wrap(autherr.ErrInvalidSession, "[devbackend.SignIn] unknown user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.passwordHash), []byte(creds.Password)); err != nil {
		return nil, errors.Wrap(autherr.ErrInvalidSession, "[devbackend.SignIn] password mismatch")
	}

	s, err := b.mint(u)
	if err != nil {
		return nil, err
	}
	s.RememberMe = creds.RememberMe

	b.mu.Lock()
	copied := *s
	b.persisted = &copied
	b.mu.Unlock()

	b.emit("SIGNED_IN", s)
	copied2 := *s
	return &copied2, nil
}

func (b *Backend) Refresh(ctx context.Context, refreshToken string) (*session.Session, error) {
	b.mu.Lock()
	accessToken, ok := b.byRefresh[refreshToken]
	if !ok {
		b.mu.Unlock()
		return nil, errors.Wrap(autherr.ErrInvalidSession, "[devbackend.Refresh] unknown refresh token")
	}
	prior := b.sessions[accessToken]
	delete(b.byRefresh, refreshToken)
	delete(b.sessions, accessToken)
	var u user
	found := false
	for _, candidate := range b.usersByEmail {
		if candidate.id == prior.UserID {
			u = candidate
			found = true
			break
		}
	}
	b.mu.Unlock()
	if !found {
		return nil, errors.Wrap(autherr.ErrInvalidSession, "[devbackend.Refresh] user no longer exists")
	}

	next, err := b.mint(u)
	if err != nil {
		return nil, err
	}
	next.RememberMe = prior.RememberMe

	b.mu.Lock()
	if b.persisted != nil && b.persisted.UserID == next.UserID {
		copied := *next
		b.persisted = &copied
	}
	b.mu.Unlock()

	b.emit("TOKEN_REFRESHED", next)
	copied := *next
	return &copied, nil
}

func (b *Backend) SignOut(ctx context.Context, token string) error {
	b.mu.Lock()
	s, ok := b.sessions[token]
	if ok {
		delete(b.sessions, token)
		delete(b.byRefresh, s.RefreshToken)
	}
	if b.persisted != nil && b.persisted.Token == token {
		b.persisted = nil
	}
	b.mu.Unlock()

	if ok {
		b.emit("SIGNED_OUT", s)
	}
	return nil
}

// Subscribe registers a raw event handler and returns its unsubscribe
// handle. Satisfies the authstream source contract.
func (b *Backend) Subscribe(fn func(event string, s *session.Session)) (unsubscribe func()) {
	id := uuid.New().String()
	b.mu.Lock()
	b.subs[id] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

func (b *Backend) mint(u user) (*session.Session, error) {
	now := b.nowTime()
	expires := now.Add(b.sessionTTL)

	claims := jwt.MapClaims{
		"sub":   u.id,
		"email": u.email,
		"iat":   now.Unix(),
		"exp":   expires.Unix(),
		"jti":   uuid.New().String(),
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
	if err != nil {
		return nil, errors.Wrap(err, "[devbackend.mint] SignedString")
	}

	s := &session.Session{
		UserID:       u.id,
		Token:        accessToken,
		RefreshToken: uuid.New().String(),
		IssuedAt:     now,
		ExpiresAt:    expires,
	}

	b.mu.Lock()
	b.sessions[s.Token] = s
	b.byRefresh[s.RefreshToken] = s.Token
	b.mu.Unlock()
	return s, nil
}

func (b *Backend) emit(event string, s *session.Session) {
	b.mu.RLock()
	fns := make([]func(string, *session.Session), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	copied := *s
	for _, fn := range fns {
		fn(event, &copied)
	}
}
