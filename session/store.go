package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/openlettings/auth-gateway/internal/autherr"
	"github.com/openlettings/auth-gateway/profiles"
	"github.com/openlettings/auth-gateway/rememberme"
)

// ingestResolveTimeout bounds profile resolution triggered from the
// backend's event stream, which carries no caller context.
const ingestResolveTimeout = 10 * time.Second

// ProfileResolver resolves and invalidates the profile associated with the
// current user. Implemented by profiles.Resolver.
type ProfileResolver interface {
	Resolve(ctx context.Context, userID string) (*profiles.Profile, error)
	Invalidate(userID string)
}

// Listener receives every state transition of the store. Listeners are
// called synchronously after the operation that caused the transition
// resolves; they must not assume ordering across concurrent refreshes.
type Listener func(ev AuthEvent)

// Store holds the gateway's single active session and the profile resolved
// for it. Concurrent refreshes are not serialized: whichever backend
// response is applied last is the state left standing (last writer wins),
// though identical in-flight refresh calls are coalesced into one backend
// round trip.
type Store struct {
	backend  Backend
	resolver ProfileResolver
	remember rememberme.Store
	log      zerolog.Logger
	flight   singleflight.Group

	mu          sync.RWMutex
	current     *Session
	profile     *profiles.Profile
	listeners   map[string]Listener
	initialized bool
}

// StoreOption modifies a Store instance.
type StoreOption func(*Store)

// WithLogger sets the store's logger.
func WithLogger(log zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.log = log
	}
}

// NewStore initializes a Store with its required collaborators.
func NewStore(backend Backend, resolver ProfileResolver, remember rememberme.Store, options ...StoreOption) (*Store, error) {
	if backend == nil {
		return nil, errors.New("[NewStore] backend is required")
	}
	if resolver == nil {
		return nil, errors.New("[NewStore] profile resolver is required")
	}
	if remember == nil {
		return nil, errors.New("[NewStore] remember-me store is required")
	}

	store := &Store{
		backend:   backend,
		resolver:  resolver,
		remember:  remember,
		log:       zerolog.Nop(),
		listeners: make(map[string]Listener),
	}
	for _, opt := range options {
		opt(store)
	}
	return store, nil
}

// Ready reports whether Initialize has completed. Until then, route guards
// render a neutral loading response rather than redirecting prematurely.
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// Current returns a copy of the active session, or nil when signed out.
func (s *Store) Current() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	copied := *s.current
	return &copied
}

// CurrentProfile returns a copy of the profile resolved for the active
// session, or nil when signed out or when resolution failed.
func (s *Store) CurrentProfile() *profiles.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return nil
	}
	copied := *s.profile
	return &copied
}

// Subscribe registers a listener and returns its unsubscribe handle.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	id := uuid.New().String()
	s.mu.Lock()
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Initialize asks the backend for any existing session and, if one exists,
// populates the store and resolves the profile. Failure is logged and
// treated as "no session"; startup is never blocked on auth state.
func (s *Store) Initialize(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.initialized = true
		s.mu.Unlock()
	}()

	existing, err := s.backend.CurrentSession(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("session recovery failed, starting signed out")
		return
	}
	if existing == nil {
		return
	}

	if !existing.RememberMe {
		remembered, err := s.remember.Get(ctx, existing.UserID)
		if err != nil {
			s.log.Warn().Err(err).Msg("remember-me lookup failed")
		} else {
			existing.RememberMe = remembered
		}
	}

	copied := *existing
	s.mu.Lock()
	s.current = &copied
	s.mu.Unlock()

	s.resolveProfile(ctx, copied.UserID)
	s.notify(AuthEvent{Kind: EventSignedIn, Session: s.Current()})
}

// SignIn exchanges credentials for a new session, persists the remember-me
// flag, and resolves the profile for the signed-in user.
func (s *Store) SignIn(ctx context.Context, creds Credentials) (Session, error) {
	next, err := s.backend.SignIn(ctx, creds)
	if err != nil {
		return Session{}, errors.Wrap(err, "[Store.SignIn] backend.SignIn")
	}
	if next == nil {
		return Session{}, errors.Wrap(autherr.ErrUnknown, "[Store.SignIn] backend returned no session")
	}
	next.RememberMe = creds.RememberMe

	copied := *next
	s.mu.Lock()
	s.current = &copied
	s.profile = nil
	s.mu.Unlock()

	if err := s.remember.Set(ctx, copied.UserID, creds.RememberMe); err != nil {
		s.log.Warn().Err(err).Msg("persisting remember-me flag failed")
	}

	s.resolver.Invalidate(copied.UserID)
	s.resolveProfile(ctx, copied.UserID)

	snap := s.Current()
	s.notify(AuthEvent{Kind: EventSignedIn, Session: snap})
	return *snap, nil
}

// Refresh asks the backend to extend the current session. On success the
// state is replaced and the profile re-resolved; on failure the prior state
// is left untouched and a wrapped taxonomy error is returned. Identical
// concurrent calls share one backend round trip.
func (s *Store) Refresh(ctx context.Context) (Session, error) {
	cur := s.Current()
	if cur == nil {
		return Session{}, errors.Wrap(autherr.ErrInvalidSession, "[Store.Refresh] no active session")
	}

	v, err, _ := s.flight.Do("refresh", func() (interface{}, error) {
		next, err := s.backend.Refresh(ctx, cur.RefreshToken)
		if err != nil {
			return nil, errors.Wrap(err, "[Store.Refresh] backend.Refresh")
		}
		if next == nil {
			return nil, errors.Wrap(autherr.ErrUnknown, "[Store.Refresh] backend returned no session")
		}
		return next, nil
	})
	if err != nil {
		return Session{}, err
	}

	applied := s.applyRefreshed(v.(*Session))
	if applied == nil {
		return Session{}, errors.Wrap(autherr.ErrInvalidSession, "[Store.Refresh] session gone before refresh resolved")
	}

	s.resolver.Invalidate(applied.UserID)
	s.resolveProfile(ctx, applied.UserID)
	s.notify(AuthEvent{Kind: EventTokenRefreshed, Session: applied})
	return *applied, nil
}

// SignOut invalidates the session at the backend, then clears the in-memory
// state and the persisted remember-me flag unconditionally. Safe to call
// with no active session.
func (s *Store) SignOut(ctx context.Context) error {
	cur := s.Current()
	if cur == nil {
		return nil
	}

	backendErr := s.backend.SignOut(ctx, cur.Token)

	s.mu.Lock()
	s.current = nil
	s.profile = nil
	s.mu.Unlock()

	if err := s.remember.Clear(ctx, cur.UserID); err != nil {
		s.log.Warn().Err(err).Msg("clearing remember-me flag failed")
	}
	s.resolver.Invalidate(cur.UserID)
	s.notify(AuthEvent{Kind: EventSignedOut})

	if backendErr != nil {
		return errors.Wrap(backendErr, "[Store.SignOut] backend.SignOut")
	}
	return nil
}

// Ingest applies a normalized event from the backend's change stream.
// Events whose session payload does not match the current in-memory state
// (a late-arriving SignedOut after a new SignIn, a refresh for a user who
// has since signed out) are discarded, not applied blindly.
func (s *Store) Ingest(ev AuthEvent) {
	switch ev.Kind {
	case EventSignedIn:
		s.ingestSignedIn(ev)
	case EventTokenRefreshed:
		s.ingestTokenRefreshed(ev)
	case EventSignedOut:
		s.ingestSignedOut(ev)
	default:
		s.log.Debug().Str("kind", string(ev.Kind)).Msg("ignoring unrecognized auth event")
	}
}

func (s *Store) ingestSignedIn(ev AuthEvent) {
	if ev.Session == nil {
		return
	}

	s.mu.Lock()
	if s.current != nil && s.current.Token == ev.Session.Token {
		s.mu.Unlock()
		return // already holding this session
	}
	prevUser := ""
	if s.current != nil {
		prevUser = s.current.UserID
	}
	copied := *ev.Session
	s.current = &copied
	s.profile = nil
	s.mu.Unlock()

	if prevUser != "" && prevUser != copied.UserID {
		s.resolver.Invalidate(prevUser)
	}

	ctx, cancel := context.WithTimeout(context.Background(), ingestResolveTimeout)
	defer cancel()
	s.resolveProfile(ctx, copied.UserID)
	s.notify(AuthEvent{Kind: EventSignedIn, Session: s.Current()})
}

func (s *Store) ingestTokenRefreshed(ev AuthEvent) {
	if ev.Session == nil {
		return
	}
	applied := s.applyRefreshed(ev.Session)
	if applied == nil {
		s.log.Debug().Msg("discarding stale token-refreshed event")
		return
	}
	s.notify(AuthEvent{Kind: EventTokenRefreshed, Session: applied})
}

func (s *Store) ingestSignedOut(ev AuthEvent) {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return
	}
	if ev.Session != nil && ev.Session.Token != "" && ev.Session.Token != s.current.Token {
		s.mu.Unlock()
		s.log.Debug().Msg("discarding stale signed-out event")
		return
	}
	userID := s.current.UserID
	s.current = nil
	s.profile = nil
	s.mu.Unlock()

	s.resolver.Invalidate(userID)
	s.notify(AuthEvent{Kind: EventSignedOut})
}

// applyRefreshed installs a refreshed session if the store still holds a
// session for the same user, preserving the RememberMe flag, which is
// immutable for the session's lifetime. Returns the applied snapshot, or
// nil when the result was discarded as stale.
func (s *Store) applyRefreshed(next *Session) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.UserID != next.UserID {
		return nil
	}
	copied := *next
	copied.RememberMe = s.current.RememberMe
	s.current = &copied
	snap := copied
	return &snap
}

// resolveProfile resolves the profile for userID and stores it if the
// session still belongs to that user. Resolution failure is logged and
// leaves the profile absent: the route guard fails closed on a missing
// profile rather than trusting an unverified role.
func (s *Store) resolveProfile(ctx context.Context, userID string) {
	p, err := s.resolver.Resolve(ctx, userID)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("profile resolution failed")
		p = nil
	}
	s.mu.Lock()
	if s.current != nil && s.current.UserID == userID {
		s.profile = p
	}
	s.mu.Unlock()
}

func (s *Store) notify(ev AuthEvent) {
	s.mu.RLock()
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}
