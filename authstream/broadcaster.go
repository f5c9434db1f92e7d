// Package authstream bridges the backend's auth-change stream into the
// session store. The broadcaster owns exactly one subscription for its
// lifetime: it normalizes provider-specific event names into
// session.AuthEvent variants and pushes them into the store's ingestion
// point, which discards stale events on its own.
package authstream

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/openlettings/auth-gateway/session"
)

// Source is the backend's auth-change stream. Subscribe registers a handler
// for raw provider events and returns the handle that removes it.
type Source interface {
	Subscribe(fn func(event string, s *session.Session)) (unsubscribe func())
}

// Sink is the store-side ingestion point. Implemented by *session.Store.
type Sink interface {
	Ingest(ev session.AuthEvent)
}

// Provider event names as emitted by the hosted auth service.
const (
	sourceEventSignedIn       = "SIGNED_IN"
	sourceEventTokenRefreshed = "TOKEN_REFRESHED"
	sourceEventSignedOut      = "SIGNED_OUT"
	sourceEventUserDeleted    = "USER_DELETED"
)

// Broadcaster republishes normalized auth events from a Source into a Sink.
type Broadcaster struct {
	source Source
	sink   Sink
	log    zerolog.Logger

	unsubscribe func()
}

// BroadcasterOption modifies a Broadcaster instance.
type BroadcasterOption func(*Broadcaster)

// WithLogger sets the broadcaster's logger.
func WithLogger(log zerolog.Logger) BroadcasterOption {
	return func(b *Broadcaster) {
		b.log = log
	}
}

// NewBroadcaster creates a Broadcaster. Call Start to subscribe.
func NewBroadcaster(source Source, sink Sink, options ...BroadcasterOption) (*Broadcaster, error) {
	if source == nil {
		return nil, errors.New("[NewBroadcaster] source is required")
	}
	if sink == nil {
		return nil, errors.New("[NewBroadcaster] sink is required")
	}
	b := &Broadcaster{
		source: source,
		sink:   sink,
		log:    zerolog.Nop(),
	}
	for _, opt := range options {
		opt(b)
	}
	return b, nil
}

// Start subscribes to the source. Calling Start twice is an error; the
// broadcaster holds at most one subscription.
func (b *Broadcaster) Start() error {
	if b.unsubscribe != nil {
		return errors.New("[Broadcaster.Start] already started")
	}
	b.unsubscribe = b.source.Subscribe(b.handle)
	return nil
}

// Close removes the subscription. Safe to call more than once.
func (b *Broadcaster) Close() {
	if b.unsubscribe != nil {
		b.unsubscribe()
		b.unsubscribe = nil
	}
}

func (b *Broadcaster) handle(event string, s *session.Session) {
	kind, ok := normalize(event)
	if !ok {
		b.log.Debug().Str("event", event).Msg("dropping unrecognized auth event")
		return
	}
	b.sink.Ingest(session.AuthEvent{Kind: kind, Session: s})
}

func normalize(event string) (session.EventKind, bool) {
	switch event {
	case sourceEventSignedIn:
		return session.EventSignedIn, true
	case sourceEventTokenRefreshed:
		return session.EventTokenRefreshed, true
	case sourceEventSignedOut, sourceEventUserDeleted:
		return session.EventSignedOut, true
	}
	return "", false
}
