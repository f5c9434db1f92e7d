package authstream_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openlettings/auth-gateway/authstream"
	"github.com/openlettings/auth-gateway/session"
)

// fakeSource fans raw provider events to subscribed handlers.
type fakeSource struct {
	handlers      []func(event string, s *session.Session)
	unsubscribed  int
	subscriptions int
}

func (f *fakeSource) Subscribe(fn func(event string, s *session.Session)) func() {
	f.subscriptions++
	f.handlers = append(f.handlers, fn)
	return func() { f.unsubscribed++ }
}

func (f *fakeSource) emit(event string, s *session.Session) {
	for _, fn := range f.handlers {
		fn(event, s)
	}
}

// fakeSink records ingested events.
type fakeSink struct {
	events []session.AuthEvent
}

func (f *fakeSink) Ingest(ev session.AuthEvent) {
	f.events = append(f.events, ev)
}

func testSession() *session.Session {
	return &session.Session{
		UserID:    "user-1",
		Token:     "token-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func setupBroadcaster(t *testing.T) (*authstream.Broadcaster, *fakeSource, *fakeSink) {
	t.Helper()

	source := &fakeSource{}
	sink := &fakeSink{}
	b, err := authstream.NewBroadcaster(source, sink)
	require.NoError(t, err)
	require.NoError(t, b.Start())
	return b, source, sink
}

func TestBroadcasterNormalizesProviderEvents(t *testing.T) {
	_, source, sink := setupBroadcaster(t)
	s := testSession()

	source.emit("SIGNED_IN", s)
	source.emit("TOKEN_REFRESHED", s)
	source.emit("SIGNED_OUT", s)

	require.Len(t, sink.events, 3)
	require.Equal(t, session.EventSignedIn, sink.events[0].Kind)
	require.Equal(t, session.EventTokenRefreshed, sink.events[1].Kind)
	require.Equal(t, session.EventSignedOut, sink.events[2].Kind)
	require.Equal(t, "token-1", sink.events[0].Session.Token)
}

func TestBroadcasterTreatsUserDeletedAsSignedOut(t *testing.T) {
	_, source, sink := setupBroadcaster(t)

	source.emit("USER_DELETED", testSession())

	require.Len(t, sink.events, 1)
	require.Equal(t, session.EventSignedOut, sink.events[0].Kind)
}

func TestBroadcasterDropsUnrecognizedEvents(t *testing.T) {
	_, source, sink := setupBroadcaster(t)

	source.emit("PASSWORD_RECOVERY", testSession())
	source.emit("", nil)

	require.Empty(t, sink.events)
}

func TestBroadcasterStartIsSingleUse(t *testing.T) {
	b, source, _ := setupBroadcaster(t)

	require.Error(t, b.Start(), "a broadcaster holds at most one subscription")
	require.Equal(t, 1, source.subscriptions)
}

func TestBroadcasterCloseUnsubscribes(t *testing.T) {
	b, source, _ := setupBroadcaster(t)

	b.Close()
	b.Close() // idempotent

	require.Equal(t, 1, source.unsubscribed)
}

func TestBroadcasterCanRestartAfterClose(t *testing.T) {
	b, source, sink := setupBroadcaster(t)

	b.Close()
	require.NoError(t, b.Start())
	require.Equal(t, 2, source.subscriptions)

	source.emit("SIGNED_IN", testSession())
	require.NotEmpty(t, sink.events)
}
