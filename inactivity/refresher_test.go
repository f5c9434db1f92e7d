package inactivity_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/openlettings/auth-gateway/inactivity"
	"github.com/openlettings/auth-gateway/internal/autherr"
	"github.com/openlettings/auth-gateway/session"
)

// fakeSessions is a scriptable expiry.Sessions.
type fakeSessions struct {
	mu         sync.Mutex
	current    *session.Session
	refreshErr error
	refreshes  int
}

func (f *fakeSessions) Current() *session.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return nil
	}
	copied := *f.current
	return &copied
}

func (f *fakeSessions) Refresh(ctx context.Context) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.refreshErr != nil {
		return session.Session{}, f.refreshErr
	}
	return *f.current, nil
}

func (f *fakeSessions) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

// fakeTimer records arming and lets tests fire the callback by hand.
type fakeTimer struct {
	mu     sync.Mutex
	fn     func()
	resets int
	stops  int
}

func (ft *fakeTimer) Reset(d time.Duration) bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.resets++
	return true
}

func (ft *fakeTimer) Stop() bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.stops++
	return true
}

func (ft *fakeTimer) fire() {
	ft.mu.Lock()
	fn := ft.fn
	ft.mu.Unlock()
	fn()
}

type refresherFixture struct {
	store     *fakeSessions
	refresher *inactivity.Refresher

	mu     sync.Mutex
	timers []*fakeTimer
}

func (f *refresherFixture) timerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

func (f *refresherFixture) timer(i int) *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timers[i]
}

func setupRefresher(t *testing.T, s *session.Session) *refresherFixture {
	t.Helper()

	f := &refresherFixture{store: &fakeSessions{current: s}}
	refresher, err := inactivity.NewRefresher(f.store,
		inactivity.WithIdlePeriod(30*time.Minute),
		inactivity.WithAfterFunc(func(d time.Duration, fn func()) inactivity.TimerHandle {
			ft := &fakeTimer{fn: fn}
			f.mu.Lock()
			f.timers = append(f.timers, ft)
			f.mu.Unlock()
			return ft
		}),
	)
	require.NoError(t, err)
	f.refresher = refresher
	return f
}

func rememberMeSession() *session.Session {
	return &session.Session{
		UserID:     "user-1",
		Token:      "token-1",
		ExpiresAt:  time.Now().Add(time.Hour),
		RememberMe: true,
	}
}

func TestTouchArmsTimerForRememberMeSession(t *testing.T) {
	f := setupRefresher(t, rememberMeSession())

	f.refresher.Touch()
	require.Equal(t, 1, f.timerCount())
}

func TestTouchResetsExistingTimer(t *testing.T) {
	f := setupRefresher(t, rememberMeSession())

	f.refresher.Touch()
	f.refresher.Touch()
	f.refresher.Touch()

	require.Equal(t, 1, f.timerCount(), "repeated activity reuses the one debounce timer")
	require.Equal(t, 2, f.timer(0).resets)
}

func TestTouchIgnoresSessionWithoutRememberMe(t *testing.T) {
	s := rememberMeSession()
	s.RememberMe = false
	f := setupRefresher(t, s)

	f.refresher.Touch()
	require.Zero(t, f.timerCount())
}

func TestTouchIgnoresSignedOut(t *testing.T) {
	f := setupRefresher(t, nil)

	f.refresher.Touch()
	require.Zero(t, f.timerCount())
}

func TestTouchDisarmsWhenSessionEnds(t *testing.T) {
	f := setupRefresher(t, rememberMeSession())
	f.refresher.Touch()
	require.Equal(t, 1, f.timerCount())

	f.store.mu.Lock()
	f.store.current = nil
	f.store.mu.Unlock()

	f.refresher.Touch()
	require.Equal(t, 1, f.timer(0).stops, "activity after sign-out disarms the pending timer")
}

func TestFireRefreshesOnceAndReArms(t *testing.T) {
	f := setupRefresher(t, rememberMeSession())
	f.refresher.Touch()

	f.timer(0).fire()

	require.Equal(t, 1, f.store.refreshCount())
	require.Equal(t, 2, f.timerCount(), "the refresher re-arms after firing")
}

func TestFireSkipsRefreshWhenSessionGone(t *testing.T) {
	f := setupRefresher(t, rememberMeSession())
	f.refresher.Touch()

	f.store.mu.Lock()
	f.store.current = nil
	f.store.mu.Unlock()

	f.timer(0).fire()
	require.Zero(t, f.store.refreshCount())
}

func TestFireReArmsAfterFailedRefresh(t *testing.T) {
	f := setupRefresher(t, rememberMeSession())
	f.refresher.Touch()
	f.store.refreshErr = errors.Wrap(autherr.ErrNetwork, "provider unreachable")

	f.timer(0).fire()

	require.Equal(t, 1, f.store.refreshCount())
	require.Equal(t, 2, f.timerCount(), "a failed background refresh does not kill the cycle")
}

func TestCloseDisarmsPermanently(t *testing.T) {
	f := setupRefresher(t, rememberMeSession())
	f.refresher.Touch()

	f.refresher.Close()
	require.Equal(t, 1, f.timer(0).stops)

	f.refresher.Touch()
	require.Equal(t, 1, f.timerCount(), "a closed refresher never arms again")

	f.timer(0).fire()
	require.Zero(t, f.store.refreshCount(), "a closed refresher never refreshes")
}
