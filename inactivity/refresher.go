// Package inactivity refreshes the session in the background after a
// configurable idle period, but only for sessions signed in with
// "remember me". Activity is reported by the server's request middleware
// (the gateway-side equivalent of pointer/key/touch/scroll listeners);
// each report resets a single debounce timer.
package inactivity

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/openlettings/auth-gateway/expiry"
)

const defaultIdlePeriod = 30 * time.Minute

// TimerHandle abstracts time.AfterFunc so tests can fire the timer
// deterministically.
type TimerHandle interface {
	Reset(d time.Duration) bool
	Stop() bool
}

// Refresher debounces activity and refreshes the session once per elapsed
// idle period, re-arming afterwards. Close clears the timer; a closed
// refresher never fires again.
type Refresher struct {
	store      expiry.Sessions
	idlePeriod time.Duration
	afterFunc  func(d time.Duration, fn func()) TimerHandle
	log        zerolog.Logger

	mu     sync.Mutex
	timer  TimerHandle
	closed bool

	refreshTimeout time.Duration
}

// RefresherOption modifies a Refresher instance.
type RefresherOption func(*Refresher)

// WithIdlePeriod sets the idle period after which a refresh fires.
func WithIdlePeriod(d time.Duration) RefresherOption {
	return func(r *Refresher) { r.idlePeriod = d }
}

// WithAfterFunc replaces the timer constructor (primarily for testing).
func WithAfterFunc(fn func(d time.Duration, f func()) TimerHandle) RefresherOption {
	return func(r *Refresher) { r.afterFunc = fn }
}

// WithLogger sets the refresher's logger.
func WithLogger(log zerolog.Logger) RefresherOption {
	return func(r *Refresher) { r.log = log }
}

// NewRefresher creates a Refresher. It arms nothing until activity is
// reported for a remember-me session.
func NewRefresher(store expiry.Sessions, options ...RefresherOption) (*Refresher, error) {
	if store == nil {
		return nil, errors.New("[NewRefresher] session store is required")
	}
	r := &Refresher{
		store:          store,
		idlePeriod:     defaultIdlePeriod,
		log:            zerolog.Nop(),
		refreshTimeout: 30 * time.Second,
	}
	r.afterFunc = func(d time.Duration, fn func()) TimerHandle {
		return time.AfterFunc(d, fn)
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// Touch reports user activity. For a remember-me session it resets the
// debounce timer; otherwise it disarms any pending timer and does nothing.
func (r *Refresher) Touch() {
	s := r.store.Current()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if s == nil || !s.RememberMe {
		r.disarmLocked()
		return
	}
	if r.timer != nil {
		r.timer.Reset(r.idlePeriod)
		return
	}
	r.timer = r.afterFunc(r.idlePeriod, r.fire)
}

// Close disarms the timer permanently. Leaked timers are a defect; every
// owner must close its refresher on teardown.
func (r *Refresher) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.disarmLocked()
}

func (r *Refresher) disarmLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// fire runs when the idle period elapses with no activity: one refresh,
// then re-arm. A failed refresh is logged and the timer still re-arms; the
// expiry monitor surfaces persistent failure to the user.
func (r *Refresher) fire() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.timer = nil
	r.mu.Unlock()

	s := r.store.Current()
	if s == nil || !s.RememberMe {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.refreshTimeout)
	defer cancel()
	if _, err := r.store.Refresh(ctx); err != nil {
		r.log.Warn().Err(err).Msg("inactivity refresh failed")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.timer != nil {
		return
	}
	r.timer = r.afterFunc(r.idlePeriod, r.fire)
}
