// Package expiry watches the current session's expiry on a fixed poll
// interval and drives the "your session is about to expire" warning and its
// stay-logged-in refresh.
package expiry

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/openlettings/auth-gateway/session"
)

// State of the warning machinery.
type State string

const (
	StateNormal       State = "normal"
	StateWarningShown State = "warning_shown"
	StateDismissed    State = "dismissed"
	StateRefreshing   State = "refreshing"
)

const (
	defaultThreshold       = 5 * time.Minute
	defaultPollInterval    = 60 * time.Second
	defaultDismissCooldown = 5 * time.Minute
)

// Sessions is the slice of the session store the monitor needs.
// Implemented by *session.Store.
type Sessions interface {
	Current() *session.Session
	Refresh(ctx context.Context) (session.Session, error)
}

// Status is a snapshot of the monitor for UI consumption.
type Status struct {
	State     State     `json:"state"`
	Remaining string    `json:"remaining,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`

	// RefreshFailed marks a warning re-shown after a failed stay-logged-in
	// refresh: the remaining time is stale but the user is told the refresh
	// did not go through rather than the warning being silently dropped.
	RefreshFailed bool `json:"refresh_failed,omitempty"`
}

// Monitor polls the session's expiry and runs the state machine
// {Normal, WarningShown, Dismissed, Refreshing}.
type Monitor struct {
	store     Sessions
	threshold time.Duration
	interval  time.Duration
	cooldown  time.Duration
	nowTime   func() time.Time
	tick      func(d time.Duration) (<-chan time.Time, func())
	onChange  func(Status)
	log       zerolog.Logger

	mu              sync.Mutex
	state           State
	refreshFailed   bool
	warnExpiry      time.Time // expiry the current warning was raised for
	dismissedAt     time.Time
	dismissedExpiry time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// MonitorOption modifies a Monitor instance.
type MonitorOption func(*Monitor)

// WithThreshold sets the warning window before expiry.
func WithThreshold(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.threshold = d }
}

// WithPollInterval sets the fixed polling interval.
func WithPollInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.interval = d }
}

// WithDismissCooldown sets how long a dismissal suppresses the warning when
// the expiry has not changed.
func WithDismissCooldown(d time.Duration) MonitorOption {
	return func(m *Monitor) { m.cooldown = d }
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) MonitorOption {
	return func(m *Monitor) { m.nowTime = nowFunc }
}

// WithTicker replaces the polling ticker (primarily for testing). The
// returned stop function is called when the monitor closes.
func WithTicker(tick func(d time.Duration) (<-chan time.Time, func())) MonitorOption {
	return func(m *Monitor) { m.tick = tick }
}

// WithOnChange registers a callback invoked on every state transition.
func WithOnChange(fn func(Status)) MonitorOption {
	return func(m *Monitor) { m.onChange = fn }
}

// WithMonitorLogger sets the monitor's logger.
func WithMonitorLogger(log zerolog.Logger) MonitorOption {
	return func(m *Monitor) { m.log = log }
}

// NewMonitor creates a Monitor. Call Start to begin polling.
func NewMonitor(store Sessions, options ...MonitorOption) (*Monitor, error) {
	if store == nil {
		return nil, errors.New("[NewMonitor] session store is required")
	}
	m := &Monitor{
		store:     store,
		threshold: defaultThreshold,
		interval:  defaultPollInterval,
		cooldown:  defaultDismissCooldown,
		nowTime:   time.Now,
		log:       zerolog.Nop(),
		state:     StateNormal,
		stop:      make(chan struct{}),
	}
	m.tick = func(d time.Duration) (<-chan time.Time, func()) {
		t := time.NewTicker(d)
		return t.C, t.Stop
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Start launches the polling loop.
func (m *Monitor) Start() {
	ch, stopTicker := m.tick(m.interval)
	go func() {
		defer stopTicker()
		for {
			select {
			case <-m.stop:
				return
			case <-ch:
				m.Poll()
			}
		}
	}()
}

// Close stops the polling loop. Safe to call more than once.
func (m *Monitor) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// Poll runs one expiry check. Called from the ticker loop; exported so a
// caller can force an immediate check.
func (m *Monitor) Poll() {
	now := m.nowTime()
	s := m.store.Current()

	m.mu.Lock()
	if s == nil {
		changed := m.state != StateNormal
		m.resetLocked()
		m.mu.Unlock()
		if changed {
			m.emit()
		}
		return
	}

	if m.state == StateRefreshing {
		// a stay-logged-in refresh owns the next transition
		m.mu.Unlock()
		return
	}

	soon := IsExpiringSoon(s, m.threshold, now)
	changed := false
	switch m.state {
	case StateNormal:
		if soon {
			m.warnLocked(s.ExpiresAt)
			changed = true
		}
	case StateWarningShown:
		if !soon {
			// out-of-band refresh reset the clock
			m.resetLocked()
			changed = true
		}
	case StateDismissed:
		switch {
		case !soon:
			m.resetLocked()
			changed = true
		case !s.ExpiresAt.Equal(m.dismissedExpiry) || now.Sub(m.dismissedAt) >= m.cooldown:
			m.warnLocked(s.ExpiresAt)
			changed = true
		}
	}
	m.mu.Unlock()

	if changed {
		m.emit()
	}
}

// StayLoggedIn refreshes the session on the user's behalf. On success the
// new expiry resets the clock; on failure the warning is re-shown, flagged
// as a failed refresh, with the last-known remaining time.
func (m *Monitor) StayLoggedIn(ctx context.Context) error {
	m.mu.Lock()
	m.state = StateRefreshing
	m.mu.Unlock()
	m.emit()

	_, err := m.store.Refresh(ctx)

	m.mu.Lock()
	if err != nil {
		m.state = StateWarningShown
		m.refreshFailed = true
	} else {
		m.resetLocked()
	}
	m.mu.Unlock()
	m.emit()

	if err != nil {
		return errors.Wrap(err, "[Monitor.StayLoggedIn] store.Refresh")
	}
	return nil
}

// Dismiss hides the warning. The monitor returns to Normal automatically
// once the expiry changes, or re-raises the warning after the cooldown so a
// dismissal never suppresses it permanently.
func (m *Monitor) Dismiss() {
	m.mu.Lock()
	if m.state != StateWarningShown {
		m.mu.Unlock()
		return
	}
	m.state = StateDismissed
	m.dismissedAt = m.nowTime()
	m.dismissedExpiry = m.warnExpiry
	m.refreshFailed = false
	m.mu.Unlock()
	m.emit()
}

// Status returns a snapshot for UI consumption.
func (m *Monitor) Status() Status {
	now := m.nowTime()
	s := m.store.Current()

	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{State: m.state, RefreshFailed: m.refreshFailed}
	switch {
	case s != nil:
		st.ExpiresAt = s.ExpiresAt
		st.Remaining = FormatRemaining(s.ExpiresAt, now)
	case !m.warnExpiry.IsZero() && m.state == StateWarningShown:
		st.ExpiresAt = m.warnExpiry
		st.Remaining = FormatRemaining(m.warnExpiry, now)
	}
	return st
}

func (m *Monitor) warnLocked(expiresAt time.Time) {
	m.state = StateWarningShown
	m.warnExpiry = expiresAt
	m.refreshFailed = false
}

func (m *Monitor) resetLocked() {
	m.state = StateNormal
	m.refreshFailed = false
	m.warnExpiry = time.Time{}
	m.dismissedAt = time.Time{}
	m.dismissedExpiry = time.Time{}
}

func (m *Monitor) emit() {
	if m.onChange == nil {
		return
	}
	m.onChange(m.Status())
}
