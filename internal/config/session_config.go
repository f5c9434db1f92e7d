package config

import "time"

type SessionConfig interface {
	GetExpiryThreshold() time.Duration
	GetExpiryPollInterval() time.Duration
	GetIdlePeriod() time.Duration
	GetDismissCooldown() time.Duration
	GetSessionCookieName() string
}

type Session struct{}

var _ SessionConfig = Session{}

// GetExpiryThreshold is the window before expiry in which the warning shows.
func (Session) GetExpiryThreshold() time.Duration {
	return getDuration("EXPIRY_THRESHOLD", 5*time.Minute)
}

// GetExpiryPollInterval is the fixed interval on which expiry is checked.
func (Session) GetExpiryPollInterval() time.Duration {
	return getDuration("EXPIRY_POLL_INTERVAL", 60*time.Second)
}

// GetIdlePeriod is the inactivity window after which a remember-me session
// is refreshed in the background.
func (Session) GetIdlePeriod() time.Duration {
	return getDuration("IDLE_PERIOD", 30*time.Minute)
}

// GetDismissCooldown is how long a dismissed warning stays suppressed when
// the expiry has not changed.
func (Session) GetDismissCooldown() time.Duration {
	return getDuration("DISMISS_COOLDOWN", 5*time.Minute)
}

func (Session) GetSessionCookieName() string {
	return GetEnv("SESSION_COOKIE_NAME", "gw_session")
}

func getDuration(envVar string, defaultValue time.Duration) time.Duration {
	v := GetEnv(envVar, "")
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}
