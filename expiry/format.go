package expiry

import (
	"fmt"
	"time"

	"github.com/openlettings/auth-gateway/session"
)

// IsExpiringSoon reports whether the session's expiry falls inside the
// threshold window measured from now.
func IsExpiringSoon(s *session.Session, threshold time.Duration, now time.Time) bool {
	return s.ExpiresAt.Sub(now) < threshold
}

// FormatRemaining renders the time left until expiresAt in whole minutes
// when under an hour remains, whole hours under a day, whole days
// otherwise. Always floors, never rounds up. Returns exactly "Expired" once
// the remaining time is zero or negative.
func FormatRemaining(expiresAt, now time.Time) string {
	remaining := expiresAt.Sub(now)
	if remaining <= 0 {
		return "Expired"
	}
	switch {
	case remaining < time.Hour:
		return pluralize(int(remaining/time.Minute), "minute")
	case remaining < 24*time.Hour:
		return pluralize(int(remaining/time.Hour), "hour")
	default:
		return pluralize(int(remaining/(24*time.Hour)), "day")
	}
}

func pluralize(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
