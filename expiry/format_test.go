package expiry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openlettings/auth-gateway/expiry"
	"github.com/openlettings/auth-gateway/session"
)

func TestFormatRemaining(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		remaining time.Duration
		want      string
	}{
		{"expired exactly now", 0, "Expired"},
		{"past expiry", -time.Minute, "Expired"},
		{"under a minute floors to zero", 30 * time.Second, "0 minutes"},
		{"single minute", time.Minute, "1 minute"},
		{"minutes floor", 4*time.Minute + 59*time.Second, "4 minutes"},
		{"just under an hour", 59*time.Minute + 59*time.Second, "59 minutes"},
		{"single hour", time.Hour, "1 hour"},
		{"hours floor", 2*time.Hour + 45*time.Minute, "2 hours"},
		{"just under a day", 23*time.Hour + 59*time.Minute, "23 hours"},
		{"single day", 24 * time.Hour, "1 day"},
		{"days floor", 49 * time.Hour, "2 days"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := expiry.FormatRemaining(now.Add(tc.remaining), now)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestIsExpiringSoon(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	threshold := 5 * time.Minute

	sessionExpiringIn := func(d time.Duration) *session.Session {
		return &session.Session{ExpiresAt: now.Add(d)}
	}

	require.True(t, expiry.IsExpiringSoon(sessionExpiringIn(4*time.Minute), threshold, now))
	require.True(t, expiry.IsExpiringSoon(sessionExpiringIn(-time.Minute), threshold, now), "an already expired session is expiring soon")
	require.False(t, expiry.IsExpiringSoon(sessionExpiringIn(5*time.Minute), threshold, now), "exactly at the threshold is not inside the window")
	require.False(t, expiry.IsExpiringSoon(sessionExpiringIn(time.Hour), threshold, now))
}
