package autherr

import (
	"errors"
)

// Failure taxonomy shared by the session store, profile resolver, and the
// backend clients. Expected conditions (no session, no profile row) are not
// errors and are reported as zero values by the components themselves.
var (
	// ErrNetwork covers transport-level failures: timeouts, refused
	// connections, backend 5xx responses.
	ErrNetwork = errors.New("network error")

	// ErrInvalidSession covers backend rejections of the presented session
	// or refresh token (401/403, revoked or expired token).
	ErrInvalidSession = errors.New("invalid session")

	// ErrNotFound marks a missing row where the caller asked for a specific
	// record. The profile resolver converts this to a nil profile at its
	// public boundary.
	ErrNotFound = errors.New("not found")

	// ErrUnknown covers everything the backend reported that fits no other
	// category.
	ErrUnknown = errors.New("unknown error")
)

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}
