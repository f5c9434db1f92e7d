package profiles

import (
	"time"
)

// Role is the closed set of permission classes in the lettings platform.
// Values read from the backing store that match none of these map to
// RoleUnknown; nothing in the gateway silently downgrades an unrecognised
// role to tenant.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleLandlord    Role = "landlord"
	RoleTenant      Role = "tenant"
	RoleMaintenance Role = "maintenance"

	// RoleUnknown marks an unassigned or unrecognised role. The route guard
	// treats it as unauthenticated.
	RoleUnknown Role = "unknown"
)

// ParseRole maps a stored role string onto the closed enumeration.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleAdmin, RoleLandlord, RoleTenant, RoleMaintenance:
		return Role(s)
	}
	return RoleUnknown
}

func (r Role) String() string {
	return string(r)
}

// Valid reports whether the role is one of the assignable roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleLandlord, RoleTenant, RoleMaintenance:
		return true
	}
	return false
}

// DashboardPath returns the dashboard root a user with this role lands on.
// Returns "" for RoleUnknown.
func (r Role) DashboardPath() string {
	switch r {
	case RoleAdmin:
		return "/dashboard/admin"
	case RoleLandlord:
		return "/dashboard/landlord"
	case RoleTenant:
		return "/dashboard/tenant"
	case RoleMaintenance:
		return "/dashboard/maintenance"
	}
	return ""
}

// Profile is the application-level record describing a user, distinct from
// the bare authentication identity held by the session. Profile rows are
// created by an external sync when a user first authenticates; the gateway
// only reads them.
type Profile struct {
	ID        string    `json:"id"` // Equals the session's user ID
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      Role      `json:"role"`
	Phone     string    `json:"phone,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
