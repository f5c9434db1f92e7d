package server

const (
	RouteHealth = "/healthz"

	RouteSignInPage  = "/signin"
	RouteSignOutPage = "/signout"

	RouteAPISignIn        = "/api/auth/signin"
	RouteAPISignOut       = "/api/auth/signout"
	RouteAPISession       = "/api/auth/session"
	RouteAPIRefresh       = "/api/auth/refresh"
	RouteAPIExpiry        = "/api/auth/expiry"
	RouteAPIExpiryStay    = "/api/auth/expiry/stay"
	RouteAPIExpiryDismiss = "/api/auth/expiry/dismiss"

	RouteInternalAuthEvents = "/internal/auth/events"

	RouteDashboard            = "/dashboard"
	RouteDashboardAdmin       = "/dashboard/admin"
	RouteDashboardLandlord    = "/dashboard/landlord"
	RouteDashboardTenant      = "/dashboard/tenant"
	RouteDashboardMaintenance = "/dashboard/maintenance"
)
