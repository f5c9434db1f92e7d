package server

import (
	"net/http"

	"github.com/openlettings/auth-gateway/profiles"
)

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, RouteDashboard, http.StatusSeeOther)
	})

	// Sign-in / sign-out flow
	s.RegisterRouteHandler("GET "+RouteSignInPage, ChainMiddleware(s.SignInPageHandler(), s.HTMLMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteSignInPage, ChainMiddleware(s.SignInSubmissionHandler, s.HTMLMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteSignOutPage, ChainMiddleware(s.SignOutSubmissionHandler, s.HTMLMiddleware()...))

	// Session JSON API
	s.RegisterRouteHandler("POST "+RouteAPISignIn, ChainMiddleware(s.SignInHandler, s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAPISignOut, ChainMiddleware(s.SignOutHandler, s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAPISession, ChainMiddleware(s.SessionHandler, s.APIMiddleware(s.RequireSessionAPI())...))
	s.RegisterRouteHandler("POST "+RouteAPIRefresh, ChainMiddleware(s.RefreshHandler, s.APIMiddleware(s.RequireSessionAPI())...))

	// Expiry warning API
	s.RegisterRouteHandler("GET "+RouteAPIExpiry, ChainMiddleware(s.ExpiryStatusHandler, s.APIMiddleware(s.RequireSessionAPI())...))
	s.RegisterRouteHandler("POST "+RouteAPIExpiryStay, ChainMiddleware(s.StayLoggedInHandler, s.APIMiddleware(s.RequireSessionAPI())...))
	s.RegisterRouteHandler("POST "+RouteAPIExpiryDismiss, ChainMiddleware(s.DismissWarningHandler, s.APIMiddleware(s.RequireSessionAPI())...))

	// Dashboards (require session + role)
	s.RegisterRouteHandler("GET "+RouteDashboard, ChainMiddleware(s.DashboardRootHandler, s.HTMLMiddleware(s.RequireSession())...))
	s.RegisterRouteHandler("GET "+RouteDashboardAdmin, ChainMiddleware(s.DashboardHandler("Admin Dashboard"), s.HTMLMiddleware(s.RequireSession(), s.RequireRoles(profiles.RoleAdmin))...))
	s.RegisterRouteHandler("GET "+RouteDashboardLandlord, ChainMiddleware(s.DashboardHandler("Landlord Dashboard"), s.HTMLMiddleware(s.RequireSession(), s.RequireRoles(profiles.RoleLandlord, profiles.RoleAdmin))...))
	s.RegisterRouteHandler("GET "+RouteDashboardTenant, ChainMiddleware(s.DashboardHandler("Tenant Dashboard"), s.HTMLMiddleware(s.RequireSession(), s.RequireRoles(profiles.RoleTenant))...))
	s.RegisterRouteHandler("GET "+RouteDashboardMaintenance, ChainMiddleware(s.DashboardHandler("Maintenance Dashboard"), s.HTMLMiddleware(s.RequireSession(), s.RequireRoles(profiles.RoleMaintenance, profiles.RoleAdmin))...))

	// Health
	s.RegisterRouteHandler("GET "+RouteHealth, ChainMiddleware(s.HealthHandler, s.APIMiddleware()...))

	// Provider auth-event webhook (hosted backend only)
	if s.webhook != nil {
		s.RegisterRouteHandler("POST "+RouteInternalAuthEvents, ChainMiddleware(s.webhook, s.APIMiddleware()...))
	}
}
