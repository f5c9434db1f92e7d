package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/openlettings/auth-gateway/profiles"
	"github.com/openlettings/auth-gateway/session"
)

// SignInPageData contains data for rendering the sign-in page
type SignInPageData struct {
	AppName  string
	Error    string
	Email    string // Preserve email on error
	ReturnTo string
}

// DashboardPageData contains data for rendering a dashboard page
type DashboardPageData struct {
	AppName   string
	Title     string
	FullName  string
	Role      string
	ExpiresAt string
}

// SignInPageHandler displays the sign-in page (GET /signin). An already
// authenticated user is sent straight to their dashboard.
func (s *Server) SignInPageHandler() http.HandlerFunc {
	signInTmpl, err := ParseTemplate("signin.html")
	if err != nil {
		s.log.Err(err).Msg("Failed to parse signin template")
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if s.store.Ready() && s.store.Current() != nil {
			if profile := s.store.CurrentProfile(); profile != nil && profile.Role.Valid() {
				http.Redirect(w, r, profile.Role.DashboardPath(), http.StatusSeeOther)
				return
			}
		}

		data := SignInPageData{
			AppName:  s.config.GetAppName(),
			Error:    r.URL.Query().Get("error"),
			Email:    r.URL.Query().Get("email"),
			ReturnTo: sanitizeReturnTo(r.URL.Query().Get("return_to")),
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := signInTmpl.Execute(w, data); err != nil {
			s.log.Err(err).Msg("Failed to render signin template")
			http.Error(w, "Failed to render sign-in page", http.StatusInternalServerError)
		}
	}
}

// SignInSubmissionHandler processes the sign-in form (POST /signin).
func (s *Server) SignInSubmissionHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	email := r.FormValue("email")
	password := r.FormValue("password")
	rememberMe := r.FormValue("remember_me") == "true"
	returnTo := sanitizeReturnTo(r.FormValue("return_to"))

	if email == "" || password == "" {
		s.redirectSignInError(w, r, "Email and password are required", email, returnTo)
		return
	}

	sess, err := s.store.SignIn(r.Context(), session.Credentials{
		Email:      email,
		Password:   password,
		RememberMe: rememberMe,
	})
	if err != nil {
		s.redirectSignInError(w, r, "Invalid email or password", email, returnTo)
		return
	}
	s.setSessionCookie(w, sess.Token, sess.ExpiresAt)

	if returnTo != "" {
		http.Redirect(w, r, returnTo, http.StatusSeeOther)
		return
	}
	if profile := s.store.CurrentProfile(); profile != nil {
		http.Redirect(w, r, profile.Role.DashboardPath(), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, RouteDashboard, http.StatusSeeOther)
}

// SignOutSubmissionHandler processes the sign-out form (POST /signout).
func (s *Server) SignOutSubmissionHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.store.SignOut(r.Context()); err != nil {
		s.log.Warn().Err(err).Msg("sign-out completed with provider error")
	}
	s.clearSessionCookie(w)
	http.Redirect(w, r, RouteSignInPage, http.StatusSeeOther)
}

// DashboardRootHandler redirects /dashboard to the caller's role dashboard.
func (s *Server) DashboardRootHandler(w http.ResponseWriter, r *http.Request) {
	profile, ok := r.Context().Value(ContextKeyProfile).(*profiles.Profile)
	if !ok {
		s.redirectToSignIn(w, r)
		return
	}
	http.Redirect(w, r, profile.Role.DashboardPath(), http.StatusSeeOther)
}

// DashboardHandler renders the dashboard page for a role.
func (s *Server) DashboardHandler(title string) http.HandlerFunc {
	dashboardTmpl, err := ParseTemplate("dashboard.html")
	if err != nil {
		s.log.Err(err).Msg("Failed to parse dashboard template")
	}

	return func(w http.ResponseWriter, r *http.Request) {
		profile, ok := r.Context().Value(ContextKeyProfile).(*profiles.Profile)
		if !ok {
			s.redirectToSignIn(w, r)
			return
		}

		data := DashboardPageData{
			AppName:  s.config.GetAppName(),
			Title:    title,
			FullName: profile.FullName,
			Role:     profile.Role.String(),
		}
		if sess := s.store.Current(); sess != nil {
			data.ExpiresAt = sess.ExpiresAt.Format("15:04 on 2 Jan 2006")
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := dashboardTmpl.Execute(w, data); err != nil {
			s.log.Err(err).Msg("Failed to render dashboard template")
			http.Error(w, "Failed to render dashboard", http.StatusInternalServerError)
		}
	}
}

func (s *Server) redirectSignInError(w http.ResponseWriter, r *http.Request, errorMsg, email, returnTo string) {
	redirectURL := RouteSignInPage + "?error=" + url.QueryEscape(errorMsg)
	if email != "" {
		redirectURL += "&email=" + url.QueryEscape(email)
	}
	if returnTo != "" {
		redirectURL += "&return_to=" + url.QueryEscape(returnTo)
	}
	http.Redirect(w, r, redirectURL, http.StatusSeeOther)
}

// sanitizeReturnTo only accepts site-relative paths, so the post-login
// redirect can never leave the application.
func sanitizeReturnTo(returnTo string) string {
	if returnTo == "" || !strings.HasPrefix(returnTo, "/") || strings.HasPrefix(returnTo, "//") {
		return ""
	}
	return returnTo
}
