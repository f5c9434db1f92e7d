package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/openlettings/auth-gateway/expiry"
	"github.com/openlettings/auth-gateway/internal/autherr"
	"github.com/openlettings/auth-gateway/profiles"
	"github.com/openlettings/auth-gateway/session"
)

type signInRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type sessionResponse struct {
	UserID     string           `json:"userId"`
	Email      string           `json:"email,omitempty"`
	FullName   string           `json:"fullName,omitempty"`
	Role       string           `json:"role,omitempty"`
	ExpiresAt  time.Time        `json:"expiresAt"`
	RememberMe bool             `json:"rememberMe"`
	Dashboard  string           `json:"dashboard,omitempty"`
	Profile    *profiles.Profile `json:"profile,omitempty"`
}

type expiryResponse struct {
	State         string    `json:"state"`
	Remaining     string    `json:"remaining"`
	ExpiresAt     time.Time `json:"expiresAt"`
	RefreshFailed bool      `json:"refreshFailed,omitempty"`
}

// SignInHandler authenticates the credentials against the auth provider,
// sets the session cookie and returns the new session.
func (s *Server) SignInHandler(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeJSONError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	sess, err := s.store.SignIn(r.Context(), session.Credentials{
		Email:      req.Email,
		Password:   req.Password,
		RememberMe: req.RememberMe,
	})
	if err != nil {
		s.writeAuthError(w, err)
		return
	}

	s.setSessionCookie(w, sess.Token, sess.ExpiresAt)
	writeJSON(w, http.StatusOK, s.sessionResponse(&sess))
}

// SignOutHandler ends the session and clears the cookie. It succeeds even
// when no session is active.
func (s *Server) SignOutHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.store.SignOut(r.Context()); err != nil {
		s.log.Warn().Err(err).Msg("sign-out completed with provider error")
	}
	s.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}

// SessionHandler returns the current session and resolved profile.
func (s *Server) SessionHandler(w http.ResponseWriter, r *http.Request) {
	sess := s.store.Current()
	if sess == nil {
		writeJSONError(w, http.StatusUnauthorized, "no active session")
		return
	}
	writeJSON(w, http.StatusOK, s.sessionResponse(sess))
}

// RefreshHandler forces a token refresh and rebinds the session cookie to
// the new access token.
func (s *Server) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Refresh(r.Context())
	if err != nil {
		s.writeAuthError(w, err)
		return
	}
	s.setSessionCookie(w, sess.Token, sess.ExpiresAt)
	writeJSON(w, http.StatusOK, s.sessionResponse(&sess))
}

// ExpiryStatusHandler reports the expiry monitor's view of the session.
func (s *Server) ExpiryStatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, expiryStatusResponse(s.monitor.Status()))
}

// StayLoggedInHandler refreshes the session in response to the expiry
// warning. The cookie is rebound when the refresh succeeds; on failure the
// monitor state carries the failure flag and the warning stays up.
func (s *Server) StayLoggedInHandler(w http.ResponseWriter, r *http.Request) {
	s.monitor.StayLoggedIn(r.Context())
	status := s.monitor.Status()
	if !status.RefreshFailed {
		if sess := s.store.Current(); sess != nil {
			s.setSessionCookie(w, sess.Token, sess.ExpiresAt)
		}
	}
	writeJSON(w, http.StatusOK, expiryStatusResponse(status))
}

// DismissWarningHandler dismisses the expiry warning.
func (s *Server) DismissWarningHandler(w http.ResponseWriter, r *http.Request) {
	s.monitor.Dismiss()
	writeJSON(w, http.StatusOK, expiryStatusResponse(s.monitor.Status()))
}

// HealthHandler reports liveness and whether session recovery has finished.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"ready":  s.store.Ready(),
	})
}

func (s *Server) sessionResponse(sess *session.Session) sessionResponse {
	resp := sessionResponse{
		UserID:     sess.UserID,
		ExpiresAt:  sess.ExpiresAt,
		RememberMe: sess.RememberMe,
	}
	if profile := s.store.CurrentProfile(); profile != nil {
		resp.Email = profile.Email
		resp.FullName = profile.FullName
		resp.Role = profile.Role.String()
		resp.Dashboard = profile.Role.DashboardPath()
		resp.Profile = profile
	}
	return resp
}

func expiryStatusResponse(status expiry.Status) expiryResponse {
	return expiryResponse{
		State:         string(status.State),
		Remaining:     status.Remaining,
		ExpiresAt:     status.ExpiresAt,
		RefreshFailed: status.RefreshFailed,
	}
}

func (s *Server) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case autherr.Is(err, autherr.ErrInvalidSession):
		writeJSONError(w, http.StatusUnauthorized, "invalid credentials or session")
	case autherr.Is(err, autherr.ErrNetwork):
		writeJSONError(w, http.StatusBadGateway, "auth provider unreachable")
	case autherr.Is(err, autherr.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, "not found")
	default:
		s.log.Error().Err(err).Msg("auth operation failed")
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.GetSessionCookieName(),
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.env != "DEV",
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.GetSessionCookieName(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.env != "DEV",
		SameSite: http.SameSiteLaxMode,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
