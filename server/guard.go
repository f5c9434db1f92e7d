package server

import (
	"context"
	"net/http"
	"net/url"

	"github.com/openlettings/auth-gateway/profiles"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyUserID stores the authenticated user ID
	ContextKeyUserID ContextKey = "user_id"
	// ContextKeyProfile stores the resolved profile
	ContextKeyProfile ContextKey = "profile"
)

// RequireSession guards browser routes. Unauthenticated requests are
// redirected to sign-in with the originally requested path preserved for
// the post-login return; requests arriving before the store has finished
// initializing get a neutral loading response, never a premature redirect.
// A session whose profile could not be resolved, or whose role is
// unassigned, is treated as unauthenticated: the guard fails closed.
func (s *Server) RequireSession() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !s.store.Ready() {
				s.loadingResponse(w)
				return
			}

			sess := s.store.Current()
			if sess == nil {
				s.redirectToSignIn(w, r)
				return
			}

			// The browser must present the cookie bound to the active
			// session.
			cookie, err := r.Cookie(s.config.GetSessionCookieName())
			if err != nil || cookie.Value != sess.Token {
				s.redirectToSignIn(w, r)
				return
			}

			profile := s.store.CurrentProfile()
			if profile == nil || !profile.Role.Valid() {
				s.redirectToSignIn(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUserID, sess.UserID)
			ctx = context.WithValue(ctx, ContextKeyProfile, profile)
			next(w, r.WithContext(ctx))
		}
	}
}

// RequireRoles guards a browser route with an allow-list. A user whose role
// is not in the list is redirected to their own dashboard root. Chain after
// RequireSession.
func (s *Server) RequireRoles(allowed ...profiles.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			profile, ok := r.Context().Value(ContextKeyProfile).(*profiles.Profile)
			if !ok {
				s.redirectToSignIn(w, r)
				return
			}
			for _, role := range allowed {
				if profile.Role == role {
					next(w, r)
					return
				}
			}
			http.Redirect(w, r, profile.Role.DashboardPath(), http.StatusSeeOther)
		}
	}
}

// RequireSessionAPI is the JSON counterpart of RequireSession: 401 instead
// of a redirect, 503 while the store is still initializing.
func (s *Server) RequireSessionAPI() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !s.store.Ready() {
				w.Header().Set("Retry-After", "1")
				writeJSONError(w, http.StatusServiceUnavailable, "initializing")
				return
			}

			sess := s.store.Current()
			if sess == nil {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			cookie, err := r.Cookie(s.config.GetSessionCookieName())
			if err != nil || cookie.Value != sess.Token {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			profile := s.store.CurrentProfile()
			if profile == nil || !profile.Role.Valid() {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUserID, sess.UserID)
			ctx = context.WithValue(ctx, ContextKeyProfile, profile)
			next(w, r.WithContext(ctx))
		}
	}
}

// RequireRolesAPI is the JSON counterpart of RequireRoles: 403 instead of a
// redirect. Chain after RequireSessionAPI.
func (s *Server) RequireRolesAPI(allowed ...profiles.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			profile, ok := r.Context().Value(ContextKeyProfile).(*profiles.Profile)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			for _, role := range allowed {
				if profile.Role == role {
					next(w, r)
					return
				}
			}
			writeJSONError(w, http.StatusForbidden, "forbidden")
		}
	}
}

func (s *Server) redirectToSignIn(w http.ResponseWriter, r *http.Request) {
	target := RouteSignInPage
	if r.URL.Path != "" && r.URL.Path != RouteSignInPage {
		returnTo := r.URL.Path
		if r.URL.RawQuery != "" {
			returnTo += "?" + r.URL.RawQuery
		}
		target += "?return_to=" + url.QueryEscape(returnTo)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) loadingResponse(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte(`<!doctype html><title>Loading</title><p>Loading&hellip;</p>`))
}
