package server

import (
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/openlettings/auth-gateway/expiry"
	"github.com/openlettings/auth-gateway/inactivity"
	"github.com/openlettings/auth-gateway/internal/config"
	"github.com/openlettings/auth-gateway/session"
)

// Server is the gateway's HTTP surface: the sign-in flow, the session/expiry
// JSON API, and the role-gated dashboard routes.
type Server struct {
	env       string
	mux       *http.ServeMux
	routes    []string
	config    config.Config
	store     *session.Store
	monitor   *expiry.Monitor
	refresher *inactivity.Refresher
	webhook   http.HandlerFunc // provider auth-event webhook, nil unless hosted backend
	log       zerolog.Logger
}

// ServerOption modifies a Server instance.
type ServerOption func(*Server)

// WithProviderWebhook mounts the hosted provider's auth-event webhook on an
// internal route.
func WithProviderWebhook(h http.HandlerFunc) ServerOption {
	return func(s *Server) { s.webhook = h }
}

// WithServerLogger sets the server's logger.
func WithServerLogger(log zerolog.Logger) ServerOption {
	return func(s *Server) { s.log = log }
}

func New(cfg config.Config, store *session.Store, monitor *expiry.Monitor, refresher *inactivity.Refresher, options ...ServerOption) (*Server, error) {
	if store == nil {
		return nil, errors.New("[server.New] session store is required")
	}
	if monitor == nil {
		return nil, errors.New("[server.New] expiry monitor is required")
	}
	if refresher == nil {
		return nil, errors.New("[server.New] inactivity refresher is required")
	}

	s := &Server{
		mux:       http.NewServeMux(),
		config:    cfg,
		store:     store,
		monitor:   monitor,
		refresher: refresher,
		log:       zerolog.Nop(),
	}
	s.env = cfg.GetEnv()
	for _, opt := range options {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	for _, route := range s.routes {
		s.log.Debug().Str("route", route).Msg("registered")
	}
}
