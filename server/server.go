package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/jrsteele09/go-auth-session/events"
	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/jrsteele09/go-auth-session/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SessionManager is the part of *session.Manager the agent serves.
type SessionManager interface {
	Snapshot() session.Snapshot
	AccessCredential() (string, bool)
	Logout(ctx context.Context)
	Events() *events.Broadcaster
}

var _ SessionManager = (*session.Manager)(nil)

// Server is the local session agent: a small HTTP API over a session manager
// plus an optional reverse proxy that signs requests with the session's
// bearer token.
type Server struct {
	env          string
	mux          *http.ServeMux
	routes       []string
	manager      SessionManager
	gatherer     prometheus.Gatherer
	proxy        http.Handler
	logger       zerolog.Logger
	subscription *events.Subscription
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGatherer sets where /metrics reads from. The default is the process
// wide prometheus registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

func New(cfg config.Config, manager SessionManager, opts ...Option) (*Server, error) {
	if manager == nil {
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "[Server New] session manager is required")
	}

	s := &Server{
		env:      cfg.GetEnv(),
		mux:      http.NewServeMux(),
		manager:  manager,
		gatherer: prometheus.DefaultGatherer,
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	if upstream := cfg.GetProxyUpstream(); upstream != "" {
		proxy, err := s.newProxy(upstream, cfg.GetInterceptURLPrefixes())
		if err != nil {
			return nil, fmt.Errorf("[Server New] failed to create proxy: %w", err)
		}
		s.proxy = proxy
	}

	s.subscription = manager.Events().Subscribe(s.onSessionEvent)
	s.initRoutes()
	s.logRoutes()

	return s, nil
}

// newProxy forwards to upstream through a transport that adds the bearer
// token. Without explicit prefixes the upstream itself is the allow-list.
func (s *Server) newProxy(upstream string, prefixes []string) (http.Handler, error) {
	target, err := url.Parse(upstream)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "invalid proxy upstream %q", upstream)
	}
	if len(prefixes) == 0 {
		prefixes = []string{strings.TrimSuffix(target.String(), "/") + "/"}
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = transport.New(s.manager, prefixes,
		transport.WithBase(cleanhttp.DefaultPooledTransport()),
		transport.WithLogger(s.logger),
	)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		s.logger.Err(err).Str("path", r.URL.Path).Msg("Proxy request failed")
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}
	return http.StripPrefix(strings.TrimSuffix(RouteProxy, "/"), proxy), nil
}

func (s *Server) onSessionEvent(e events.Event) {
	switch e.Kind {
	case events.KindLogin:
		s.logger.Info().Str("event_id", e.ID.String()).Str("sub", e.Assertion.Subject).Msg("Session login")
	case events.KindLogout:
		s.logger.Info().Str("event_id", e.ID.String()).Msg("Session logout")
	}
}

// Close detaches the server from the session's events.
func (s *Server) Close() {
	s.subscription.Unsubscribe()
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

// Routes lists the registered patterns.
func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			s.logRoute(parts[0], parts[1])
		} else {
			s.logRoute("", parts[0])
		}
	}
}

func (s *Server) logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = gray
	}
	s.logger.Info().Msgf("[%-19s] %s", color+paddedMethod+resetColor, path)
}
