package server

// Route path constants
const (
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"

	// Session API
	RouteSession = "/v1/session"
	RouteToken   = "/v1/token"
	RouteLogout  = "/v1/logout"

	// Reverse proxy to the configured upstream
	RouteProxy = "/proxy/"
)
