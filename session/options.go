package session

import (
	"context"
	"time"

	"github.com/jrsteele09/go-auth-session/events"
	"github.com/jrsteele09/go-auth-session/internal/clock"
	"github.com/jrsteele09/go-auth-session/provider"
	"github.com/rs/zerolog"
)

// DefaultRetryDelay is how long the manager waits before asking again after
// a failed issuance left it without a usable credential.
const DefaultRetryDelay = 30 * time.Second

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithLogger sets the manager's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithBroadcaster makes the manager emit login and logout events on b.
func WithBroadcaster(b *events.Broadcaster) Option {
	return func(m *Manager) {
		m.events = b
	}
}

// WithScopes sets the scopes requested with every access credential.
func WithScopes(scopes ...string) Option {
	return func(m *Manager) {
		m.scopes = append([]string(nil), scopes...)
	}
}

// WithPrompt sets the prompt for the request that directly follows an
// interactive login. Background renewals never prompt.
func WithPrompt(prompt provider.PromptMode) Option {
	return func(m *Manager) {
		m.prompt = prompt
	}
}

// WithRenewalLead renews this long before the credential expires.
func WithRenewalLead(lead time.Duration) Option {
	return func(m *Manager) {
		if lead > 0 {
			m.lead = lead
		}
	}
}

// WithRetryDelay sets the pause before re-requesting after a failed or
// unusable issuance. Non-positive values keep the default.
func WithRetryDelay(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.retryDelay = d
		}
	}
}

// WithMetrics replaces the default prometheus instruments.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithContext sets the context handed to background provider requests. It is
// cancelled by Close.
func WithContext(ctx context.Context) Option {
	return func(m *Manager) {
		m.parent = ctx
	}
}
