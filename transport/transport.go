// Package transport attaches the session's bearer token to outgoing HTTP
// requests whose URL starts with one of a configured set of prefixes.
package transport

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// CredentialSource supplies the current bearer token. *session.Manager
// satisfies it.
type CredentialSource interface {
	AccessCredential() (string, bool)
}

// Transport is an http.RoundTripper adding "Authorization: Bearer <token>"
// to requests for allow-listed URL prefixes. Requests that match no prefix,
// or made while no credential is available, pass through untouched.
type Transport struct {
	base     http.RoundTripper
	source   CredentialSource
	prefixes []string
	logger   zerolog.Logger
}

// Option configures a Transport.
type Option func(*Transport)

// WithBase sets the wrapped round tripper. The default is
// http.DefaultTransport.
func WithBase(base http.RoundTripper) Option {
	return func(t *Transport) {
		if base != nil {
			t.base = base
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// New wraps source with the given URL prefixes. Empty prefixes are ignored.
func New(source CredentialSource, prefixes []string, opts ...Option) *Transport {
	t := &Transport{
		base:   http.DefaultTransport,
		source: source,
		logger: zerolog.Nop(),
	}
	for _, p := range prefixes {
		if p != "" {
			t.prefixes = append(t.prefixes, p)
		}
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Client returns an *http.Client using t.
func (t *Transport) Client() *http.Client {
	return &http.Client{Transport: t}
}

// Prefixes returns the configured allow-list.
func (t *Transport) Prefixes() []string {
	return append([]string(nil), t.prefixes...)
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !MatchesAnyPrefix(req.URL.String(), t.prefixes) {
		return t.base.RoundTrip(req)
	}
	token, ok := t.source.AccessCredential()
	if !ok {
		t.logger.Debug().Str("url", req.URL.Redacted()).Msg("No access credential, sending request unauthenticated")
		return t.base.RoundTrip(req)
	}

	// RoundTrippers must not modify the caller's request.
	authed := req.Clone(req.Context())
	authed.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(authed)
}

// MatchesAnyPrefix reports whether url starts with at least one prefix. The
// comparison is a case-sensitive string prefix match.
func MatchesAnyPrefix(url string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}
