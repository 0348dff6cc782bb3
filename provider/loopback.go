package provider

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-session/identity"
	"github.com/jrsteele09/go-auth-session/internal/errors"
	"golang.org/x/oauth2"
)

// CallbackPath is where the loopback listener receives the authorization code.
const CallbackPath = "/callback"

// LoginOptions tune an interactive loopback login.
type LoginOptions struct {
	// Port on 127.0.0.1 to listen on. Zero picks a free port, which only
	// works with providers that allow any loopback port.
	Port int

	Prompt PromptMode
	Hint   string
	Scopes []string

	// Announce receives the authorization URL the user has to open.
	Announce func(authURL string)
}

// LoginResult is the outcome of a successful interactive login.
type LoginResult struct {
	RawIDToken string
	Assertion  *identity.Assertion
	// Credential is the access token issued with the code exchange, nil when
	// the provider returned none.
	Credential *IssuedCredential
	// HasGrant is false when no refresh grant for this account is stored, in
	// which case background renewal cannot work until the user consents again.
	HasGrant bool
}

type callbackResult struct {
	code string
	err  error
}

// Login runs the authorization code flow with PKCE against a listener on the
// loopback interface. On success the refresh grant is stored for later
// renewals and the raw id token is returned for the session manager.
func (c *OAuth2Client) Login(ctx context.Context, opts LoginOptions) (*LoginResult, error) {
	if c.config.Endpoint.AuthURL == "" {
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "[provider Login] authorization endpoint is required")
	}

	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(opts.Port)))
	if err != nil {
		return nil, errors.Wrapf(err, "[provider Login] listen")
	}
	port := ln.Addr().(*net.TCPAddr).Port

	cfg := c.config
	cfg.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d%s", port, CallbackPath)
	if len(opts.Scopes) > 0 {
		cfg.Scopes = opts.Scopes
	}

	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()
	nonce := uuid.NewString()
	authOpts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
		oidc.Nonce(nonce),
	}
	if opts.Prompt != PromptNone {
		authOpts = append(authOpts, oauth2.SetAuthURLParam("prompt", string(opts.Prompt)))
	}
	if opts.Hint != "" {
		authOpts = append(authOpts, oauth2.SetAuthURLParam("login_hint", opts.Hint))
	}
	authURL := cfg.AuthCodeURL(state, authOpts...)

	results := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(CallbackPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "Unknown login attempt.", http.StatusBadRequest)
			return
		}

		var res callbackResult
		switch {
		case q.Get("error") != "":
			res.err = fmt.Errorf("[provider Login] %w: %s %s", errors.ErrProviderIssuance, q.Get("error"), q.Get("error_description"))
		case q.Get("code") == "":
			res.err = fmt.Errorf("[provider Login] %w: callback without code", errors.ErrProviderIssuance)
		default:
			res.code = q.Get("code")
		}

		if res.err != nil {
			http.Error(w, "Login failed. You can close this window.", http.StatusBadRequest)
		} else {
			fmt.Fprintln(w, "Login complete. You can close this window.")
		}
		select {
		case results <- res:
		default:
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			c.logger.Err(err).Msg("Loopback listener stopped")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if opts.Announce != nil {
		opts.Announce(authURL)
	}
	c.logger.Debug().Int("port", port).Msg("Waiting for authorization callback")

	var res callbackResult
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-results:
	}
	if res.err != nil {
		return nil, res.err
	}

	tok, err := cfg.Exchange(c.httpContext(ctx), res.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("[provider Login] %w: exchange: %v", errors.ErrProviderIssuance, err)
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, fmt.Errorf("[provider Login] %w: no id_token in token response", errors.ErrProviderIssuance)
	}
	if c.verifier != nil {
		idToken, err := c.verifier.Verify(ctx, rawIDToken)
		if err != nil {
			return nil, fmt.Errorf("[provider Login] %w: %v", errors.ErrInvalidAssertionFormat, err)
		}
		if idToken.Nonce != nonce {
			return nil, fmt.Errorf("[provider Login] %w: nonce mismatch", errors.ErrInvalidAssertionFormat)
		}
	}

	assertion, err := identity.Decode(rawIDToken)
	if err != nil {
		return nil, err
	}

	result := &LoginResult{RawIDToken: rawIDToken, Assertion: assertion}
	if tok.AccessToken != "" {
		result.Credential = &IssuedCredential{AccessToken: tok.AccessToken, ExpiresIn: expiresIn(tok)}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if tok.RefreshToken == "" {
		result.HasGrant = c.keepGrantFor(assertion)
		if !result.HasGrant {
			c.logger.Warn().Str("sub", assertion.Subject).Msg("Provider issued no refresh token; log in with prompt=consent to enable renewal")
		}
		return result, nil
	}

	if err := c.saveGrant(grantRecord{RefreshToken: tok.RefreshToken, Hint: assertion.Email, Subject: assertion.Subject}); err != nil {
		return nil, errors.Wrapf(err, "[provider Login] store refresh grant")
	}
	result.HasGrant = true
	return result, nil
}

// keepGrantFor reports whether the stored grant belongs to assertion's
// subject. A grant left behind by another account is removed so renewals
// for the new account fail fast with ErrNoGrant.
func (c *OAuth2Client) keepGrantFor(assertion *identity.Assertion) bool {
	grant, err := c.loadGrant()
	if err != nil {
		return false
	}
	if grant.Subject == assertion.Subject {
		return true
	}
	c.logger.Info().Str("sub", assertion.Subject).Str("grant_sub", grant.Subject).Msg("Removing refresh grant of another account")
	if err := c.grants.Remove(c.grantKey); err != nil {
		c.logger.Err(err).Msg("Failed to remove refresh grant")
	}
	return false
}
