package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/internal/logging"
	"github.com/jrsteele09/go-auth-session/store"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

var _ Client = (*OAuth2Client)(nil)

const defaultRetryMax = 3

// Settings describe the OAuth client registration and where the provider
// lives. When Issuer is set the endpoints are discovered; otherwise AuthURL
// and TokenURL must be given.
type Settings struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	Scopes       []string
	TokenInfoURL string

	AuthURL       string
	TokenURL      string
	RevocationURL string
}

// grantRecord is what the client persists under the refresh grant key.
type grantRecord struct {
	RefreshToken string `json:"refresh_token"`
	Hint         string `json:"hint,omitempty"`
	Subject      string `json:"sub,omitempty"`
}

// OAuth2Client issues access credentials from a stored refresh grant and
// revokes credentials at the provider's RFC 7009 endpoint.
type OAuth2Client struct {
	mu            sync.Mutex
	config        oauth2.Config
	verifier      *oidc.IDTokenVerifier
	revocationURL string
	tokenInfoURL  string

	grants   store.DurableStore
	grantKey string

	logger     zerolog.Logger
	retryMax   int
	baseClient *http.Client
	retry      *retryablehttp.Client
	httpClient *http.Client
}

// ClientOption configures an OAuth2Client.
type ClientOption func(*OAuth2Client)

// WithLogger sets the client's logger.
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *OAuth2Client) {
		c.logger = logger
	}
}

// WithRetryMax sets how often a failed provider call is retried.
func WithRetryMax(n int) ClientOption {
	return func(c *OAuth2Client) {
		c.retryMax = n
	}
}

// WithHTTPClient replaces the pooled client used underneath the retry layer.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *OAuth2Client) {
		c.baseClient = hc
	}
}

// NewOAuth2Client builds a client whose refresh grant lives next to the
// session records in records' store.
func NewOAuth2Client(ctx context.Context, settings Settings, records *store.Records, opts ...ClientOption) (*OAuth2Client, error) {
	if settings.ClientID == "" {
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "[provider NewOAuth2Client] client id is required")
	}
	if records == nil {
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "[provider NewOAuth2Client] records are required")
	}

	c := &OAuth2Client{
		config: oauth2.Config{
			ClientID:     settings.ClientID,
			ClientSecret: settings.ClientSecret,
			Scopes:       settings.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  settings.AuthURL,
				TokenURL: settings.TokenURL,
			},
		},
		revocationURL: settings.RevocationURL,
		tokenInfoURL:  settings.TokenInfoURL,
		grants:        records.Store(),
		grantKey:      records.RefreshGrantKey(),
		logger:        zerolog.Nop(),
		retryMax:      defaultRetryMax,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.retry = retryablehttp.NewClient()
	c.retry.RetryMax = c.retryMax
	c.retry.Logger = logging.Leveled{Logger: c.logger}
	c.retry.HTTPClient = c.baseClient
	if c.retry.HTTPClient == nil {
		c.retry.HTTPClient = cleanhttp.DefaultPooledClient()
	}
	c.httpClient = c.retry.StandardClient()

	if settings.Issuer != "" {
		if err := c.discover(ctx, settings.Issuer); err != nil {
			return nil, err
		}
	}
	if c.config.Endpoint.TokenURL == "" {
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "[provider NewOAuth2Client] token endpoint is required")
	}
	return c, nil
}

func (c *OAuth2Client) discover(ctx context.Context, issuer string) error {
	p, err := oidc.NewProvider(oidc.ClientContext(ctx, c.httpClient), issuer)
	if err != nil {
		return errors.Wrapf(errors.ErrInvalidConfig, "[provider discover] %s: %v", issuer, err)
	}

	var meta struct {
		RevocationEndpoint string `json:"revocation_endpoint"`
	}
	if err := p.Claims(&meta); err != nil {
		return errors.Wrapf(errors.ErrInvalidConfig, "[provider discover] metadata: %v", err)
	}

	c.config.Endpoint = p.Endpoint()
	if c.revocationURL == "" {
		c.revocationURL = meta.RevocationEndpoint
	}
	c.verifier = p.Verifier(&oidc.Config{ClientID: c.config.ClientID})
	return nil
}

func (c *OAuth2Client) httpContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// RequestAccessCredential refreshes on a new goroutine and reports through
// callback.
func (c *OAuth2Client) RequestAccessCredential(ctx context.Context, req CredentialRequest, callback IssuanceCallback) {
	go func() {
		issued, err := c.Refresh(ctx, req)
		callback(issued, err)
	}()
}

// Refresh exchanges the stored refresh grant for a new access credential.
// Concurrent refreshes are serialised so a rotated grant is never lost.
func (c *OAuth2Client) Refresh(ctx context.Context, req CredentialRequest) (IssuedCredential, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	grant, err := c.loadGrant()
	if err != nil {
		return IssuedCredential{}, fmt.Errorf("[provider Refresh] %w: %w", errors.ErrProviderIssuance, err)
	}
	if req.Hint != "" && grant.Hint != "" && !strings.EqualFold(req.Hint, grant.Hint) {
		return IssuedCredential{}, fmt.Errorf("[provider Refresh] %w: grant belongs to %q, not %q", errors.ErrProviderIssuance, grant.Hint, req.Hint)
	}

	cfg := c.config
	if len(req.Scopes) > 0 {
		cfg.Scopes = req.Scopes
	}
	tok, err := cfg.TokenSource(c.httpContext(ctx), &oauth2.Token{RefreshToken: grant.RefreshToken}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.ErrorCode == "invalid_grant" {
			// the grant was revoked elsewhere; keeping it only repeats the failure
			if rmErr := c.grants.Remove(c.grantKey); rmErr != nil {
				c.logger.Err(rmErr).Msg("Failed to remove rejected refresh grant")
			}
			return IssuedCredential{}, fmt.Errorf("[provider Refresh] %w: %w: %v", errors.ErrProviderIssuance, errors.ErrNoGrant, err)
		}
		return IssuedCredential{}, fmt.Errorf("[provider Refresh] %w: %v", errors.ErrProviderIssuance, err)
	}
	if tok.AccessToken == "" {
		return IssuedCredential{}, fmt.Errorf("[provider Refresh] %w: empty access token", errors.ErrProviderIssuance)
	}

	if tok.RefreshToken != "" && tok.RefreshToken != grant.RefreshToken {
		grant.RefreshToken = tok.RefreshToken
		if err := c.saveGrant(grant); err != nil {
			c.logger.Err(err).Msg("Failed to persist rotated refresh grant")
		}
	}

	return IssuedCredential{
		AccessToken: tok.AccessToken,
		ExpiresIn:   expiresIn(tok),
	}, nil
}

func expiresIn(tok *oauth2.Token) time.Duration {
	if tok.ExpiresIn > 0 {
		return time.Duration(tok.ExpiresIn) * time.Second
	}
	if tok.Expiry.IsZero() {
		return 0
	}
	return time.Until(tok.Expiry).Round(time.Second)
}

// RevokeAccessCredential revokes an access token. An empty token is a no-op.
func (c *OAuth2Client) RevokeAccessCredential(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return c.revoke(ctx, token, "access_token")
}

// RevokeIdentityAssertion revokes the stored refresh grant and forgets it.
// The local copy is removed even when the provider call fails.
func (c *OAuth2Client) RevokeIdentityAssertion(ctx context.Context, hint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	grant, err := c.loadGrant()
	if errors.Is(err, errors.ErrNoGrant) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(errors.ErrRevocation, "[provider RevokeIdentityAssertion] %v", err)
	}
	if hint != "" && grant.Hint != "" && !strings.EqualFold(hint, grant.Hint) {
		c.logger.Warn().Str("hint", hint).Str("grant_hint", grant.Hint).Msg("Revoking refresh grant issued for another account")
	}

	revokeErr := c.revoke(ctx, grant.RefreshToken, "refresh_token")
	if err := c.grants.Remove(c.grantKey); err != nil {
		c.logger.Err(err).Msg("Failed to remove refresh grant")
	}
	return revokeErr
}

func (c *OAuth2Client) revoke(ctx context.Context, token, tokenTypeHint string) error {
	if c.revocationURL == "" {
		return fmt.Errorf("[provider revoke] %w: %w: no revocation endpoint", errors.ErrRevocation, errors.ErrUnsupported)
	}

	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", tokenTypeHint)
	form.Set("client_id", c.config.ClientID)
	if c.config.ClientSecret != "" {
		form.Set("client_secret", c.config.ClientSecret)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.revocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrapf(errors.ErrRevocation, "[provider revoke] build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.retry.Do(req)
	if err != nil {
		return errors.Wrapf(errors.ErrRevocation, "[provider revoke] %s: %v", tokenTypeHint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Wrapf(errors.ErrRevocation, "[provider revoke] %s: status %d: %s", tokenTypeHint, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// TokenInfo asks the provider's tokeninfo endpoint to describe token.
func (c *OAuth2Client) TokenInfo(ctx context.Context, token string) (*TokenInfo, error) {
	if c.tokenInfoURL == "" {
		return nil, errors.Wrapf(errors.ErrUnsupported, "[provider TokenInfo] no tokeninfo endpoint")
	}
	u, err := url.Parse(c.tokenInfoURL)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "[provider TokenInfo] %v", err)
	}
	q := u.Query()
	q.Set("access_token", token)
	u.RawQuery = q.Encode()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "[provider TokenInfo] build request")
	}
	resp, err := c.retry.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "[provider TokenInfo]")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(errors.ErrNotFound, "[provider TokenInfo] status %d", resp.StatusCode)
	}
	var info TokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, errors.Wrapf(err, "[provider TokenInfo] decode")
	}
	return &info, nil
}

// HasGrant reports whether a refresh grant is stored.
func (c *OAuth2Client) HasGrant() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.loadGrant()
	return err == nil
}

func (c *OAuth2Client) loadGrant() (grantRecord, error) {
	raw, err := c.grants.Get(c.grantKey)
	if store.IsNotFound(err) {
		return grantRecord{}, errors.ErrNoGrant
	}
	if err != nil {
		return grantRecord{}, err
	}
	var grant grantRecord
	if err := json.Unmarshal([]byte(raw), &grant); err != nil || grant.RefreshToken == "" {
		return grantRecord{}, errors.Wrapf(errors.ErrNoGrant, "[provider loadGrant] unreadable grant")
	}
	return grant, nil
}

func (c *OAuth2Client) saveGrant(grant grantRecord) error {
	data, err := json.Marshal(grant)
	if err != nil {
		return errors.Wrapf(err, "[provider saveGrant] marshal")
	}
	return c.grants.Set(c.grantKey, string(data))
}
