package config

import (
	"slices"
	"time"
)

type OAuthConfig interface {
	GetClientID() string
	GetClientSecret() string
	GetIssuer() string
	GetScopes() []string
	GetPrompt() string
	GetRedirectPort() int
	GetTokenInfoURL() string
	GetInterceptURLPrefixes() []string
	GetRenewalLead() time.Duration
}

var validPrompts = []string{"", "none", "consent", "select_account"}

func isValidPrompt(prompt string) bool {
	return slices.Contains(validPrompts, prompt)
}

type OAuth struct {
	ClientID             string        `envconfig:"CLIENT_ID"`
	ClientSecret         string        `envconfig:"CLIENT_SECRET"`
	Issuer               string        `envconfig:"ISSUER" default:"https://accounts.google.com"`
	Scopes               []string      `envconfig:"SCOPES" default:"openid,email,profile"`
	Prompt               string        `envconfig:"PROMPT"`
	RedirectPort         int           `envconfig:"REDIRECT_PORT" default:"8085"`
	TokenInfoURL         string        `envconfig:"TOKENINFO_URL" default:"https://oauth2.googleapis.com/tokeninfo"`
	InterceptURLPrefixes []string      `envconfig:"INTERCEPT_URL_PREFIXES"`
	RenewalLead          time.Duration `envconfig:"RENEWAL_LEAD" default:"0s"`
}

var _ OAuthConfig = OAuth{}

func (o OAuth) GetClientID() string {
	return o.ClientID
}

func (o OAuth) GetClientSecret() string {
	return o.ClientSecret
}

func (o OAuth) GetIssuer() string {
	return o.Issuer
}

func (o OAuth) GetScopes() []string {
	return o.Scopes
}

// GetPrompt is the prompt used for interactive logins. Background renewals
// never prompt.
func (o OAuth) GetPrompt() string {
	return o.Prompt
}

func (o OAuth) GetRedirectPort() int {
	return o.RedirectPort
}

func (o OAuth) GetTokenInfoURL() string {
	return o.TokenInfoURL
}

func (o OAuth) GetInterceptURLPrefixes() []string {
	return o.InterceptURLPrefixes
}

// GetRenewalLead is how long before expiry a renewal is requested.
func (o OAuth) GetRenewalLead() time.Duration {
	return o.RenewalLead
}
