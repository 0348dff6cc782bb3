package provider

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// TokenInfo is the provider's description of an access token, as returned by
// a tokeninfo endpoint.
type TokenInfo struct {
	// AuthorizedParty is the client the token was issued to.
	// Example: "1234.apps.googleusercontent.com"
	AuthorizedParty string `json:"azp,omitempty"`

	// Audience is the intended recipient of the token.
	Audience string `json:"aud,omitempty"`

	// Subject is the account's unique ID.
	Subject string `json:"sub,omitempty"`

	// Scope is the space-separated list of granted scopes.
	// Example: "openid https://www.googleapis.com/auth/userinfo.email"
	// Note: May be less than requested if some scopes were denied
	Scope string `json:"scope,omitempty"`

	// Exp is the absolute expiry in unix seconds.
	// Example: "1700003600"
	Exp json.Number `json:"exp,omitempty"`

	// ExpiresIn is the remaining lifetime in seconds at the time of the call.
	// Example: "3542"
	ExpiresIn json.Number `json:"expires_in,omitempty"`

	// Email of the account, only present with the email scope.
	Email string `json:"email,omitempty"`

	// EmailVerified is true if the provider has verified the email address.
	// Some providers send it as the string "true".
	EmailVerified flexBool `json:"email_verified,omitempty"`

	// AccessType is "online" or "offline" (a refresh grant exists).
	AccessType string `json:"access_type,omitempty"`
}

// Scopes splits Scope.
func (t TokenInfo) Scopes() []string {
	return strings.Fields(t.Scope)
}

// Expiry returns Exp as a time, or the zero time when absent.
func (t TokenInfo) Expiry() time.Time {
	secs, err := t.Exp.Int64()
	if err != nil {
		return time.Time{}
	}
	return time.Unix(secs, 0)
}

// Remaining returns ExpiresIn as a duration.
func (t TokenInfo) Remaining() time.Duration {
	secs, err := t.ExpiresIn.Int64()
	if err != nil {
		return 0
	}
	return time.Duration(secs) * time.Second
}

type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*b = false
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	*b = flexBool(v)
	return nil
}

// Verified reports EmailVerified as a plain bool.
func (t TokenInfo) Verified() bool {
	return bool(t.EmailVerified)
}
