package identity

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-session/internal/errors"
)

// Assertion is the decoded claim set of a provider-issued identity token.
// Field names follow the OpenID Connect claim names so the persisted JSON is
// the claim set itself. Numeric dates keep the provider's literal text so a
// decode, persist and restore cycle reproduces the record field for field.
type Assertion struct {
	Issuer          string      `json:"iss,omitempty"`            // The JWT's issuer
	NotBefore       json.Number `json:"nbf,omitempty"`            // Unix timestamp before which the assertion is not valid
	Audience        string      `json:"aud,omitempty"`            // The client ID the assertion was issued to
	Subject         string      `json:"sub,omitempty"`            // The unique ID of the user's account
	HostedDomain    string      `json:"hd,omitempty"`             // Hosted domain of the user's organisation, if any
	Email           string      `json:"email,omitempty"`          // The user's email address
	EmailVerified   bool        `json:"email_verified,omitempty"` // True if the provider has verified the email address
	AuthorizedParty string      `json:"azp,omitempty"`            // The client that requested the assertion
	Name            string      `json:"name,omitempty"`
	Picture         string      `json:"picture,omitempty"` // URL of the user's profile picture
	GivenName       string      `json:"given_name,omitempty"`
	FamilyName      string      `json:"family_name,omitempty"`
	IssuedAt        json.Number `json:"iat,omitempty"` // Unix timestamp of the assertion's creation time
	ExpiresAt       json.Number `json:"exp,omitempty"` // Unix timestamp of the assertion's expiration time
	TokenID         string      `json:"jti,omitempty"`
}

// Decode parses a signed identity token without verifying its signature.
// Trust in the token comes from the provider's client library that handed it
// over, so only the structure is checked here. A token that cannot be decoded
// or that carries no subject is rejected with ErrInvalidAssertionFormat.
func Decode(rawToken string) (*Assertion, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, errors.Wrapf(errors.ErrInvalidAssertionFormat, "empty token")
	}

	token, _, err := jwtlib.NewParser(jwtlib.WithJSONNumber()).ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidAssertionFormat, "parse token: %v", err)
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errors.Wrapf(errors.ErrInvalidAssertionFormat, "error extracting claims")
	}

	assertion := FromClaims(claims)
	if err := assertion.Validate(); err != nil {
		return nil, err
	}
	return assertion, nil
}

// Validate checks what persisting and reusing an assertion depends on: a
// subject, and numeric date claims that are either empty or JSON numbers.
func (a *Assertion) Validate() error {
	if a.Subject == "" {
		return errors.Wrapf(errors.ErrInvalidAssertionFormat, "missing sub claim")
	}
	for name, n := range map[string]json.Number{"nbf": a.NotBefore, "iat": a.IssuedAt, "exp": a.ExpiresAt} {
		if n != "" && !validNumber(string(n)) {
			return errors.Wrapf(errors.ErrInvalidAssertionFormat, "%s claim %q is not a number", name, string(n))
		}
	}
	return nil
}

// FromClaims builds an Assertion from an already decoded claim map. Unknown
// claims are ignored and claims of an unexpected type are left empty.
func FromClaims(claims map[string]any) *Assertion {
	return &Assertion{
		Issuer:          stringClaim(claims["iss"]),
		NotBefore:       numberClaim(claims["nbf"]),
		Audience:        audienceClaim(claims["aud"]),
		Subject:         stringClaim(claims["sub"]),
		HostedDomain:    stringClaim(claims["hd"]),
		Email:           stringClaim(claims["email"]),
		EmailVerified:   boolClaim(claims["email_verified"]),
		AuthorizedParty: stringClaim(claims["azp"]),
		Name:            stringClaim(claims["name"]),
		Picture:         stringClaim(claims["picture"]),
		GivenName:       stringClaim(claims["given_name"]),
		FamilyName:      stringClaim(claims["family_name"]),
		IssuedAt:        numberClaim(claims["iat"]),
		ExpiresAt:       numberClaim(claims["exp"]),
		TokenID:         stringClaim(claims["jti"]),
	}
}

// Unmarshal restores an Assertion from its persisted JSON form.
func Unmarshal(data []byte) (*Assertion, error) {
	var a Assertion
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidAssertionFormat, "unmarshal assertion: %v", err)
	}
	return &a, nil
}

// Marshal returns the persisted JSON form of the assertion.
func (a *Assertion) Marshal() ([]byte, error) {
	return json.Marshal(a)
}

// Expiry returns the assertion's exp claim, or the zero time when absent.
func (a *Assertion) Expiry() time.Time {
	return unixTime(a.ExpiresAt)
}

// Issued returns the assertion's iat claim, or the zero time when absent.
func (a *Assertion) Issued() time.Time {
	return unixTime(a.IssuedAt)
}

// DisplayName prefers the full name, then given/family names, then the email.
func (a *Assertion) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	if full := strings.TrimSpace(a.GivenName + " " + a.FamilyName); full != "" {
		return full
	}
	if a.Email != "" {
		return a.Email
	}
	return a.Subject
}

func unixTime(n json.Number) time.Time {
	if n == "" {
		return time.Time{}
	}
	if secs, err := n.Int64(); err == nil {
		return time.Unix(secs, 0)
	}
	if secs, err := n.Float64(); err == nil {
		return time.Unix(int64(secs), 0)
	}
	return time.Time{}
}

func stringClaim(v any) string {
	s, _ := v.(string)
	return s
}

func numberClaim(v any) json.Number {
	switch n := v.(type) {
	case json.Number:
		return n
	case string:
		if validNumber(n) {
			return json.Number(n)
		}
	case float64:
		return json.Number(strconv.FormatFloat(n, 'f', -1, 64))
	case int64:
		return json.Number(strconv.FormatInt(n, 10))
	}
	return ""
}

// validNumber rejects what ParseFloat accepts but JSON does not, such as
// "Inf" or hex floats.
func validNumber(s string) bool {
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return false
	}
	return json.Valid([]byte(s))
}

// Some providers send email_verified as the string "true".
func boolClaim(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, _ := strconv.ParseBool(b)
		return parsed
	}
	return false
}

func audienceClaim(v any) string {
	switch aud := v.(type) {
	case string:
		return aud
	case []any:
		parts := make([]string, 0, len(aud))
		for _, a := range aud {
			if s, ok := a.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	case []string:
		return strings.Join(aud, " ")
	}
	return ""
}
