package session

import (
	"time"

	"github.com/jrsteele09/go-auth-session/identity"
)

// AccessCredential is a bearer token with the absolute instant it expires.
// A zero ExpiresAt means the expiry is unknown.
type AccessCredential struct {
	Token     string
	ExpiresAt time.Time
}

// KnownExpiry reports whether ExpiresAt carries a value.
func (c AccessCredential) KnownExpiry() bool {
	return !c.ExpiresAt.IsZero()
}

// Remaining is the time left at now, zero or negative once expired or when
// the expiry is unknown.
func (c AccessCredential) Remaining(now time.Time) time.Duration {
	if !c.KnownExpiry() {
		return 0
	}
	return c.ExpiresAt.Sub(now)
}

// Usable reports whether the credential may be attached to requests at now.
// A credential with an unknown expiry is usable since a renewal is always in
// flight for it.
func (c AccessCredential) Usable(now time.Time) bool {
	if c.Token == "" {
		return false
	}
	return !c.KnownExpiry() || c.ExpiresAt.After(now)
}

// Snapshot is a consistent copy of a Manager's state.
type Snapshot struct {
	Status     Status
	Assertion  *identity.Assertion
	Credential *AccessCredential
	TakenAt    time.Time
}
