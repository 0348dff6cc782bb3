// Package events is the one-way notification channel from the session manager
// to its consumers. Delivery is synchronous, in subscription order, on the
// goroutine that emits; nothing is buffered for late subscribers.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-session/identity"
)

// Kind identifies a session lifecycle event.
type Kind string

const (
	// KindLogin is emitted after a fresh identity assertion was accepted.
	KindLogin Kind = "login"
	// KindLogout is emitted after the session was torn down.
	KindLogout Kind = "logout"
)

// Event is a single session lifecycle notification. Assertion is only set
// for KindLogin.
type Event struct {
	ID         uuid.UUID
	Kind       Kind
	Assertion  *identity.Assertion
	OccurredAt time.Time
}

// NewLogin creates a login event for assertion.
func NewLogin(assertion *identity.Assertion, at time.Time) Event {
	return Event{
		ID:         uuid.New(),
		Kind:       KindLogin,
		Assertion:  assertion,
		OccurredAt: at,
	}
}

// NewLogout creates a logout event.
func NewLogout(at time.Time) Event {
	return Event{
		ID:         uuid.New(),
		Kind:       KindLogout,
		OccurredAt: at,
	}
}
