package provider

import (
	"context"
	"time"
)

// PromptMode controls whether the identity provider may show interactive UI
// while issuing an access credential.
type PromptMode string

const (
	// PromptNone is the empty prompt: the provider decides, and for an account
	// that already consented it issues silently.
	// Used in: every background renewal, so a timer firing never pops a dialog.
	PromptNone PromptMode = ""

	// PromptNoUI forbids any interaction; the request fails instead.
	// Example: prompt=none
	PromptNoUI PromptMode = "none"

	// PromptConsent forces the consent screen even if consent was given before.
	// Used in: first logins that need a refresh grant issued again.
	// Example: prompt=consent
	PromptConsent PromptMode = "consent"

	// PromptSelectAccount shows the account chooser.
	// Example: prompt=select_account
	PromptSelectAccount PromptMode = "select_account"
)

// CredentialRequest asks the provider for a new access credential.
type CredentialRequest struct {
	// Hint is the account (usually the email of the current identity) the
	// credential should be issued for. It lets the provider re-authorise
	// silently instead of asking which account to use.
	Hint string

	// Prompt is PromptNone for background renewals.
	Prompt PromptMode

	// Scopes requested for the credential. Empty means the client's defaults.
	Scopes []string
}

// IssuedCredential is a successfully issued access credential.
type IssuedCredential struct {
	// AccessToken is the opaque bearer string.
	// Usage: Include in Authorization header: "Bearer <access_token>"
	AccessToken string

	// ExpiresIn is the lifetime the provider announced at issuance.
	// Example: 3599s
	ExpiresIn time.Duration
}

// IssuanceCallback receives the outcome of RequestAccessCredential. Exactly one
// of the credential or the error is meaningful.
type IssuanceCallback func(IssuedCredential, error)

// Client is the identity provider as seen by the session manager.
type Client interface {
	// RequestAccessCredential starts an issuance and returns immediately. The
	// outcome is delivered later, possibly on another goroutine, through
	// callback. No ordering is promised relative to other calls.
	RequestAccessCredential(ctx context.Context, req CredentialRequest, callback IssuanceCallback)

	// RevokeAccessCredential invalidates token at the provider.
	RevokeAccessCredential(ctx context.Context, token string) error

	// RevokeIdentityAssertion withdraws the grant held for the account named
	// by hint, so the next login needs consent again.
	RevokeIdentityAssertion(ctx context.Context, hint string) error
}
