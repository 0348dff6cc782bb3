// Package providerfake is a hand-driven provider.Client for tests: requests
// are queued and only complete when the test says so.
package providerfake

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-session/provider"
)

var _ provider.Client = (*Provider)(nil)

type pendingCall struct {
	req      provider.CredentialRequest
	callback provider.IssuanceCallback
}

// Provider records every call. Issuance callbacks run on the goroutine of
// whichever Issue/Fail/Complete call releases them.
type Provider struct {
	mu              sync.Mutex
	pending         []pendingCall
	requests        []provider.CredentialRequest
	revokedAccess   []string
	revokedIdentity []string
	revokeAccessErr error
	revokeIdentErr  error
}

// New returns an empty fake.
func New() *Provider {
	return &Provider{}
}

func (p *Provider) RequestAccessCredential(_ context.Context, req provider.CredentialRequest, callback provider.IssuanceCallback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	p.pending = append(p.pending, pendingCall{req: req, callback: callback})
}

func (p *Provider) RevokeAccessCredential(_ context.Context, token string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revokedAccess = append(p.revokedAccess, token)
	return p.revokeAccessErr
}

func (p *Provider) RevokeIdentityAssertion(_ context.Context, hint string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revokedIdentity = append(p.revokedIdentity, hint)
	return p.revokeIdentErr
}

// FailRevocations makes subsequent revocations return the given errors.
func (p *Provider) FailRevocations(accessErr, identityErr error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revokeAccessErr = accessErr
	p.revokeIdentErr = identityErr
}

// Requests returns every credential request received so far.
func (p *Provider) Requests() []provider.CredentialRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]provider.CredentialRequest(nil), p.requests...)
}

// Pending is the number of requests not yet completed.
func (p *Provider) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// RevokedAccess lists the access tokens passed to RevokeAccessCredential.
func (p *Provider) RevokedAccess() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.revokedAccess...)
}

// RevokedIdentity lists the hints passed to RevokeIdentityAssertion.
func (p *Provider) RevokedIdentity() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.revokedIdentity...)
}

// Issue completes the oldest pending request successfully. It reports false
// when nothing is pending.
func (p *Provider) Issue(token string, expiresIn time.Duration) bool {
	return p.Complete(0, provider.IssuedCredential{AccessToken: token, ExpiresIn: expiresIn}, nil)
}

// Fail completes the oldest pending request with err.
func (p *Provider) Fail(err error) bool {
	return p.Complete(0, provider.IssuedCredential{}, err)
}

// Complete finishes the i-th pending request (0 is the oldest), which lets a
// test deliver results out of order.
func (p *Provider) Complete(i int, issued provider.IssuedCredential, err error) bool {
	p.mu.Lock()
	if i < 0 || i >= len(p.pending) {
		p.mu.Unlock()
		return false
	}
	call := p.pending[i]
	p.pending = append(p.pending[:i:i], p.pending[i+1:]...)
	p.mu.Unlock()

	call.callback(issued, err)
	return true
}
