// Package session owns the client-side authentication session: the identity
// assertion of the signed-in user and the short-lived access credential
// derived from it. The Manager restores both from durable storage, keeps the
// credential renewed ahead of expiry and clears everything on logout.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jrsteele09/go-auth-session/events"
	"github.com/jrsteele09/go-auth-session/identity"
	"github.com/jrsteele09/go-auth-session/internal/clock"
	"github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/provider"
	"github.com/jrsteele09/go-auth-session/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Manager is the credential lifecycle state machine. All operations and
// provider callbacks are serialised on one mutex, so each runs to completion
// before the next starts. Provider calls and event delivery happen after the
// mutex is released.
//
// Every login and logout starts a new session epoch; provider results are
// tagged with the epoch they were requested in and dropped when it is no
// longer current. Renewal timers carry their own sequence number so a
// superseded timer that already fired cannot issue a second request.
type Manager struct {
	records  *store.Records
	provider provider.Client
	clock    clock.Clock
	logger   zerolog.Logger
	events   *events.Broadcaster
	metrics  *Metrics

	scopes     []string
	prompt     provider.PromptMode
	lead       time.Duration
	retryDelay time.Duration

	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	restored   bool
	closed     bool
	assertion  *identity.Assertion
	credential *AccessCredential
	epoch      uint64
	timer      clock.Timer
	timerSeq   uint64
	changed    chan struct{}
}

// NewManager builds a manager over records and client and restores the
// session persisted in records. Restoring never fails: unreadable entries are
// treated as absent.
func NewManager(records *store.Records, client provider.Client, opts ...Option) (*Manager, error) {
	if records == nil {
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "[session NewManager] records are required")
	}
	if client == nil {
		return nil, errors.Wrapf(errors.ErrInvalidConfig, "[session NewManager] provider client is required")
	}

	m := &Manager{
		records:    records,
		provider:   client,
		clock:      clock.New(),
		logger:     log.Logger,
		retryDelay: DefaultRetryDelay,
		parent:     context.Background(),
		changed:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.events == nil {
		m.events = events.NewBroadcaster(events.WithLogger(m.logger))
	}
	if m.metrics == nil {
		m.metrics = DefaultMetrics()
	}
	m.ctx, m.cancel = context.WithCancel(m.parent)

	m.mu.Lock()
	request := m.restoreLocked()
	m.mu.Unlock()
	request()

	return m, nil
}

// Events is the broadcaster login and logout events are emitted on.
func (m *Manager) Events() *events.Broadcaster {
	return m.events
}

func (m *Manager) restoreLocked() func() {
	m.restored = true

	assertion, err := m.records.LoadAssertion()
	if err != nil {
		m.readFailed(err, "identity assertion")
		m.logger.Debug().Msg("No stored identity, session is anonymous")
		return noop
	}
	m.assertion = assertion

	token, err := m.records.LoadAccessToken()
	if err != nil || token == "" {
		m.readFailed(err, "access token")
		m.logger.Info().Str("sub", assertion.Subject).Msg("Restored identity without access credential")
		return m.requestLocked(m.ctx, provider.PromptNone)
	}

	cred := &AccessCredential{Token: token}
	if expiry, err := m.records.LoadExpiry(); err != nil {
		m.readFailed(err, "access token expiry")
	} else {
		cred.ExpiresAt = time.Unix(expiry, 0)
	}
	m.credential = cred
	m.metrics.CredentialExpiry.Set(expirySeconds(cred))

	remaining := cred.Remaining(m.clock.Now())
	if remaining <= 0 {
		m.logger.Info().Str("sub", assertion.Subject).Bool("known_expiry", cred.KnownExpiry()).Msg("Restored stale access credential")
		return m.requestLocked(m.ctx, provider.PromptNone)
	}

	m.armLocked(m.renewalDelay(remaining))
	m.logger.Info().Str("sub", assertion.Subject).Time("expires_at", cred.ExpiresAt).Msg("Restored active session")
	return noop
}

// readFailed logs a failed read; absent entries are expected and stay quiet.
func (m *Manager) readFailed(err error, what string) {
	if err == nil || store.IsNotFound(err) {
		return
	}
	m.metrics.StorageErrors.Inc()
	m.logger.Err(err).Str("entry", what).Msg("Failed to read session entry, treating as absent")
}

func (m *Manager) writeFailed(err error, what string) {
	if err == nil {
		return
	}
	m.metrics.StorageErrors.Inc()
	m.logger.Err(err).Str("entry", what).Msg("Failed to write session entry")
}

// LoginWithRawAssertion decodes a provider-issued id token and accepts it as
// the new identity. A malformed token is rejected with
// errors.ErrInvalidAssertionFormat and leaves the session untouched.
func (m *Manager) LoginWithRawAssertion(raw string) (*identity.Assertion, error) {
	assertion, err := identity.Decode(raw)
	if err != nil {
		return nil, err
	}
	if err := m.OnIdentityAssertionReceived(assertion); err != nil {
		return nil, err
	}
	return assertion, nil
}

// OnIdentityAssertionReceived accepts a freshly issued identity, replacing
// any previous one, requests an access credential for it and emits a login
// event. A credential held for the same subject is kept until the new one
// arrives; one held for a different subject is dropped.
func (m *Manager) OnIdentityAssertionReceived(assertion *identity.Assertion) error {
	if assertion == nil {
		return errors.Wrapf(errors.ErrNoIdentity, "[session OnIdentityAssertionReceived]")
	}
	if err := assertion.Validate(); err != nil {
		return errors.Wrapf(err, "[session OnIdentityAssertionReceived]")
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.Wrapf(errors.ErrUnsupported, "[session OnIdentityAssertionReceived] manager is closed")
	}

	m.writeFailed(m.records.SaveAssertion(assertion), "identity assertion")

	previous := m.assertion
	m.epoch++
	m.assertion = assertion
	if previous == nil || previous.Subject != assertion.Subject {
		if m.credential != nil {
			m.writeFailed(m.records.ClearCredential(), "access credential")
		}
		m.credential = nil
		m.stopTimerLocked()
		m.metrics.CredentialExpiry.Set(0)
	}
	m.signalLocked()

	request := m.requestLocked(m.ctx, m.prompt)
	event := events.NewLogin(assertion, m.clock.Now())
	m.mu.Unlock()

	m.metrics.Logins.Inc()
	m.logger.Info().Str("sub", assertion.Subject).Str("email", assertion.Email).Msg("Identity assertion accepted")

	request()
	m.events.Emit(event)
	return nil
}

// RequestNewAccessCredential asks the provider for a new credential for the
// current identity without prompting. The result is applied when the provider
// calls back; the call itself changes nothing. Without an identity it does
// nothing.
func (m *Manager) RequestNewAccessCredential(ctx context.Context) {
	if ctx == nil {
		ctx = m.ctx
	}
	m.mu.Lock()
	request := m.requestLocked(ctx, provider.PromptNone)
	m.mu.Unlock()
	request()
}

// requestLocked captures what a provider request needs under the lock and
// returns the call to make once it is released.
func (m *Manager) requestLocked(ctx context.Context, prompt provider.PromptMode) func() {
	if m.closed {
		return noop
	}
	if m.assertion == nil {
		m.logger.Debug().Msg("No identity, skipping access credential request")
		return noop
	}

	req := provider.CredentialRequest{
		Hint:   m.assertion.Email,
		Prompt: prompt,
		Scopes: m.scopes,
	}
	epoch := m.epoch
	callback := func(issued provider.IssuedCredential, err error) {
		m.onIssued(epoch, issued, err)
	}

	m.metrics.RenewalRequests.Inc()
	return func() {
		m.provider.RequestAccessCredential(ctx, req, callback)
	}
}

func (m *Manager) onIssued(epoch uint64, issued provider.IssuedCredential, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || epoch != m.epoch || m.assertion == nil {
		m.metrics.StaleCallbacks.Inc()
		m.logger.Debug().Uint64("epoch", epoch).Uint64("current_epoch", m.epoch).Msg("Discarding provider result for an ended session")
		return
	}

	if err != nil {
		m.issuanceFailedLocked(err)
		return
	}
	m.applyLocked(issued)
}

// OnAccessCredentialIssued accepts a credential obtained outside a renewal
// request, such as the one returned with an interactive login, for the
// current identity.
func (m *Manager) OnAccessCredentialIssued(issued provider.IssuedCredential) error {
	if issued.AccessToken == "" {
		return errors.Wrapf(errors.ErrProviderIssuance, "[session OnAccessCredentialIssued] empty access token")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.Wrapf(errors.ErrUnsupported, "[session OnAccessCredentialIssued] manager is closed")
	}
	if m.assertion == nil {
		return errors.Wrapf(errors.ErrNoIdentity, "[session OnAccessCredentialIssued]")
	}
	m.applyLocked(issued)
	return nil
}

// issuanceFailedLocked keeps a renewal scheduled after a failed request. A
// missing refresh grant is not retried: only a new login can supply one.
func (m *Manager) issuanceFailedLocked(err error) {
	m.metrics.IssuanceFailures.Inc()
	if errors.Is(err, errors.ErrNoGrant) {
		m.logger.Warn().Err(err).Str("sub", m.assertion.Subject).Msg("No refresh grant, renewal needs a new login")
		return
	}
	m.logger.Err(err).Str("sub", m.assertion.Subject).Msg("Access credential request failed")

	if m.credential == nil {
		m.armLocked(m.retryDelay)
		return
	}
	remaining := m.credential.Remaining(m.clock.Now())
	switch {
	case remaining <= 0:
		m.armLocked(m.retryDelay)
	case m.timer == nil:
		// the renewal timer fired for this request; try again before expiry
		m.armLocked(min(m.retryDelay, remaining))
	}
}

func (m *Manager) applyLocked(issued provider.IssuedCredential) {
	now := m.clock.Now()
	seconds := int64(issued.ExpiresIn / time.Second)
	cred := &AccessCredential{
		Token:     issued.AccessToken,
		ExpiresAt: time.Unix(now.Unix()+seconds, 0),
	}
	m.writeFailed(m.records.SaveAccessToken(cred.Token), "access token")
	m.writeFailed(m.records.SaveExpiry(cred.ExpiresAt.Unix()), "access token expiry")

	m.credential = cred
	m.metrics.CredentialsIssued.Inc()
	m.metrics.CredentialExpiry.Set(expirySeconds(cred))
	m.signalLocked()

	if seconds <= 0 {
		m.logger.Warn().Dur("expires_in", issued.ExpiresIn).Msg("Provider issued an already expired access credential")
		m.armLocked(m.retryDelay)
		return
	}
	m.armLocked(m.renewalDelay(time.Duration(seconds) * time.Second))
	m.logger.Info().Str("sub", m.assertion.Subject).Time("expires_at", cred.ExpiresAt).Msg("Access credential issued")
}

// Logout revokes the credential and identity at the provider, clears the
// stored and in-memory session, cancels renewal and emits a logout event.
// Revocation and storage failures are logged; the local session is always
// cleared.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	var token, hint string
	if m.credential != nil {
		token = m.credential.Token
	}
	if m.assertion != nil {
		hint = m.assertion.Email
	}

	m.epoch++
	m.stopTimerLocked()
	m.assertion = nil
	m.credential = nil
	m.writeFailed(m.records.Clear(), "session")
	m.metrics.CredentialExpiry.Set(0)
	m.signalLocked()
	event := events.NewLogout(m.clock.Now())
	m.mu.Unlock()

	if err := m.revoke(ctx, token, hint); err != nil {
		m.metrics.RevocationFailures.Inc()
		m.logger.Err(err).Msg("Revocation during logout failed")
	}

	m.metrics.Logouts.Inc()
	m.logger.Info().Msg("Logged out")
	m.events.Emit(event)
}

func (m *Manager) revoke(ctx context.Context, token, hint string) error {
	var result *multierror.Error
	if token != "" {
		if err := m.provider.RevokeAccessCredential(ctx, token); err != nil {
			result = multierror.Append(result, errors.Wrapf(errors.ErrRevocation, "access credential: %v", err))
		}
	}
	if err := m.provider.RevokeIdentityAssertion(ctx, hint); err != nil {
		result = multierror.Append(result, errors.Wrapf(errors.ErrRevocation, "identity assertion: %v", err))
	}
	return result.ErrorOrNil()
}

// Close stops renewal and cancels outstanding provider requests. The stored
// session is kept for the next process.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.epoch++
	m.stopTimerLocked()
	m.cancel()
	m.signalLocked()
}

func (m *Manager) renewalDelay(remaining time.Duration) time.Duration {
	delay := remaining - m.lead
	if delay < 0 {
		return 0
	}
	return delay
}

// armLocked replaces any armed renewal timer with one firing after d.
func (m *Manager) armLocked(d time.Duration) {
	m.stopTimerLocked()
	seq := m.timerSeq
	m.timer = m.clock.AfterFunc(d, func() {
		m.onTimer(seq)
	})
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.timerSeq++
}

func (m *Manager) onTimer(seq uint64) {
	m.mu.Lock()
	if seq != m.timerSeq {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.timerSeq++
	request := m.requestLocked(m.ctx, provider.PromptNone)
	m.mu.Unlock()
	request()
}

// signalLocked wakes everything blocked in WaitForAccessCredential.
func (m *Manager) signalLocked() {
	close(m.changed)
	m.changed = make(chan struct{})
}

// IdentityAssertion returns the current identity, or nil when anonymous.
func (m *Manager) IdentityAssertion() *identity.Assertion {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assertion
}

// AccessCredential returns the bearer token when there is an identity and a
// credential that has not expired.
func (m *Manager) AccessCredential() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accessLocked(m.clock.Now())
}

func (m *Manager) accessLocked(now time.Time) (string, bool) {
	if m.assertion == nil || m.credential == nil || !m.credential.Usable(now) {
		return "", false
	}
	return m.credential.Token, true
}

// Credential returns the held credential whatever its expiry.
func (m *Manager) Credential() (AccessCredential, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.assertion == nil || m.credential == nil {
		return AccessCredential{}, false
	}
	return *m.credential, true
}

// Status reports the lifecycle state at the current time.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked(m.clock.Now())
}

func (m *Manager) statusLocked(now time.Time) Status {
	switch {
	case !m.restored:
		return Uninitialized
	case m.assertion == nil:
		return Anonymous
	case m.credential == nil:
		return AuthenticatedNoAccess
	case m.credential.Remaining(now) <= 0:
		return AuthenticatedStale
	default:
		return AuthenticatedActive
	}
}

// Snapshot copies the state under one lock acquisition.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	snap := Snapshot{
		Status:    m.statusLocked(now),
		Assertion: m.assertion,
		TakenAt:   now,
	}
	if m.assertion != nil && m.credential != nil {
		cred := *m.credential
		snap.Credential = &cred
	}
	return snap
}

// WaitForAccessCredential blocks until a usable credential is available or
// ctx ends.
func (m *Manager) WaitForAccessCredential(ctx context.Context) (string, error) {
	for {
		m.mu.Lock()
		if token, ok := m.accessLocked(m.clock.Now()); ok {
			m.mu.Unlock()
			return token, nil
		}
		if m.closed {
			m.mu.Unlock()
			return "", errors.Wrapf(errors.ErrUnsupported, "[session WaitForAccessCredential] manager is closed")
		}
		changed := m.changed
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-changed:
		}
	}
}

func expirySeconds(cred *AccessCredential) float64 {
	if cred == nil || !cred.KnownExpiry() {
		return 0
	}
	return float64(cred.ExpiresAt.Unix())
}

func noop() {}
