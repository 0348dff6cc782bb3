package store

import (
	"math"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/jrsteele09/go-auth-session/identity"
	"github.com/jrsteele09/go-auth-session/internal/errors"
)

// DefaultNamespace prefixes every key written by Records.
const DefaultNamespace = "GoAuthSession"

const (
	idTokenKey         = "IdToken"
	accessTokenKey     = "AccessToken"
	accessTokenExpKey  = "AccessTokenExpirationTimestamp"
	refreshGrantKeyTag = "RefreshGrant"
)

// Records gives typed access to the three independently keyed session entries:
// the identity assertion (JSON), the raw access token and the access token's
// absolute expiry in unix seconds. Any entry can be missing on its own; there
// is no transaction spanning them.
type Records struct {
	store     DurableStore
	namespace string
}

// NewRecords creates a Records view over store. An empty namespace falls back
// to DefaultNamespace.
func NewRecords(store DurableStore, namespace string) *Records {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Records{
		store:     store,
		namespace: namespace,
	}
}

// Store returns the underlying durable store.
func (r *Records) Store() DurableStore {
	return r.store
}

// Key returns the namespaced key for name.
func (r *Records) Key(name string) string {
	return r.namespace + "." + name
}

// IdentityKey, AccessTokenKey and ExpiryKey are the three session entries.
func (r *Records) IdentityKey() string    { return r.Key(idTokenKey) }
func (r *Records) AccessTokenKey() string { return r.Key(accessTokenKey) }
func (r *Records) ExpiryKey() string      { return r.Key(accessTokenExpKey) }

// RefreshGrantKey is where a provider client may keep its own renewal grant.
// It is not part of the session record and Clear leaves it alone.
func (r *Records) RefreshGrantKey() string { return r.Key(refreshGrantKeyTag) }

// LoadAssertion returns the persisted identity assertion. It returns
// errors.ErrNotFound when absent and errors.ErrInvalidAssertionFormat when the
// stored JSON is unreadable.
func (r *Records) LoadAssertion() (*identity.Assertion, error) {
	raw, err := r.store.Get(r.IdentityKey())
	if err != nil {
		return nil, err
	}
	return identity.Unmarshal([]byte(raw))
}

// SaveAssertion persists the identity assertion as JSON.
func (r *Records) SaveAssertion(a *identity.Assertion) error {
	if a == nil {
		return errors.Wrapf(errors.ErrNoIdentity, "[records SaveAssertion]")
	}
	data, err := a.Marshal()
	if err != nil {
		return errors.Wrapf(err, "[records SaveAssertion] marshal")
	}
	return r.store.Set(r.IdentityKey(), string(data))
}

// LoadAccessToken returns the raw access token.
func (r *Records) LoadAccessToken() (string, error) {
	return r.store.Get(r.AccessTokenKey())
}

// SaveAccessToken persists the raw access token.
func (r *Records) SaveAccessToken(token string) error {
	return r.store.Set(r.AccessTokenKey(), token)
}

// LoadExpiry returns the stored absolute expiry in unix seconds. Text that is
// not a decimal number is reported as errors.ErrNotFound since it carries no
// usable expiry.
func (r *Records) LoadExpiry() (int64, error) {
	raw, err := r.store.Get(r.ExpiryKey())
	if err != nil {
		return 0, err
	}
	expiry, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(expiry) || math.IsInf(expiry, 0) {
		return 0, errors.Wrapf(errors.ErrNotFound, "[records LoadExpiry] unparseable expiry %q", raw)
	}
	return int64(expiry), nil
}

// SaveExpiry persists the absolute expiry as decimal unix seconds.
func (r *Records) SaveExpiry(unixSeconds int64) error {
	return r.store.Set(r.ExpiryKey(), strconv.FormatInt(unixSeconds, 10))
}

// ClearCredential removes the access token and its expiry, leaving the
// identity assertion in place.
func (r *Records) ClearCredential() error {
	return r.remove(r.AccessTokenKey(), r.ExpiryKey())
}

// Clear removes all three session entries. Every removal is attempted even
// if an earlier one fails; the failures are returned together.
func (r *Records) Clear() error {
	return r.remove(r.IdentityKey(), r.AccessTokenKey(), r.ExpiryKey())
}

func (r *Records) remove(keys ...string) error {
	var result *multierror.Error
	for _, key := range keys {
		if err := r.store.Remove(key); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "remove %s", key))
		}
	}
	return result.ErrorOrNil()
}
