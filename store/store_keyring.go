package store

import (
	"github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/zalando/go-keyring"
)

var _ DurableStore = (*KeyringStore)(nil)

// DefaultKeyringService is the service name entries are filed under in the
// operating system's credential store.
const DefaultKeyringService = "Go Auth Session"

// KeyringStore keeps each entry as a separate secret in the operating system's
// credential store (macOS Keychain, Windows Credential Manager, Secret Service).
type KeyringStore struct {
	service string
}

// NewKeyringStore creates a keyring-backed store for service.
func NewKeyringStore(service string) *KeyringStore {
	if service == "" {
		service = DefaultKeyringService
	}
	return &KeyringStore{service: service}
}

func (s *KeyringStore) Get(key string) (string, error) {
	value, err := keyring.Get(s.service, key)
	if err == keyring.ErrNotFound {
		return "", errors.ErrNotFound
	}
	if err != nil {
		return "", unavailable(err, "[store keyring] get %s", key)
	}
	return value, nil
}

func (s *KeyringStore) Set(key, value string) error {
	if err := keyring.Set(s.service, key, value); err != nil {
		return unavailable(err, "[store keyring] set %s", key)
	}
	return nil
}

func (s *KeyringStore) Remove(key string) error {
	err := keyring.Delete(s.service, key)
	if err == nil || err == keyring.ErrNotFound {
		return nil
	}
	return unavailable(err, "[store keyring] delete %s", key)
}
