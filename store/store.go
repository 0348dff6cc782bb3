package store

import (
	"github.com/jrsteele09/go-auth-session/internal/errors"
)

// DurableStore is a synchronous, string-only key/value store that outlives
// the process. Get returns errors.ErrNotFound for an absent key; any other
// error means the medium itself could not be read or written.
type DurableStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Remove(key string) error
}

// IsNotFound reports whether err means the key was simply absent.
func IsNotFound(err error) bool {
	return errors.Is(err, errors.ErrNotFound)
}

// unavailable wraps a backend failure so callers can tell it apart from an
// absent key.
func unavailable(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(errors.ErrStorageUnavailable, format+": %v", append(args, err)...)
}
