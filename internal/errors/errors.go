package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session library
var (
	// Identity errors
	ErrInvalidAssertionFormat = errors.New("invalid identity assertion format")
	ErrNoIdentity             = errors.New("no identity assertion")

	// Provider errors
	ErrProviderIssuance = errors.New("access credential issuance failed")
	ErrRevocation       = errors.New("revocation failed")
	ErrNoGrant          = errors.New("no refresh grant available")

	// Storage errors
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrNotFound           = errors.New("not found")

	// General errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrUnsupported   = errors.New("unsupported operation")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is errors.New, re-exported so callers importing this package under the
// name "errors" keep access to it.
func New(text string) error {
	return errors.New(text)
}
