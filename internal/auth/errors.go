package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors for credential handling.
var (
	// ErrInvalidAuthConfig indicates that the credential configuration is
	// malformed or internally inconsistent. Surfaced at client construction
	// and never retried.
	ErrInvalidAuthConfig = errors.New("invalid auth configuration")

	// ErrAuthUnavailable indicates that a refreshable credential could not
	// be produced for a request. Scoped to that request; the shared
	// refresher remains usable.
	ErrAuthUnavailable = errors.New("authentication unavailable")

	// ErrEmptyToken indicates that a token source reported success but
	// returned an empty token.
	ErrEmptyToken = errors.New("token source returned an empty token")
)

// ConfigError wraps ErrInvalidAuthConfig with the offending field for
// diagnostics. It never carries credential values.
type ConfigError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid auth configuration: %s: %s", e.Field, e.Reason)
}

// Is reports whether the target is ErrInvalidAuthConfig.
func (e *ConfigError) Is(target error) bool {
	return errors.Is(target, ErrInvalidAuthConfig)
}

func newConfigError(field, reason string) error {
	return &ConfigError{Field: field, Reason: reason}
}
