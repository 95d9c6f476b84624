package errors

import (
	"errors"
	"fmt"
)

// Common error types for the assistant auth backend
var (
	// Configuration errors
	ErrConfiguration = errors.New("oauth client configuration incomplete")

	// Authorization-code flow errors
	ErrCsrf     = errors.New("oauth state mismatch")
	ErrExchange = errors.New("authorization code exchange failed")

	// Credential errors
	ErrInvalidCredential = errors.New("invalid credential")
	ErrSignInRequired    = errors.New("sign in required")
	ErrGoogleNotLinked   = errors.New("google account not linked")

	// Provider errors
	ErrProviderAPI = errors.New("provider api error")

	// General errors
	ErrNotFound = errors.New("not found")
	ErrInternal = errors.New("internal error")
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
