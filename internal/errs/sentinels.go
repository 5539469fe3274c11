// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"strings"
)

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness violation (duplicate role/permission name).
	ErrConflict = errors.New("conflict")

	// ErrNotFoundReference indicates a role references permissions that do not exist.
	ErrNotFoundReference = errors.New("referenced entity not found")

	// ErrInvalidInput indicates a request failed validation before reaching storage.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidCredentials hides whether the identity or the secret was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrTokenInvalid indicates an unknown, malformed or wrongly signed token.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrTokenAlreadyUsed indicates a single-use token was already redeemed.
	ErrTokenAlreadyUsed = errors.New("token already used")

	// ErrTokenExpired indicates a token past its expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrUnauthorized indicates the resolver denied the requested permissions.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")
)

// MissingReferencesError lists every permission name that failed to resolve.
type MissingReferencesError struct {
	Names []string
}

func (e *MissingReferencesError) Error() string {
	return "unknown permissions: " + strings.Join(e.Names, ", ")
}

// Is makes errors.Is(err, ErrNotFoundReference) hold.
func (e *MissingReferencesError) Is(target error) bool { return target == ErrNotFoundReference }

// IsTokenError reports whether err is one of the token outcome sentinels.
// Callers use it to collapse them into one external message.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrTokenInvalid) ||
		errors.Is(err, ErrTokenAlreadyUsed) ||
		errors.Is(err, ErrTokenExpired)
}
