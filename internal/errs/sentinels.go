// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
)

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates malformed or out-of-range input.
	ErrValidation = errors.New("validation")

	// ErrInvalidArgument is a caller contract violation on a pure helper (e.g. negative price).
	ErrInvalidArgument = fmt.Errorf("%w: invalid argument", ErrValidation)

	// ErrForbidden indicates the actor lacks rights over the target entity.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidState indicates the operation is not legal in the entity's current status.
	ErrInvalidState = errors.New("invalid state")

	// ErrUnauthenticated indicates no actor is attached to the call.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrPayment indicates the payment provider call failed or is not possible yet.
	ErrPayment = errors.New("payment")

	// ErrUnauthorized indicates failed authentication (bad credentials or token).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")
)

// Validationf builds a validation error with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// Unauthenticated reports a missing actor. It matches both ErrUnauthenticated and ErrValidation.
func Unauthenticated() error {
	return fmt.Errorf("%w: %w", ErrValidation, ErrUnauthenticated)
}
