// Package common defines shared constants and sentinel errors used across
// IdentKit components. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Auth errors (invalid, malformed or expired token).
	ErrInvalidToken = errors.New("invalid token")

	// ErrWrongCredentials deliberately covers both "no such user" and
	// "bad password" so that login cannot be used as an existence oracle.
	ErrWrongCredentials = fmt.Errorf("%w: wrong credentials", ErrorNotFound)

	// Domain errors raised by the account protocols.
	ErrWrongPassword         = errors.New("wrong password")
	ErrValidation            = errors.New("validation error")
	ErrUsernameTaken         = errors.New("username already exists")
	ErrEmailTaken            = errors.New("email already exists")
	ErrAlreadyLoggedIn       = errors.New("already logged in")
	ErrRecoveryExpired       = errors.New("password recovery link expired")
	ErrEmailAlreadyConfirmed = errors.New("email already confirmed")
)

// ConstraintError reports a persistence-level uniqueness violation together
// with the logical field that collided. Protocol code switches on Field,
// never on the wording of the underlying database error.
type ConstraintError struct {
	Field string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("unique constraint violated on %q", e.Field)
}
