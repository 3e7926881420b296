package identity

import "errors"

var (
	// ErrNotFound is returned when no user matches a lookup
	ErrNotFound = errors.New("user not found")

	// ErrDuplicateUserName is returned when the normalized user name is taken
	ErrDuplicateUserName = errors.New("user name already taken")

	// ErrDuplicateEmail is returned when the normalized email is taken
	ErrDuplicateEmail = errors.New("email already taken")

	// ErrInvalidCredentials covers both an unknown principal and a password
	// mismatch; callers must not reveal which, to avoid account enumeration
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNoRowsAffected is returned when a write expected to change one row
	// changed none. Not retried automatically; the caller must resubmit.
	ErrNoRowsAffected = errors.New("no rows affected")
)
