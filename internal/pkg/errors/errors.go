package errors

import "errors"

// Common application errors. Services wrap these with fmt.Errorf("%w: ...")
// so handlers can branch with errors.Is while keeping the detail.
var (
	// ErrNotFound is used when a record or resource does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrUnauthorized is used for authorization failures (bad token, no rights).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is used when the user may not perform the action.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation is used for invalid input.
	ErrValidation = errors.New("validation failed")

	// ErrExpiredToken is used when a credential (e.g. refresh) has expired.
	ErrExpiredToken = errors.New("token is expired")

	// ErrConflict is used for state conflicts (duplicate identity, etc.).
	ErrConflict = errors.New("resource state conflict")
)

// Auth-flow errors. Handlers translate these to stable error_type codes;
// clients branch on the code, never on message text.
var (
	// ErrProviderExchange covers every failure inside the external login
	// flow: state mismatch, upstream exchange error, unusable profile.
	// Upstream detail is logged, not surfaced.
	ErrProviderExchange = errors.New("provider exchange failed")

	// ErrSessionRevoked means the refresh credential maps to a session
	// that was explicitly revoked.
	ErrSessionRevoked = errors.New("session revoked")

	// ErrUserDeactivated means the credential is valid but the account
	// has been deactivated.
	ErrUserDeactivated = errors.New("user deactivated")
)
