package model

import "errors"

// Store level errors.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrLocked   = errors.New("record is locked")
)

// Authentication errors returned by the account services.
var (
	ErrDuplicateAccount        = errors.New("account with this email already exists")
	ErrAccountNotFound         = errors.New("account not found")
	ErrAccountLocked           = errors.New("account is locked")
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrInvalidOTP              = errors.New("invalid one-time password")
	ErrUnauthenticated         = errors.New("unauthenticated")
	ErrForbidden               = errors.New("forbidden")
	ErrTwoFactorNotStarted     = errors.New("two-factor enrollment not started")
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor authentication already enabled")
)

// Session errors.
var (
	ErrSessionRevoked  = errors.New("session revoked")
	ErrSessionExpired  = errors.New("session expired")
	ErrSessionMismatch = errors.New("session token mismatch")
)

// Validation reasons wrapped by ValidationError.
var (
	ErrMissingFields    = errors.New("missing required fields")
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrPasswordTooShort = errors.New("password is too short")
	ErrPasswordTooLong  = errors.New("password is too long")
	ErrInvalidAvatar    = errors.New("invalid avatar")
)

// ValidationError reports a user input problem detected before any storage access.
type ValidationError struct {
	Reason error
	Field  string
}

// NewValidationError creates a ValidationError for the given reason.
func NewValidationError(reason error, field string) *ValidationError {
	return &ValidationError{Reason: reason, Field: field}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason.Error()
	}
	return "validation failed: " + e.Field + ": " + e.Reason.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}
