package model

import "time"

// LoginState is the outcome of a credential check.
type LoginState int

const (
	// LoginAuthenticated means the login is complete.
	LoginAuthenticated LoginState = iota + 1
	// LoginAwaitingOTP means the password matched and a one-time code is required.
	LoginAwaitingOTP
)

func (s LoginState) String() string {
	switch s {
	case LoginAuthenticated:
		return "authenticated"
	case LoginAwaitingOTP:
		return "awaiting_otp"
	default:
		return "unknown"
	}
}

// LoginResult is returned by a successful credential check.
type LoginResult struct {
	State   LoginState
	Account Account
}

// Enrollment is an issued, not yet confirmed, two-factor secret.
type Enrollment struct {
	Secret          string
	ProvisioningURI string
}

// RegisterParams holds registration form input.
type RegisterParams struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
	Avatar          *Upload
}

// LoginParams holds login form input. Now is the time used for the OTP window.
type LoginParams struct {
	Email    string
	Password string
	OTP      string
	Now      time.Time
}

// ProfileParams holds a profile update. Nil fields are left unchanged.
type ProfileParams struct {
	Username *string
	Email    *string
	Avatar   *Upload
}
