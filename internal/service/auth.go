package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/gophaccount-server/internal/logger"
	"github.com/dtroode/gophaccount-server/internal/model"
	"github.com/dtroode/gophaccount-server/internal/password"
	"github.com/dtroode/gophaccount-server/internal/totp"
)

const (
	defaultMaxFailedAttempts = 5
	defaultMinPasswordLength = 6
)

// AuthPolicy holds the tunable limits of the authentication flow.
type AuthPolicy struct {
	MaxFailedAttempts int
	MinPasswordLength int
}

// Auth implements registration, login with lockout and optional TOTP, two-factor
// enrollment and profile updates.
//
// Login moves from credential check to either authenticated or awaiting a
// one-time code. Enrollment moves from no secret to an issued secret and then
// to enabled once a code for that secret is confirmed.
type Auth struct {
	accounts model.AccountStore
	hasher   model.PasswordHasher
	otp      model.OTPEngine
	avatars  model.AvatarStore
	policy   AuthPolicy
	logger   *logger.Logger
	now      func() time.Time
	renderQR func(uri string, size int) ([]byte, error)
}

func NewAuth(
	accounts model.AccountStore,
	hasher model.PasswordHasher,
	otp model.OTPEngine,
	avatars model.AvatarStore,
	policy AuthPolicy,
	logger *logger.Logger,
) *Auth {
	if policy.MaxFailedAttempts <= 0 {
		policy.MaxFailedAttempts = defaultMaxFailedAttempts
	}
	if policy.MinPasswordLength <= 0 {
		policy.MinPasswordLength = defaultMinPasswordLength
	}

	return &Auth{
		accounts: accounts,
		hasher:   hasher,
		otp:      otp,
		avatars:  avatars,
		policy:   policy,
		logger:   logger,
		now:      time.Now,
		renderQR: totp.RenderQRCode,
	}
}

// Register creates a new account. Input is validated before the store is touched.
func (a *Auth) Register(ctx context.Context, params model.RegisterParams) (model.Account, error) {
	if err := a.validateRegistration(params); err != nil {
		return model.Account{}, err
	}

	a.logger.Debug("Auth service: starting registration",
		"email", params.Email)

	_, err := a.accounts.FindByEmail(ctx, params.Email)
	switch {
	case err == nil:
		a.logger.Info("Auth service: account already exists",
			"email", params.Email)
		return model.Account{}, model.ErrDuplicateAccount
	case !errors.Is(err, model.ErrNotFound):
		a.logger.Error("Auth service: failed to get account by email",
			"email", params.Email,
			"error", err.Error())
		return model.Account{}, fmt.Errorf("failed to get account by email: %w", err)
	}

	hash, err := a.hasher.Hash(ctx, params.Password)
	if err != nil {
		return model.Account{}, fmt.Errorf("failed to hash password: %w", err)
	}

	var avatarRef string
	if params.Avatar != nil {
		avatarRef, err = a.avatars.Put(ctx, *params.Avatar)
		if err != nil {
			return model.Account{}, err
		}
	}

	account, err := a.accounts.Create(ctx, model.AccountDraft{
		ID:           uuid.New(),
		Email:        params.Email,
		Username:     params.Username,
		PasswordHash: hash,
		AvatarRef:    avatarRef,
		CreatedAt:    a.now(),
	})
	if err != nil {
		a.discardAvatar(ctx, avatarRef)
		if errors.Is(err, model.ErrConflict) {
			a.logger.Info("Auth service: account created concurrently",
				"email", params.Email)
			return model.Account{}, model.ErrDuplicateAccount
		}
		a.logger.Error("Auth service: failed to create account",
			"email", params.Email,
			"error", err.Error())
		return model.Account{}, fmt.Errorf("failed to create account: %w", err)
	}

	a.logger.Info("Auth service: account registered",
		"account_id", account.ID,
		"email", account.Email)

	return account, nil
}

// Login checks credentials and, when two-factor is enabled, the one-time code.
func (a *Auth) Login(ctx context.Context, params model.LoginParams) (model.LoginResult, error) {
	if params.Email == "" || params.Password == "" {
		return model.LoginResult{}, model.NewValidationError(model.ErrMissingFields, "")
	}

	now := params.Now
	if now.IsZero() {
		now = a.now()
	}

	account, err := a.accounts.FindByEmail(ctx, params.Email)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			a.logger.Info("Auth service: login for unknown email",
				"email", params.Email)
			return model.LoginResult{}, model.ErrAccountNotFound
		}
		a.logger.Error("Auth service: failed to get account by email",
			"email", params.Email,
			"error", err.Error())
		return model.LoginResult{}, fmt.Errorf("failed to get account by email: %w", err)
	}

	if account.Locked {
		a.logger.Info("Auth service: login to locked account",
			"account_id", account.ID)
		return model.LoginResult{}, model.ErrAccountLocked
	}

	ok, err := a.hasher.Verify(ctx, params.Password, account.PasswordHash)
	if err != nil {
		return model.LoginResult{}, fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		updated, err := a.accounts.RecordLoginFailure(ctx, account.ID, a.policy.MaxFailedAttempts)
		if err != nil {
			a.logger.Error("Auth service: failed to record login failure",
				"account_id", account.ID,
				"error", err.Error())
			return model.LoginResult{}, fmt.Errorf("failed to record login failure: %w", err)
		}
		a.logger.Info("Auth service: incorrect password",
			"account_id", account.ID,
			"failed_attempts", updated.FailedLoginAttempts,
			"locked", updated.Locked)
		return model.LoginResult{}, model.ErrInvalidCredentials
	}

	if account.TwoFactorEnabled {
		if params.OTP == "" {
			a.logger.Debug("Auth service: awaiting one-time code",
				"account_id", account.ID)
			return model.LoginResult{State: model.LoginAwaitingOTP, Account: account}, nil
		}
		if !a.otp.Verify(account.TwoFactorSecret, params.OTP, now) {
			a.logger.Info("Auth service: invalid one-time code",
				"account_id", account.ID)
			return model.LoginResult{}, model.ErrInvalidOTP
		}
	}

	account, err = a.accounts.ResetLoginFailures(ctx, account.ID)
	if err != nil {
		if errors.Is(err, model.ErrLocked) {
			return model.LoginResult{}, model.ErrAccountLocked
		}
		if errors.Is(err, model.ErrNotFound) {
			return model.LoginResult{}, model.ErrAccountNotFound
		}
		return model.LoginResult{}, fmt.Errorf("failed to reset login failures: %w", err)
	}

	a.logger.Info("Auth service: login succeeded",
		"account_id", account.ID)

	return model.LoginResult{State: model.LoginAuthenticated, Account: account}, nil
}

// BeginTwoFactorEnrollment issues a new secret for the caller, replacing any
// unconfirmed one.
func (a *Auth) BeginTwoFactorEnrollment(ctx context.Context, caller model.Caller) (model.Enrollment, error) {
	account, err := a.callerAccount(ctx, caller)
	if err != nil {
		return model.Enrollment{}, err
	}
	if account.TwoFactorEnabled {
		return model.Enrollment{}, model.ErrTwoFactorAlreadyEnabled
	}

	enrollment, err := a.otp.GenerateSecret(account.Email)
	if err != nil {
		return model.Enrollment{}, fmt.Errorf("failed to generate two-factor secret: %w", err)
	}

	account.TwoFactorSecret = enrollment.Secret
	if _, err := a.save(ctx, account); err != nil {
		return model.Enrollment{}, err
	}

	a.logger.Info("Auth service: two-factor secret issued",
		"account_id", account.ID)

	return enrollment, nil
}

// PendingTwoFactorEnrollment returns the issued, unconfirmed secret of the
// caller. A secret is issued only when none is pending, so repeating the call
// never replaces one the caller may already have scanned.
func (a *Auth) PendingTwoFactorEnrollment(ctx context.Context, caller model.Caller) (model.Enrollment, error) {
	account, err := a.callerAccount(ctx, caller)
	if err != nil {
		return model.Enrollment{}, err
	}
	if account.TwoFactorEnabled {
		return model.Enrollment{}, model.ErrTwoFactorAlreadyEnabled
	}
	if account.TwoFactorSecret == "" {
		return a.BeginTwoFactorEnrollment(ctx, caller)
	}

	uri, err := a.otp.ProvisioningURI(account.TwoFactorSecret, account.Email)
	if err != nil {
		return model.Enrollment{}, fmt.Errorf("failed to build provisioning uri: %w", err)
	}

	return model.Enrollment{Secret: account.TwoFactorSecret, ProvisioningURI: uri}, nil
}

// ConfirmTwoFactorEnrollment enables two-factor once otp matches the issued secret.
func (a *Auth) ConfirmTwoFactorEnrollment(ctx context.Context, caller model.Caller, otp string) (model.Account, error) {
	account, err := a.callerAccount(ctx, caller)
	if err != nil {
		return model.Account{}, err
	}
	if account.TwoFactorEnabled {
		return model.Account{}, model.ErrTwoFactorAlreadyEnabled
	}
	if account.TwoFactorSecret == "" {
		return model.Account{}, model.ErrTwoFactorNotStarted
	}
	if otp == "" {
		return model.Account{}, model.NewValidationError(model.ErrMissingFields, "otp")
	}

	if !a.otp.Verify(account.TwoFactorSecret, otp, a.callerNow(caller)) {
		a.logger.Info("Auth service: invalid enrollment code",
			"account_id", account.ID)
		return model.Account{}, model.ErrInvalidOTP
	}

	account.TwoFactorEnabled = true
	saved, err := a.save(ctx, account)
	if err != nil {
		return model.Account{}, err
	}

	a.logger.Info("Auth service: two-factor enabled",
		"account_id", account.ID)

	return saved, nil
}

// TwoFactorQRCode renders the provisioning URI of the caller's issued secret as PNG.
func (a *Auth) TwoFactorQRCode(ctx context.Context, caller model.Caller, size int) ([]byte, error) {
	account, err := a.callerAccount(ctx, caller)
	if err != nil {
		return nil, err
	}
	if account.TwoFactorEnabled {
		return nil, model.ErrTwoFactorAlreadyEnabled
	}
	if account.TwoFactorSecret == "" {
		return nil, model.ErrTwoFactorNotStarted
	}

	uri, err := a.otp.ProvisioningURI(account.TwoFactorSecret, account.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to build provisioning uri: %w", err)
	}

	png, err := a.renderQR(uri, size)
	if err != nil {
		return nil, fmt.Errorf("failed to render qr code: %w", err)
	}

	return png, nil
}

// UpdateProfile changes the provided profile fields of the caller's own account.
func (a *Auth) UpdateProfile(ctx context.Context, caller model.Caller, accountID uuid.UUID, params model.ProfileParams) (model.Account, error) {
	if !caller.IsAuthenticated() {
		return model.Account{}, model.ErrUnauthenticated
	}
	if caller.AccountID != accountID {
		a.logger.Info("Auth service: profile update for another account",
			"caller_id", caller.AccountID,
			"account_id", accountID)
		return model.Account{}, model.ErrForbidden
	}
	if (params.Username != nil && *params.Username == "") || (params.Email != nil && *params.Email == "") {
		return model.Account{}, model.NewValidationError(model.ErrMissingFields, "")
	}

	account, err := a.callerAccount(ctx, caller)
	if err != nil {
		return model.Account{}, err
	}

	if params.Username != nil {
		account.Username = *params.Username
	}

	if params.Email != nil && *params.Email != account.Email {
		other, err := a.accounts.FindByEmail(ctx, *params.Email)
		switch {
		case err == nil && other.ID != account.ID:
			return model.Account{}, model.ErrDuplicateAccount
		case err != nil && !errors.Is(err, model.ErrNotFound):
			return model.Account{}, fmt.Errorf("failed to get account by email: %w", err)
		}
		account.Email = *params.Email
	}

	previousAvatar := account.AvatarRef
	if params.Avatar != nil {
		ref, err := a.avatars.Put(ctx, *params.Avatar)
		if err != nil {
			return model.Account{}, err
		}
		account.AvatarRef = ref
	}

	saved, err := a.save(ctx, account)
	if err != nil {
		if account.AvatarRef != previousAvatar {
			a.discardAvatar(ctx, account.AvatarRef)
		}
		return model.Account{}, err
	}

	if saved.AvatarRef != previousAvatar {
		a.discardAvatar(ctx, previousAvatar)
	}

	a.logger.Info("Auth service: profile updated",
		"account_id", saved.ID)

	return saved, nil
}

// GetAccount returns the caller's account.
func (a *Auth) GetAccount(ctx context.Context, caller model.Caller) (model.Account, error) {
	return a.callerAccount(ctx, caller)
}

// Ping reports whether the account store is reachable.
func (a *Auth) Ping(ctx context.Context) error {
	return a.accounts.Ping(ctx)
}

func (a *Auth) validateRegistration(params model.RegisterParams) error {
	if params.Username == "" || params.Email == "" || params.Password == "" || params.ConfirmPassword == "" {
		return model.NewValidationError(model.ErrMissingFields, "")
	}
	if params.Password != params.ConfirmPassword {
		return model.NewValidationError(model.ErrPasswordMismatch, "confirmPassword")
	}
	if len(params.Password) < a.policy.MinPasswordLength {
		return model.NewValidationError(model.ErrPasswordTooShort, "password")
	}
	if len(params.Password) > password.MaxLength {
		return model.NewValidationError(model.ErrPasswordTooLong, "password")
	}
	return nil
}

func (a *Auth) callerAccount(ctx context.Context, caller model.Caller) (model.Account, error) {
	if !caller.IsAuthenticated() {
		return model.Account{}, model.ErrUnauthenticated
	}

	account, err := a.accounts.FindByID(ctx, caller.AccountID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Account{}, model.ErrAccountNotFound
		}
		a.logger.Error("Auth service: failed to get account by id",
			"account_id", caller.AccountID,
			"error", err.Error())
		return model.Account{}, fmt.Errorf("failed to get account by id: %w", err)
	}

	return account, nil
}

func (a *Auth) save(ctx context.Context, account model.Account) (model.Account, error) {
	saved, err := a.accounts.Save(ctx, account)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrNotFound):
			return model.Account{}, model.ErrAccountNotFound
		case errors.Is(err, model.ErrConflict):
			return model.Account{}, model.ErrDuplicateAccount
		}
		a.logger.Error("Auth service: failed to save account",
			"account_id", account.ID,
			"error", err.Error())
		return model.Account{}, fmt.Errorf("failed to save account: %w", err)
	}
	return saved, nil
}

func (a *Auth) callerNow(caller model.Caller) time.Time {
	if caller.Now.IsZero() {
		return a.now()
	}
	return caller.Now
}

func (a *Auth) discardAvatar(ctx context.Context, ref string) {
	if ref == "" {
		return
	}
	if err := a.avatars.Remove(ctx, ref); err != nil {
		a.logger.Warn("Auth service: failed to remove avatar",
			"ref", ref,
			"error", err.Error())
	}
}
