package model

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// AccountStore defines persistence operations for accounts.
//
// Save writes profile and two-factor fields only. The failed attempt counter
// and the lock flag change exclusively through RecordLoginFailure and
// ResetLoginFailures, which are atomic per account.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (Account, error)
	FindByID(ctx context.Context, id uuid.UUID) (Account, error)
	Create(ctx context.Context, draft AccountDraft) (Account, error)
	Save(ctx context.Context, account Account) (Account, error)
	RecordLoginFailure(ctx context.Context, id uuid.UUID, maxAttempts int) (Account, error)
	ResetLoginFailures(ctx context.Context, id uuid.UUID) (Account, error)
	Ping(ctx context.Context) error
}

// Account represents a registered user with credential and two-factor state.
type Account struct {
	ID                  uuid.UUID
	Email               string
	Username            string
	PasswordHash        string
	AvatarRef           string
	FailedLoginAttempts int
	Locked              bool
	TwoFactorSecret     string
	TwoFactorEnabled    bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// AccountDraft holds the fields required to create an account.
type AccountDraft struct {
	ID           uuid.UUID
	Email        string
	Username     string
	PasswordHash string
	AvatarRef    string
	CreatedAt    time.Time
}

// Upload is an uploaded file as received from the client.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// Caller describes who performs an operation and when.
// A zero AccountID means the caller is not authenticated.
type Caller struct {
	AccountID uuid.UUID
	Now       time.Time
}

// IsAuthenticated reports whether the caller carries an account identity.
func (c Caller) IsAuthenticated() bool {
	return c.AccountID != uuid.Nil
}
