package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SessionStore persists issued sessions so they can be revoked.
type SessionStore interface {
	Create(ctx context.Context, record SessionRecord) error
	GetByJTI(ctx context.Context, jti string) (SessionRecord, error)
	RevokeByJTI(ctx context.Context, jti string) error
	RevokeAllByAccount(ctx context.Context, accountID uuid.UUID) error
}

// SessionRecord is the server side state of an issued session token.
type SessionRecord struct {
	ID        uuid.UUID
	JTI       string
	AccountID uuid.UUID
	TokenHash []byte
	IssuedAt  time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session is the authenticated session descriptor carried by the session token.
type Session struct {
	JTI       string
	AccountID uuid.UUID
	Email     string
	Username  string
	AvatarRef string
	ExpiresAt time.Time
}

// SessionFromAccount builds a session descriptor for the account.
func SessionFromAccount(account Account) Session {
	return Session{
		AccountID: account.ID,
		Email:     account.Email,
		Username:  account.Username,
		AvatarRef: account.AvatarRef,
	}
}
