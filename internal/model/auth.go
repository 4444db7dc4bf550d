package model

import (
	"context"
	"io"
	"time"
)

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
	Verify(ctx context.Context, plaintext, digest string) (bool, error)
}

// OTPEngine issues and checks time-based one-time password secrets.
type OTPEngine interface {
	GenerateSecret(accountLabel string) (Enrollment, error)
	ProvisioningURI(secret, accountLabel string) (string, error)
	Verify(secret, code string, now time.Time) bool
}

// AvatarStore keeps profile pictures and hands out references to them.
type AvatarStore interface {
	Put(ctx context.Context, upload Upload) (string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Remove(ctx context.Context, ref string) error
}
