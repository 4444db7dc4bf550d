// Package password hashes and verifies account passwords with bcrypt.
package password

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// MaxLength is the longest plaintext bcrypt accepts, in bytes.
const MaxLength = 72

// Hasher hashes passwords with a fixed bcrypt cost. Concurrent hashing is
// bounded so a burst of logins cannot occupy every CPU.
type Hasher struct {
	cost int
	sem  *semaphore.Weighted
}

// NewHasher creates a Hasher. Costs outside bcrypt's range fall back to bcrypt.DefaultCost.
func NewHasher(cost int, concurrency int64) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	if concurrency < 1 {
		concurrency = 1
	}

	return &Hasher{
		cost: cost,
		sem:  semaphore.NewWeighted(concurrency),
	}
}

// Hash returns a salted bcrypt digest of plaintext.
func (h *Hasher) Hash(ctx context.Context, plaintext string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("failed to acquire hashing slot: %w", err)
	}
	defer h.sem.Release(1)

	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	return string(digest), nil
}

// Verify reports whether plaintext matches digest. A malformed digest is a
// mismatch, not an error; the error is only set when ctx ends before a
// hashing slot frees up.
func (h *Hasher) Verify(ctx context.Context, plaintext, digest string) (bool, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("failed to acquire hashing slot: %w", err)
	}
	defer h.sem.Release(1)

	// Mismatch, ErrHashTooShort and invalid prefix or cost all mean "no".
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil, nil
}
