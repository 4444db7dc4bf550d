// Package memory provides in-process stores used when no database is
// configured and in tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/gophaccount-server/internal/model"
)

var _ model.AccountStore = (*AccountRepository)(nil)

type accountEntry struct {
	mu      sync.Mutex
	account model.Account
}

// AccountRepository keeps accounts in memory. The index lock only guards the
// maps; counter and lock updates are serialized per account.
type AccountRepository struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*accountEntry
	byEmail map[string]uuid.UUID
	now     func() time.Time
}

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		byID:    make(map[uuid.UUID]*accountEntry),
		byEmail: make(map[string]uuid.UUID),
		now:     time.Now,
	}
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (model.Account, error) {
	r.mu.RLock()
	id, ok := r.byEmail[email]
	r.mu.RUnlock()
	if !ok {
		return model.Account{}, model.ErrNotFound
	}
	return r.FindByID(ctx, id)
}

func (r *AccountRepository) FindByID(_ context.Context, id uuid.UUID) (model.Account, error) {
	entry, ok := r.entry(id)
	if !ok {
		return model.Account{}, model.ErrNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.account, nil
}

func (r *AccountRepository) Create(_ context.Context, draft model.AccountDraft) (model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[draft.Email]; exists {
		return model.Account{}, model.ErrConflict
	}
	if _, exists := r.byID[draft.ID]; exists {
		return model.Account{}, model.ErrConflict
	}

	createdAt := draft.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}

	account := model.Account{
		ID:           draft.ID,
		Email:        draft.Email,
		Username:     draft.Username,
		PasswordHash: draft.PasswordHash,
		AvatarRef:    draft.AvatarRef,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
	r.byID[account.ID] = &accountEntry{account: account}
	r.byEmail[account.Email] = account.ID

	return account, nil
}

func (r *AccountRepository) Save(_ context.Context, account model.Account) (model.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.byID[account.ID]
	if !ok {
		return model.Account{}, model.ErrNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	current := entry.account
	if account.Email != current.Email {
		if owner, taken := r.byEmail[account.Email]; taken && owner != account.ID {
			return model.Account{}, model.ErrConflict
		}
		delete(r.byEmail, current.Email)
		r.byEmail[account.Email] = account.ID
	}

	current.Email = account.Email
	current.Username = account.Username
	current.AvatarRef = account.AvatarRef
	current.TwoFactorSecret = account.TwoFactorSecret
	current.TwoFactorEnabled = account.TwoFactorEnabled
	current.UpdatedAt = r.now()
	entry.account = current

	return current, nil
}

func (r *AccountRepository) RecordLoginFailure(_ context.Context, id uuid.UUID, maxAttempts int) (model.Account, error) {
	entry, ok := r.entry(id)
	if !ok {
		return model.Account{}, model.ErrNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.account.FailedLoginAttempts++
	if entry.account.FailedLoginAttempts >= maxAttempts {
		entry.account.Locked = true
	}
	entry.account.UpdatedAt = r.now()

	return entry.account, nil
}

func (r *AccountRepository) ResetLoginFailures(_ context.Context, id uuid.UUID) (model.Account, error) {
	entry, ok := r.entry(id)
	if !ok {
		return model.Account{}, model.ErrNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.account.Locked {
		return model.Account{}, model.ErrLocked
	}
	entry.account.FailedLoginAttempts = 0
	entry.account.UpdatedAt = r.now()

	return entry.account, nil
}

func (r *AccountRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *AccountRepository) entry(id uuid.UUID) (*accountEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.byID[id]
	return entry, ok
}
