package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dtroode/gophaccount-server/internal/model"
)

var _ model.AccountStore = (*AccountRepository)(nil)

const uniqueViolation = "23505"

const accountColumns = `id, email, username, password_hash, avatar_ref, failed_login_attempts,
			  locked, two_factor_secret, two_factor_enabled, created_at, updated_at`

type AccountRepository struct {
	db DBTX
}

func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{
		db: db,
	}
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, model.ErrNotFound
		}
		return model.Account{}, fmt.Errorf("failed to get account by email: %w", err)
	}

	return account, nil
}

func (r *AccountRepository) FindByID(ctx context.Context, id uuid.UUID) (model.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, model.ErrNotFound
		}
		return model.Account{}, fmt.Errorf("failed to get account by id: %w", err)
	}

	return account, nil
}

func (r *AccountRepository) Create(ctx context.Context, draft model.AccountDraft) (model.Account, error) {
	query := `INSERT INTO accounts (id, email, username, password_hash, avatar_ref, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $6)
			  RETURNING ` + accountColumns

	account, err := scanAccount(r.db.QueryRowContext(ctx, query,
		draft.ID, draft.Email, draft.Username, draft.PasswordHash, draft.AvatarRef, draft.CreatedAt,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return model.Account{}, model.ErrConflict
		}
		return model.Account{}, fmt.Errorf("failed to create account: %w", err)
	}

	return account, nil
}

// Save updates profile and two-factor columns. Counter and lock columns are
// owned by RecordLoginFailure and ResetLoginFailures.
func (r *AccountRepository) Save(ctx context.Context, account model.Account) (model.Account, error) {
	query := `UPDATE accounts
			  SET email = $2, username = $3, avatar_ref = $4,
			      two_factor_secret = $5, two_factor_enabled = $6, updated_at = NOW()
			  WHERE id = $1
			  RETURNING ` + accountColumns

	saved, err := scanAccount(r.db.QueryRowContext(ctx, query,
		account.ID, account.Email, account.Username, account.AvatarRef,
		account.TwoFactorSecret, account.TwoFactorEnabled,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, model.ErrNotFound
		}
		if isUniqueViolation(err) {
			return model.Account{}, model.ErrConflict
		}
		return model.Account{}, fmt.Errorf("failed to save account: %w", err)
	}

	return saved, nil
}

// RecordLoginFailure increments the failed attempt counter and locks the
// account once the counter reaches maxAttempts, in one statement.
func (r *AccountRepository) RecordLoginFailure(ctx context.Context, id uuid.UUID, maxAttempts int) (model.Account, error) {
	query := `UPDATE accounts
			  SET failed_login_attempts = failed_login_attempts + 1,
			      locked = locked OR failed_login_attempts + 1 >= $2,
			      updated_at = NOW()
			  WHERE id = $1
			  RETURNING ` + accountColumns

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, id, maxAttempts))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Account{}, model.ErrNotFound
		}
		return model.Account{}, fmt.Errorf("failed to record login failure: %w", err)
	}

	return account, nil
}

// ResetLoginFailures zeroes the counter unless the account got locked in the
// meantime, in which case model.ErrLocked is returned.
func (r *AccountRepository) ResetLoginFailures(ctx context.Context, id uuid.UUID) (model.Account, error) {
	query := `UPDATE accounts
			  SET failed_login_attempts = 0, locked = FALSE, updated_at = NOW()
			  WHERE id = $1 AND NOT locked
			  RETURNING ` + accountColumns

	account, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Account{}, fmt.Errorf("failed to reset login failures: %w", err)
	}

	if _, err := r.FindByID(ctx, id); err != nil {
		return model.Account{}, err
	}

	return model.Account{}, model.ErrLocked
}

func (r *AccountRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (model.Account, error) {
	var a model.Account
	err := row.Scan(
		&a.ID, &a.Email, &a.Username, &a.PasswordHash, &a.AvatarRef, &a.FailedLoginAttempts,
		&a.Locked, &a.TwoFactorSecret, &a.TwoFactorEnabled, &a.CreatedAt, &a.UpdatedAt,
	)
	return a, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
