package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/dtroode/gophaccount-server/internal/model"
)

var _ model.SessionStore = (*SessionRepository)(nil)

type SessionRepository struct {
	db DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session model.SessionRecord) error {
	const query = `
        INSERT INTO sessions (
            id, jti, account_id, token_hash, issued_at, expires_at, revoked_at, created_at, updated_at
        ) VALUES ($1,$2,$3,$4,$5,$6,$7,NOW(),NOW())
    `

	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}

	_, err := r.db.ExecContext(ctx, query,
		session.ID, session.JTI, session.AccountID, session.TokenHash, session.IssuedAt, session.ExpiresAt,
		session.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetByJTI(ctx context.Context, jti string) (model.SessionRecord, error) {
	const query = `
        SELECT id, jti, account_id, token_hash, issued_at, expires_at, revoked_at, created_at, updated_at
        FROM sessions WHERE jti = $1
    `
	var s model.SessionRecord
	err := r.db.QueryRowContext(ctx, query, jti).Scan(
		&s.ID, &s.JTI, &s.AccountID, &s.TokenHash, &s.IssuedAt, &s.ExpiresAt,
		&s.RevokedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.SessionRecord{}, model.ErrNotFound
		}
		return model.SessionRecord{}, fmt.Errorf("failed to get session by jti: %w", err)
	}
	return s, nil
}

func (r *SessionRepository) RevokeByJTI(ctx context.Context, jti string) error {
	const query = `
        UPDATE sessions SET revoked_at = NOW(), updated_at = NOW()
        WHERE jti = $1 AND revoked_at IS NULL
    `
	if _, err := r.db.ExecContext(ctx, query, jti); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

func (r *SessionRepository) RevokeAllByAccount(ctx context.Context, accountID uuid.UUID) error {
	const query = `
        UPDATE sessions SET revoked_at = NOW(), updated_at = NOW()
        WHERE account_id = $1 AND revoked_at IS NULL
    `
	if _, err := r.db.ExecContext(ctx, query, accountID); err != nil {
		return fmt.Errorf("failed to revoke sessions by account: %w", err)
	}
	return nil
}
