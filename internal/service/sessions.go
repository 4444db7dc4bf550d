package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/gophaccount-server/internal/logger"
	"github.com/dtroode/gophaccount-server/internal/model"
)

// Sessions issues, resolves and revokes cookie session tokens. The token is a
// signed descriptor; the store keeps its hash so it can be revoked server side.
type Sessions struct {
	manager model.TokenManager
	store   model.SessionStore
	ttl     time.Duration
	logger  *logger.Logger
	now     func() time.Time
}

func NewSessions(manager model.TokenManager, store model.SessionStore, ttl time.Duration, logger *logger.Logger) *Sessions {
	return &Sessions{
		manager: manager,
		store:   store,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
	}
}

// TTL returns the lifetime of issued sessions.
func (s *Sessions) TTL() time.Duration {
	return s.ttl
}

// Issue signs a session token for the account and persists its hash.
func (s *Sessions) Issue(ctx context.Context, account model.Account) (string, error) {
	token, jti, err := s.manager.GenerateSessionToken(model.SessionFromAccount(account), s.ttl)
	if err != nil {
		return "", fmt.Errorf("issue session: %w", err)
	}

	now := s.now()
	record := model.SessionRecord{
		ID:        uuid.New(),
		JTI:       jti,
		AccountID: account.ID,
		TokenHash: hashToken(token),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.Create(ctx, record); err != nil {
		s.logger.Error("Sessions service: failed to persist session",
			"account_id", account.ID,
			"error", err.Error())
		return "", fmt.Errorf("persist session: %w", err)
	}

	s.logger.Debug("Sessions service: session issued",
		"account_id", account.ID,
		"jti", jti)

	return token, nil
}

// Resolve validates the presented token against its stored record and returns
// the session descriptor.
func (s *Sessions) Resolve(ctx context.Context, token string) (model.Session, error) {
	session, err := s.manager.ParseSessionToken(token)
	if err != nil {
		return model.Session{}, err
	}

	record, err := s.store.GetByJTI(ctx, session.JTI)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Session{}, model.ErrSessionRevoked
		}
		return model.Session{}, fmt.Errorf("load session: %w", err)
	}

	if err := validateRecord(record, session.AccountID, hashToken(token), s.now()); err != nil {
		return model.Session{}, err
	}

	return session, nil
}

// Revoke marks the session carried by token as revoked.
func (s *Sessions) Revoke(ctx context.Context, token string) error {
	session, err := s.manager.ParseSessionToken(token)
	if err != nil {
		return err
	}

	if err := s.store.RevokeByJTI(ctx, session.JTI); err != nil {
		s.logger.Error("Sessions service: failed to revoke session",
			"jti", session.JTI,
			"error", err.Error())
		return fmt.Errorf("revoke session: %w", err)
	}

	s.logger.Debug("Sessions service: session revoked",
		"account_id", session.AccountID,
		"jti", session.JTI)

	return nil
}

func (s *Sessions) RevokeAllForAccount(ctx context.Context, accountID uuid.UUID) error {
	if err := s.store.RevokeAllByAccount(ctx, accountID); err != nil {
		return fmt.Errorf("revoke account sessions: %w", err)
	}
	return nil
}

// Rotate revokes oldToken and issues a session carrying the account's current
// profile fields.
func (s *Sessions) Rotate(ctx context.Context, oldToken string, account model.Account) (string, error) {
	if oldToken != "" {
		if err := s.Revoke(ctx, oldToken); err != nil {
			return "", fmt.Errorf("revoke old session: %w", err)
		}
	}

	return s.Issue(ctx, account)
}

func hashToken(token string) []byte {
	h := sha256.Sum256([]byte(token))
	return h[:]
}

func validateRecord(record model.SessionRecord, accountID uuid.UUID, presentedHash []byte, now time.Time) error {
	if record.RevokedAt != nil {
		return model.ErrSessionRevoked
	}
	if now.After(record.ExpiresAt) {
		return model.ErrSessionExpired
	}
	if record.AccountID != accountID || subtle.ConstantTimeCompare(record.TokenHash, presentedHash) != 1 {
		return model.ErrSessionMismatch
	}
	return nil
}
