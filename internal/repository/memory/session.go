package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/gophaccount-server/internal/model"
)

var _ model.SessionStore = (*SessionRepository)(nil)

type SessionRepository struct {
	mu       sync.Mutex
	sessions map[string]model.SessionRecord
	now      func() time.Time
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		sessions: make(map[string]model.SessionRecord),
		now:      time.Now,
	}
}

func (r *SessionRepository) Create(_ context.Context, record model.SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[record.JTI]; exists {
		return model.ErrConflict
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.TokenHash = append([]byte(nil), record.TokenHash...)
	r.sessions[record.JTI] = record
	return nil
}

func (r *SessionRepository) GetByJTI(_ context.Context, jti string) (model.SessionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.sessions[jti]
	if !ok {
		return model.SessionRecord{}, model.ErrNotFound
	}
	return record, nil
}

func (r *SessionRepository) RevokeByJTI(_ context.Context, jti string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if record, ok := r.sessions[jti]; ok && record.RevokedAt == nil {
		r.revoke(jti, record)
	}
	return nil
}

func (r *SessionRepository) RevokeAllByAccount(_ context.Context, accountID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for jti, record := range r.sessions {
		if record.AccountID == accountID && record.RevokedAt == nil {
			r.revoke(jti, record)
		}
	}
	return nil
}

func (r *SessionRepository) revoke(jti string, record model.SessionRecord) {
	now := r.now()
	record.RevokedAt = &now
	record.UpdatedAt = now
	r.sessions[jti] = record
}
