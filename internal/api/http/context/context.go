package context

import (
	"context"

	"github.com/dtroode/gophaccount-server/internal/model"
)

type sessionKey struct{}

// Manager stores the resolved session in request context.
type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

var _ model.ContextManager = (*Manager)(nil)

// SetSessionToContext returns a copy of ctx carrying session.
func (m *Manager) SetSessionToContext(ctx context.Context, session model.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

// GetSessionFromContext returns the session stored in ctx, if any.
func (m *Manager) GetSessionFromContext(ctx context.Context) (model.Session, bool) {
	session, ok := ctx.Value(sessionKey{}).(model.Session)
	if !ok {
		return model.Session{}, false
	}
	return session, true
}
