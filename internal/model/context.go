package model

import (
	"context"
)

// ContextManager stores and retrieves the resolved session in request context.
type ContextManager interface {
	SetSessionToContext(ctx context.Context, session Session) context.Context
	GetSessionFromContext(ctx context.Context) (Session, bool)
}
