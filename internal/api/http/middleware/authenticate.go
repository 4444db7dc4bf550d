package middleware

import (
	"context"
	"net/http"

	"github.com/dtroode/gophaccount-server/internal/api/http/response"
	"github.com/dtroode/gophaccount-server/internal/logger"
	"github.com/dtroode/gophaccount-server/internal/model"
)

// SessionResolver resolves a session cookie value.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (model.Session, error)
}

// Authenticate resolves the session cookie and stores the session in the
// request context. Requests without a valid session pass through anonymous.
type Authenticate struct {
	sessions       SessionResolver
	contextManager model.ContextManager
	cookieName     string
	logger         *logger.Logger
}

func NewAuthenticate(sessions SessionResolver, contextManager model.ContextManager, cookieName string, logger *logger.Logger) *Authenticate {
	return &Authenticate{
		sessions:       sessions,
		contextManager: contextManager,
		cookieName:     cookieName,
		logger:         logger,
	}
}

// Handle resolves the session cookie, if present.
func (m *Authenticate) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(m.cookieName)
		if err != nil || cookie.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		session, err := m.sessions.Resolve(r.Context(), cookie.Value)
		if err != nil {
			m.logger.Debug("Authenticate middleware: session rejected",
				"path", r.URL.Path,
				"error", err.Error())
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(m.contextManager.SetSessionToContext(r.Context(), session)))
	})
}

// RequireSession rejects requests that carry no resolved session.
func (m *Authenticate) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := m.contextManager.GetSessionFromContext(r.Context()); !ok {
			response.Error(w, http.StatusUnauthorized, response.MsgUnauthenticated)
			return
		}
		next.ServeHTTP(w, r)
	})
}
