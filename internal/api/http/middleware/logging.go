package middleware

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/dtroode/gophaccount-server/internal/logger"
)

// Logging logs every HTTP request with its status and duration.
type Logging struct {
	logger *logger.Logger
}

func NewLogging(logger *logger.Logger) *Logging {
	return &Logging{logger: logger}
}

// Handle wraps next with request logging.
func (l *Logging) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := chimiddleware.GetReqID(r.Context())

		l.logger.Debug("HTTP request started",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestID)

		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		args := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestID,
		}

		if status >= http.StatusInternalServerError {
			l.logger.Error("HTTP request failed", args...)
			return
		}
		l.logger.Info("HTTP request completed", args...)
	})
}
