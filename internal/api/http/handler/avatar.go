package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dtroode/gophaccount-server/internal/logger"
)

// AvatarService opens stored avatars by name.
type AvatarService interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	ContentType(name string) string
}

// Avatar streams stored profile pictures.
type Avatar struct {
	avatars AvatarService
	errors  *ErrorWriter
	logger  *logger.Logger
}

func NewAvatar(avatars AvatarService, errors *ErrorWriter, logger *logger.Logger) *Avatar {
	return &Avatar{
		avatars: avatars,
		errors:  errors,
		logger:  logger,
	}
}

// Serve writes the avatar named by the {name} path parameter.
func (h *Avatar) Serve(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	rc, err := h.avatars.Open(r.Context(), name)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", h.avatars.ContentType(name))
	w.Header().Set("Content-Security-Policy", "default-src 'none'; sandbox")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("Avatar handler: failed to stream avatar",
			"name", name,
			"error", err.Error())
	}
}
