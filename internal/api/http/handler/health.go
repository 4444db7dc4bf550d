package handler

import (
	"context"
	"net/http"

	"github.com/dtroode/gophaccount-server/internal/api/http/response"
	"github.com/dtroode/gophaccount-server/internal/logger"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health reports store reachability.
type Health struct {
	pinger Pinger
	logger *logger.Logger
}

func NewHealth(pinger Pinger, logger *logger.Logger) *Health {
	return &Health{pinger: pinger, logger: logger}
}

func (h *Health) Check(w http.ResponseWriter, r *http.Request) {
	if err := h.pinger.Ping(r.Context()); err != nil {
		h.logger.Warn("Health handler: store unavailable",
			"error", err.Error())
		response.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// NotFound renders unknown routes as JSON.
func NotFound(w http.ResponseWriter, _ *http.Request) {
	response.Error(w, http.StatusNotFound, response.MsgNotFound)
}

// MethodNotAllowed renders unsupported methods as JSON.
func MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	response.Error(w, http.StatusMethodNotAllowed, response.MsgBadRequest)
}
