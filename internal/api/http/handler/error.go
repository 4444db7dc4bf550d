package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dtroode/gophaccount-server/internal/api/http/response"
	"github.com/dtroode/gophaccount-server/internal/logger"
	"github.com/dtroode/gophaccount-server/internal/model"
	"github.com/dtroode/gophaccount-server/internal/password"
)

// ErrorWriter maps service errors to HTTP responses. Each failure produces
// exactly one message; unexpected errors never leak their detail.
type ErrorWriter struct {
	minPasswordLength  int
	genericLoginErrors bool
	logger             *logger.Logger
}

func NewErrorWriter(minPasswordLength int, genericLoginErrors bool, logger *logger.Logger) *ErrorWriter {
	return &ErrorWriter{
		minPasswordLength:  minPasswordLength,
		genericLoginErrors: genericLoginErrors,
		logger:             logger,
	}
}

// Write renders err.
func (e *ErrorWriter) Write(w http.ResponseWriter, r *http.Request, err error) {
	status, message := e.status(err)
	if status == http.StatusInternalServerError {
		e.logger.Error("HTTP handler: request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err.Error())
	}
	response.Error(w, status, message)
}

// WriteLogin renders a login failure, collapsing account probing errors when
// generic login errors are configured.
func (e *ErrorWriter) WriteLogin(w http.ResponseWriter, r *http.Request, err error) {
	if e.genericLoginErrors &&
		(errors.Is(err, model.ErrAccountNotFound) ||
			errors.Is(err, model.ErrInvalidCredentials) ||
			errors.Is(err, model.ErrAccountLocked)) {
		response.Error(w, http.StatusUnauthorized, response.MsgGenericLogin)
		return
	}
	e.Write(w, r, err)
}

func (e *ErrorWriter) status(err error) (int, string) {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, e.validationMessage(verr)
	}

	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, response.MsgBadRequest
	case errors.Is(err, model.ErrDuplicateAccount):
		return http.StatusConflict, response.MsgDuplicateAccount
	case errors.Is(err, model.ErrAccountNotFound):
		return http.StatusNotFound, response.MsgAccountNotFound
	case errors.Is(err, model.ErrAccountLocked):
		return http.StatusLocked, response.MsgAccountLocked
	case errors.Is(err, model.ErrInvalidCredentials):
		return http.StatusUnauthorized, response.MsgIncorrectPassword
	case errors.Is(err, model.ErrInvalidOTP):
		return http.StatusUnauthorized, response.MsgInvalidOTP
	case errors.Is(err, model.ErrUnauthenticated),
		errors.Is(err, model.ErrSessionRevoked),
		errors.Is(err, model.ErrSessionExpired),
		errors.Is(err, model.ErrSessionMismatch):
		return http.StatusUnauthorized, response.MsgUnauthenticated
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden, response.MsgForbidden
	case errors.Is(err, model.ErrTwoFactorNotStarted):
		return http.StatusConflict, response.MsgTwoFactorNotStarted
	case errors.Is(err, model.ErrTwoFactorAlreadyEnabled):
		return http.StatusConflict, response.MsgTwoFactorEnabled
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, response.MsgNotFound
	default:
		return http.StatusInternalServerError, response.MsgInternal
	}
}

func (e *ErrorWriter) validationMessage(verr *model.ValidationError) string {
	switch {
	case errors.Is(verr, model.ErrPasswordMismatch):
		return response.MsgPasswordMismatch
	case errors.Is(verr, model.ErrPasswordTooShort):
		return fmt.Sprintf(response.MsgPasswordTooShort, e.minPasswordLength)
	case errors.Is(verr, model.ErrPasswordTooLong):
		return fmt.Sprintf(response.MsgPasswordTooLong, password.MaxLength)
	case errors.Is(verr, model.ErrInvalidAvatar):
		return response.MsgInvalidAvatar
	default:
		return response.MsgMissingFields
	}
}
