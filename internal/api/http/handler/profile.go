package handler

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/dtroode/gophaccount-server/internal/api/http/response"
	"github.com/dtroode/gophaccount-server/internal/logger"
	"github.com/dtroode/gophaccount-server/internal/model"
)

// Profile handles the profile page and profile edits.
type Profile struct {
	authService    AuthService
	sessions       SessionService
	contextManager model.ContextManager
	cookie         CookieConfig
	errors         *ErrorWriter
	logger         *logger.Logger
}

func NewProfile(
	authService AuthService,
	sessions SessionService,
	contextManager model.ContextManager,
	cookie CookieConfig,
	errors *ErrorWriter,
	logger *logger.Logger,
) *Profile {
	return &Profile{
		authService:    authService,
		sessions:       sessions,
		contextManager: contextManager,
		cookie:         cookie,
		errors:         errors,
		logger:         logger,
	}
}

// Show returns the logged in account.
func (h *Profile) Show(w http.ResponseWriter, r *http.Request) {
	account, err := h.authService.GetAccount(r.Context(), callerFrom(r.Context(), h.contextManager))
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, newAccountView(account))
}

// Edit updates the submitted profile fields and re-issues the session cookie
// so it carries the new profile.
func (h *Profile) Edit(w http.ResponseWriter, r *http.Request) {
	f, err := readForm(r)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}

	caller := callerFrom(r.Context(), h.contextManager)
	accountID := caller.AccountID
	if raw := f.get("id"); raw != "" {
		accountID, err = uuid.Parse(raw)
		if err != nil {
			h.errors.Write(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
	}

	avatar, closeAvatar, err := f.upload("avatar", "profilePicture")
	defer closeAvatar()
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}

	account, err := h.authService.UpdateProfile(r.Context(), caller, accountID, model.ProfileParams{
		Username: f.optional("username"),
		Email:    f.optional("email"),
		Avatar:   avatar,
	})
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}

	token, err := h.sessions.Rotate(r.Context(), h.cookie.token(r), account)
	if err != nil {
		h.logger.Error("Profile handler: failed to rotate session",
			"account_id", account.ID,
			"error", err.Error())
	} else {
		http.SetCookie(w, h.cookie.session(token, h.sessions.TTL()))
	}

	h.logger.Info("Profile handler: profile updated",
		"account_id", account.ID)

	response.JSON(w, http.StatusOK, newAccountView(account))
}
