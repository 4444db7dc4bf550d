package handler

import (
	"net/http"
	"time"

	"github.com/dtroode/gophaccount-server/internal/api/http/response"
	"github.com/dtroode/gophaccount-server/internal/logger"
	"github.com/dtroode/gophaccount-server/internal/model"
)

// Auth handles registration, login and logout.
type Auth struct {
	authService AuthService
	sessions    SessionService
	cookie      CookieConfig
	errors      *ErrorWriter
	logger      *logger.Logger
}

func NewAuth(authService AuthService, sessions SessionService, cookie CookieConfig, errors *ErrorWriter, logger *logger.Logger) *Auth {
	return &Auth{
		authService: authService,
		sessions:    sessions,
		cookie:      cookie,
		errors:      errors,
		logger:      logger,
	}
}

// LoginResponse is returned by the login endpoint.
type LoginResponse struct {
	ShowOTP bool         `json:"show_otp,omitempty"`
	Session *SessionView `json:"session,omitempty"`
}

// Register creates an account from form fields and an optional avatar file.
func (h *Auth) Register(w http.ResponseWriter, r *http.Request) {
	f, err := readForm(r)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}

	avatar, closeAvatar, err := f.upload("avatar", "profilePicture")
	defer closeAvatar()
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}

	params := model.RegisterParams{
		Username:        f.get("username"),
		Email:           f.get("email"),
		Password:        f.get("password"),
		ConfirmPassword: f.get("confirmPassword"),
		Avatar:          avatar,
	}

	h.logger.Debug("Auth handler: processing registration request",
		"email", params.Email)

	account, err := h.authService.Register(r.Context(), params)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}

	h.logger.Info("Auth handler: registration completed",
		"account_id", account.ID)

	response.JSON(w, http.StatusCreated, newAccountView(account))
}

// Login checks credentials and sets the session cookie, or asks for a
// one-time code when two-factor authentication is enabled.
func (h *Auth) Login(w http.ResponseWriter, r *http.Request) {
	f, err := readForm(r)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}

	result, err := h.authService.Login(r.Context(), model.LoginParams{
		Email:    f.get("email"),
		Password: f.get("password"),
		OTP:      f.get("otp"),
		Now:      time.Now(),
	})
	if err != nil {
		h.errors.WriteLogin(w, r, err)
		return
	}

	if result.State == model.LoginAwaitingOTP {
		response.JSON(w, http.StatusOK, LoginResponse{ShowOTP: true})
		return
	}

	token, err := h.sessions.Issue(r.Context(), result.Account)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}

	http.SetCookie(w, h.cookie.session(token, h.sessions.TTL()))

	view := newSessionView(result.Account)
	response.JSON(w, http.StatusOK, LoginResponse{Session: &view})
}

// Logout revokes the current session and clears the cookie.
func (h *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	if token := h.cookie.token(r); token != "" {
		if err := h.sessions.Revoke(r.Context(), token); err != nil {
			h.logger.Debug("Auth handler: session not revoked on logout",
				"error", err.Error())
		}
	}

	http.SetCookie(w, h.cookie.cleared())
	response.JSON(w, http.StatusOK, map[string]bool{"logged_out": true})
}
