package handler

import (
	"net/http"
	"strconv"

	"github.com/dtroode/gophaccount-server/internal/api/http/response"
	"github.com/dtroode/gophaccount-server/internal/logger"
	"github.com/dtroode/gophaccount-server/internal/model"
)

const (
	defaultQRSize = 256
	minQRSize     = 64
	maxQRSize     = 1024
)

// TwoFactor handles two-factor enrollment.
type TwoFactor struct {
	authService    AuthService
	sessions       SessionService
	contextManager model.ContextManager
	cookie         CookieConfig
	errors         *ErrorWriter
	logger         *logger.Logger
}

func NewTwoFactor(
	authService AuthService,
	sessions SessionService,
	contextManager model.ContextManager,
	cookie CookieConfig,
	errors *ErrorWriter,
	logger *logger.Logger,
) *TwoFactor {
	return &TwoFactor{
		authService:    authService,
		sessions:       sessions,
		contextManager: contextManager,
		cookie:         cookie,
		errors:         errors,
		logger:         logger,
	}
}

// EnrollmentResponse carries an issued, unconfirmed secret.
type EnrollmentResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
	QRCodeURL       string `json:"qr_code_url"`
}

// Pending returns the secret awaiting confirmation, issuing one only when
// none is pending.
func (h *TwoFactor) Pending(w http.ResponseWriter, r *http.Request) {
	enrollment, err := h.authService.PendingTwoFactorEnrollment(r.Context(), callerFrom(r.Context(), h.contextManager))
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, newEnrollmentResponse(enrollment))
}

// Setup issues a new secret for the logged in account, replacing a pending one.
func (h *TwoFactor) Setup(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context(), h.contextManager)

	enrollment, err := h.authService.BeginTwoFactorEnrollment(r.Context(), caller)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}

	h.logger.Info("TwoFactor handler: enrollment started",
		"account_id", caller.AccountID)

	response.JSON(w, http.StatusOK, newEnrollmentResponse(enrollment))
}

func newEnrollmentResponse(e model.Enrollment) EnrollmentResponse {
	return EnrollmentResponse{
		Secret:          e.Secret,
		ProvisioningURI: e.ProvisioningURI,
		QRCodeURL:       "/auth/setup-2fa/qr.png",
	}
}

// QRCode renders the issued secret as a PNG QR code.
func (h *TwoFactor) QRCode(w http.ResponseWriter, r *http.Request) {
	size := defaultQRSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < minQRSize || n > maxQRSize {
			response.Error(w, http.StatusBadRequest, response.MsgBadRequest)
			return
		}
		size = n
	}

	png, err := h.authService.TwoFactorQRCode(r.Context(), callerFrom(r.Context(), h.contextManager), size)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// Enable confirms the issued secret with a one-time code. Every session of
// the account is revoked and the caller gets a fresh session cookie, so
// sessions opened before two-factor was required end here.
func (h *TwoFactor) Enable(w http.ResponseWriter, r *http.Request) {
	f, err := readForm(r)
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}

	caller := callerFrom(r.Context(), h.contextManager)
	account, err := h.authService.ConfirmTwoFactorEnrollment(r.Context(), caller, f.get("otp"))
	if err != nil {
		h.errors.Write(w, r, err)
		return
	}

	if err := h.sessions.RevokeAllForAccount(r.Context(), account.ID); err != nil {
		h.logger.Error("TwoFactor handler: failed to revoke sessions",
			"account_id", account.ID,
			"error", err.Error())
		http.SetCookie(w, h.cookie.cleared())
		h.errors.Write(w, r, err)
		return
	}

	token, err := h.sessions.Issue(r.Context(), account)
	if err != nil {
		http.SetCookie(w, h.cookie.cleared())
		h.errors.Write(w, r, err)
		return
	}
	http.SetCookie(w, h.cookie.session(token, h.sessions.TTL()))

	h.logger.Info("TwoFactor handler: two-factor enabled",
		"account_id", account.ID)

	response.JSON(w, http.StatusOK, newAccountView(account))
}
