package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/gophaccount-server/internal/model"
)

// AuthService defines the account operations exposed over HTTP.
type AuthService interface {
	Register(ctx context.Context, params model.RegisterParams) (model.Account, error)
	Login(ctx context.Context, params model.LoginParams) (model.LoginResult, error)
	PendingTwoFactorEnrollment(ctx context.Context, caller model.Caller) (model.Enrollment, error)
	BeginTwoFactorEnrollment(ctx context.Context, caller model.Caller) (model.Enrollment, error)
	ConfirmTwoFactorEnrollment(ctx context.Context, caller model.Caller, otp string) (model.Account, error)
	TwoFactorQRCode(ctx context.Context, caller model.Caller, size int) ([]byte, error)
	UpdateProfile(ctx context.Context, caller model.Caller, accountID uuid.UUID, params model.ProfileParams) (model.Account, error)
	GetAccount(ctx context.Context, caller model.Caller) (model.Account, error)
}

// SessionService defines session cookie operations.
type SessionService interface {
	Issue(ctx context.Context, account model.Account) (string, error)
	Revoke(ctx context.Context, token string) error
	RevokeAllForAccount(ctx context.Context, accountID uuid.UUID) error
	Rotate(ctx context.Context, oldToken string, account model.Account) (string, error)
	TTL() time.Duration
}

// CookieConfig describes the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
}

func (c CookieConfig) session(token string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (c CookieConfig) cleared() *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (c CookieConfig) token(r *http.Request) string {
	cookie, err := r.Cookie(c.Name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func callerFrom(ctx context.Context, cm model.ContextManager) model.Caller {
	caller := model.Caller{Now: time.Now()}
	if session, ok := cm.GetSessionFromContext(ctx); ok {
		caller.AccountID = session.AccountID
	}
	return caller
}

// AccountView is the public representation of an account.
type AccountView struct {
	ID               uuid.UUID `json:"id"`
	Email            string    `json:"email"`
	Username         string    `json:"username"`
	Avatar           string    `json:"avatar,omitempty"`
	TwoFactorEnabled bool      `json:"two_factor_enabled"`
	CreatedAt        time.Time `json:"created_at"`
}

func newAccountView(a model.Account) AccountView {
	return AccountView{
		ID:               a.ID,
		Email:            a.Email,
		Username:         a.Username,
		Avatar:           a.AvatarRef,
		TwoFactorEnabled: a.TwoFactorEnabled,
		CreatedAt:        a.CreatedAt,
	}
}

// SessionView is the session descriptor returned after login.
type SessionView struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Username string    `json:"username,omitempty"`
	Avatar   string    `json:"avatar,omitempty"`
}

func newSessionView(a model.Account) SessionView {
	return SessionView{
		ID:       a.ID,
		Email:    a.Email,
		Username: a.Username,
		Avatar:   a.AvatarRef,
	}
}

var errBadRequest = errors.New("malformed request body")

// form is the submitted input of urlencoded, multipart or JSON requests.
type form struct {
	values url.Values
	files  map[string][]*multipart.FileHeader
}

const multipartMemory = 1 << 20

func readForm(r *http.Request) (*form, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return nil, fmt.Errorf("%w: %v", errBadRequest, err)
		}
		return &form{values: r.MultipartForm.Value, files: r.MultipartForm.File}, nil
	case "application/json":
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %v", errBadRequest, err)
		}
		values := url.Values{}
		for k, v := range body {
			values.Set(k, v)
		}
		return &form{values: values}, nil
	default:
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("%w: %v", errBadRequest, err)
		}
		return &form{values: r.PostForm}, nil
	}
}

func (f *form) get(key string) string {
	return f.values.Get(key)
}

func (f *form) optional(key string) *string {
	if _, ok := f.values[key]; !ok {
		return nil
	}
	v := f.values.Get(key)
	return &v
}

// upload opens the first file submitted under any of keys. The returned
// closer must be called once the upload is consumed.
func (f *form) upload(keys ...string) (*model.Upload, func(), error) {
	for _, key := range keys {
		headers := f.files[key]
		if len(headers) == 0 || headers[0].Size == 0 {
			continue
		}

		fh := headers[0]
		file, err := fh.Open()
		if err != nil {
			return nil, func() {}, fmt.Errorf("failed to open uploaded file: %w", err)
		}

		return &model.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Reader:      file,
		}, func() { _ = file.Close() }, nil
	}
	return nil, func() {}, nil
}
