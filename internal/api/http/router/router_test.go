package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	httpctx "github.com/dtroode/gophaccount-server/internal/api/http/context"
	"github.com/dtroode/gophaccount-server/internal/api/http/handler"
	"github.com/dtroode/gophaccount-server/internal/api/http/response"
	"github.com/dtroode/gophaccount-server/internal/model"
	"github.com/dtroode/gophaccount-server/internal/password"
	"github.com/dtroode/gophaccount-server/internal/repository/memory"
	"github.com/dtroode/gophaccount-server/internal/service"
	"github.com/dtroode/gophaccount-server/internal/testutil"
	"github.com/dtroode/gophaccount-server/internal/token"
	"github.com/dtroode/gophaccount-server/internal/totp"
)

const testPassword = "hunter22"

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake image body")

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string][]byte)}
}

func (s *memStorage) Upload(_ context.Context, key string, reader io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *memStorage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, model.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *memStorage) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *memStorage) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

type app struct {
	handler http.Handler
	otp     *totp.Engine
	storage *memStorage
}

func newApp(t *testing.T, genericLoginErrors bool) *app {
	t.Helper()

	lg := testutil.MakeNoopLogger()
	accounts := memory.NewAccountRepository()
	storage := newMemStorage()
	otp := totp.NewEngine("GophAccount", 1)
	avatars := service.NewAvatars(storage, 1<<20, lg)
	auth := service.NewAuth(accounts, password.NewHasher(bcrypt.MinCost, 2), otp, avatars, service.AuthPolicy{}, lg)
	sessions := service.NewSessions(token.NewJWT("test-secret"), memory.NewSessionRepository(), time.Hour, lg)

	r := New(auth, sessions, avatars, auth, httpctx.NewManager(), Options{
		Cookie:             handler.CookieConfig{Name: "session"},
		MinPasswordLength:  6,
		GenericLoginErrors: genericLoginErrors,
		MaxAvatarBytes:     1 << 20,
	}, lg)

	return &app{handler: r.Register(), otp: otp, storage: storage}
}

func (a *app) do(t *testing.T, req *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *app) postForm(t *testing.T, path string, values url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return a.do(t, req, cookie)
}

func (a *app) get(t *testing.T, path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	return a.do(t, httptest.NewRequest(http.MethodGet, path, nil), cookie)
}

func multipartRequest(t *testing.T, path string, fields map[string]string, fileField string, file []byte) *http.Request {
	t.Helper()
	return multipartUpload(t, path, fields, fileField, "me.png", "image/png", file)
}

func multipartUpload(t *testing.T, path string, fields map[string]string, fileField, filename, contentType string, file []byte) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileField != "" {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="`+fileField+`"; filename="`+filename+`"`)
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func registration(email string) url.Values {
	return url.Values{
		"username":        {"alice"},
		"email":           {email},
		"password":        {testPassword},
		"confirmPassword": {testPassword},
	}
}

func login(email, pw string) url.Values {
	return url.Values{"email": {email}, "password": {pw}}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[response.ErrorBody](t, rec).Error
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "session" && c.Value != "" {
			return c
		}
	}
	t.Fatalf("no session cookie in response")
	return nil
}

func (a *app) registerAndLogin(t *testing.T, email string) *http.Cookie {
	t.Helper()
	rec := a.postForm(t, "/auth/register", registration(email), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.postForm(t, "/auth/login", login(email, testPassword), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return sessionCookie(t, rec)
}

func TestRouter_Register(t *testing.T) {
	a := newApp(t, false)

	t.Run("created with avatar", func(t *testing.T) {
		req := multipartRequest(t, "/auth/register", map[string]string{
			"username":        "alice",
			"email":           "alice@example.com",
			"password":        testPassword,
			"confirmPassword": testPassword,
		}, "profilePicture", pngBytes)

		rec := a.do(t, req, nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		view := decode[handler.AccountView](t, rec)
		assert.Equal(t, "alice@example.com", view.Email)
		assert.Equal(t, "alice", view.Username)
		assert.False(t, view.TwoFactorEnabled)
		require.True(t, strings.HasPrefix(view.Avatar, "/avatars/"), view.Avatar)
		assert.True(t, strings.HasSuffix(view.Avatar, ".png"), view.Avatar)

		rec = a.get(t, view.Avatar, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		assert.Equal(t, pngBytes, rec.Body.Bytes())
	})

	tests := []struct {
		name    string
		values  url.Values
		code    int
		message string
	}{
		{
			name:    "missing fields",
			values:  url.Values{"email": {"bob@example.com"}},
			code:    http.StatusBadRequest,
			message: response.MsgMissingFields,
		},
		{
			name: "password mismatch",
			values: url.Values{
				"username": {"bob"}, "email": {"bob@example.com"},
				"password": {testPassword}, "confirmPassword": {"other-password"},
			},
			code:    http.StatusBadRequest,
			message: response.MsgPasswordMismatch,
		},
		{
			name: "password too short",
			values: url.Values{
				"username": {"bob"}, "email": {"bob@example.com"},
				"password": {"abc"}, "confirmPassword": {"abc"},
			},
			code:    http.StatusBadRequest,
			message: "Password must be at least 6 characters long.",
		},
		{
			name:    "duplicate email",
			values:  registration("alice@example.com"),
			code:    http.StatusConflict,
			message: response.MsgDuplicateAccount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.postForm(t, "/auth/register", tt.values, nil)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.message, errorMessage(t, rec))
		})
	}
}

func TestRouter_RegisterRejectsNonImageAvatar(t *testing.T) {
	a := newApp(t, false)

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range registration("carol@example.com") {
		require.NoError(t, mw.WriteField(k, v[0]))
	}
	part, err := mw.CreateFormFile("avatar", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("plain text"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/auth/register", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := a.do(t, req, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, response.MsgInvalidAvatar, errorMessage(t, rec))
	assert.Equal(t, 0, a.storage.len())

	rec = a.postForm(t, "/auth/login", login("carol@example.com", testPassword), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_AvatarServedOnlyAsImage(t *testing.T) {
	a := newApp(t, false)
	fields := map[string]string{
		"username":        "alice",
		"password":        testPassword,
		"confirmPassword": testPassword,
	}

	rejected := []struct {
		name        string
		filename    string
		contentType string
		body        string
	}{
		{"html declared as png", "x.html", "image/png", "<script>alert(document.cookie)</script>"},
		{"svg", "x.svg", "image/svg+xml", `<svg xmlns="http://www.w3.org/2000/svg"><script>alert(1)</script></svg>`},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			fields["email"] = "mallory@example.com"
			rec := a.do(t, multipartUpload(t, "/auth/register", fields, "avatar", tt.filename, tt.contentType, []byte(tt.body)), nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, response.MsgInvalidAvatar, errorMessage(t, rec))
			assert.Equal(t, 0, a.storage.len())
		})
	}

	t.Run("html filename with png content", func(t *testing.T) {
		fields["email"] = "alice@example.com"
		rec := a.do(t, multipartUpload(t, "/auth/register", fields, "avatar", "x.html", "image/png", pngBytes), nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		ref := decode[handler.AccountView](t, rec).Avatar
		assert.True(t, strings.HasSuffix(ref, ".png"), ref)

		rec = a.get(t, ref, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
		assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "sandbox")
	})

	t.Run("stored object with unknown extension", func(t *testing.T) {
		require.NoError(t, a.storage.Upload(context.Background(), "avatars/legacy.html", strings.NewReader("<script></script>"), 17, "text/html"))

		rec := a.get(t, "/avatars/legacy.html", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	})
}

func TestRouter_LoginAndLockout(t *testing.T) {
	a := newApp(t, false)
	rec := a.postForm(t, "/auth/register", registration("alice@example.com"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = a.postForm(t, "/auth/login", login("nobody@example.com", testPassword), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, response.MsgAccountNotFound, errorMessage(t, rec))

	rec = a.postForm(t, "/auth/login", url.Values{"email": {"alice@example.com"}}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, response.MsgMissingFields, errorMessage(t, rec))

	for i := 0; i < 5; i++ {
		rec = a.postForm(t, "/auth/login", login("alice@example.com", "wrong-password"), nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, response.MsgIncorrectPassword, errorMessage(t, rec))
	}

	rec = a.postForm(t, "/auth/login", login("alice@example.com", testPassword), nil)
	assert.Equal(t, http.StatusLocked, rec.Code)
	assert.Equal(t, response.MsgAccountLocked, errorMessage(t, rec))
	assert.Empty(t, rec.Result().Cookies())
}

func TestRouter_GenericLoginErrors(t *testing.T) {
	a := newApp(t, true)
	rec := a.postForm(t, "/auth/register", registration("alice@example.com"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	for _, values := range []url.Values{
		login("nobody@example.com", testPassword),
		login("alice@example.com", "wrong-password"),
	} {
		rec = a.postForm(t, "/auth/login", values, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, response.MsgGenericLogin, errorMessage(t, rec))
	}
}

func TestRouter_SessionLifecycle(t *testing.T) {
	a := newApp(t, false)

	rec := a.get(t, "/profile", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, response.MsgUnauthenticated, errorMessage(t, rec))

	cookie := a.registerAndLogin(t, "alice@example.com")
	assert.True(t, cookie.HttpOnly)

	rec = a.get(t, "/profile", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice@example.com", decode[handler.AccountView](t, rec).Email)

	rec = a.get(t, "/profile/edit", cookie)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.get(t, "/auth/logout", cookie)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.get(t, "/profile", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_LoginResponseCarriesSession(t *testing.T) {
	a := newApp(t, false)
	rec := a.postForm(t, "/auth/register", registration("alice@example.com"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"alice@example.com","password":"`+testPassword+`"}`))
	req.Header.Set("Content-Type", "application/json")

	rec = a.do(t, req, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[handler.LoginResponse](t, rec)
	assert.False(t, resp.ShowOTP)
	require.NotNil(t, resp.Session)
	assert.Equal(t, "alice@example.com", resp.Session.Email)
	assert.Equal(t, "alice", resp.Session.Username)
}

func TestRouter_TwoFactorFlow(t *testing.T) {
	a := newApp(t, false)
	cookie := a.registerAndLogin(t, "alice@example.com")

	rec := a.postForm(t, "/auth/enable-2fa", url.Values{"otp": {"123456"}}, cookie)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, response.MsgTwoFactorNotStarted, errorMessage(t, rec))

	rec = a.postForm(t, "/auth/login", login("alice@example.com", testPassword), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	otherDevice := sessionCookie(t, rec)

	rec = a.get(t, "/auth/setup-2fa", cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pending := decode[handler.EnrollmentResponse](t, rec)
	require.NotEmpty(t, pending.Secret)

	rec = a.get(t, "/auth/setup-2fa", cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, pending.Secret, decode[handler.EnrollmentResponse](t, rec).Secret)

	rec = a.postForm(t, "/auth/setup-2fa", url.Values{}, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	enrollment := decode[handler.EnrollmentResponse](t, rec)
	require.NotEmpty(t, enrollment.Secret)
	assert.NotEqual(t, pending.Secret, enrollment.Secret)
	assert.Contains(t, enrollment.ProvisioningURI, "otpauth://totp/")

	rec = a.get(t, "/auth/setup-2fa", cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, enrollment.Secret, decode[handler.EnrollmentResponse](t, rec).Secret)

	rec = a.get(t, "/auth/setup-2fa/qr.png?size=128", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	rec = a.get(t, "/auth/setup-2fa/qr.png?size=5000", cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.postForm(t, "/auth/enable-2fa", url.Values{"otp": {"abcdef"}}, cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, response.MsgInvalidOTP, errorMessage(t, rec))

	code, err := a.otp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)

	rec = a.postForm(t, "/auth/enable-2fa", url.Values{"otp": {code}}, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decode[handler.AccountView](t, rec).TwoFactorEnabled)
	fresh := sessionCookie(t, rec)
	assert.NotEqual(t, cookie.Value, fresh.Value)

	for _, stale := range []*http.Cookie{cookie, otherDevice} {
		rec = a.get(t, "/profile", stale)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec = a.get(t, "/profile", fresh)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.get(t, "/auth/setup-2fa", fresh)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, response.MsgTwoFactorEnabled, errorMessage(t, rec))

	rec = a.get(t, "/auth/setup-2fa/qr.png", fresh)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, response.MsgTwoFactorEnabled, errorMessage(t, rec))

	rec = a.postForm(t, "/auth/login", login("alice@example.com", testPassword), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[handler.LoginResponse](t, rec).ShowOTP)
	assert.Empty(t, rec.Result().Cookies())

	values := login("alice@example.com", testPassword)
	values.Set("otp", "000000")
	if code == "000000" {
		values.Set("otp", "111111")
	}
	rec = a.postForm(t, "/auth/login", values, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, response.MsgInvalidOTP, errorMessage(t, rec))

	code, err = a.otp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	values.Set("otp", code)

	rec = a.postForm(t, "/auth/login", values, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sessionCookie(t, rec)
}

func TestRouter_ProfileEdit(t *testing.T) {
	a := newApp(t, false)
	cookie := a.registerAndLogin(t, "alice@example.com")

	req := multipartRequest(t, "/profile/edit", map[string]string{"username": "alice2"}, "avatar", pngBytes)
	rec := a.do(t, req, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	view := decode[handler.AccountView](t, rec)
	assert.Equal(t, "alice2", view.Username)
	assert.Equal(t, "alice@example.com", view.Email)
	assert.NotEmpty(t, view.Avatar)
	assert.Equal(t, 1, a.storage.len())

	rotated := sessionCookie(t, rec)
	assert.NotEqual(t, cookie.Value, rotated.Value)

	rec = a.get(t, "/profile", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.get(t, "/profile", rotated)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice2", decode[handler.AccountView](t, rec).Username)

	req = multipartRequest(t, "/profile/edit", nil, "avatar", pngBytes)
	rec = a.do(t, req, rotated)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, view.Avatar, decode[handler.AccountView](t, rec).Avatar)
	assert.Equal(t, 1, a.storage.len())

	rotated = sessionCookie(t, rec)

	rec = a.postForm(t, "/profile/edit", url.Values{"username": {""}}, rotated)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, response.MsgMissingFields, errorMessage(t, rec))
}

func TestRouter_ProfileEditOtherAccount(t *testing.T) {
	a := newApp(t, false)
	cookie := a.registerAndLogin(t, "alice@example.com")

	rec := a.postForm(t, "/auth/register", registration("bob@example.com"), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	bob := decode[handler.AccountView](t, rec)

	rec = a.postForm(t, "/profile/edit", url.Values{"id": {bob.ID.String()}, "username": {"mallory"}}, cookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, response.MsgForbidden, errorMessage(t, rec))

	rec = a.postForm(t, "/profile/edit", url.Values{"id": {"not-a-uuid"}}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.postForm(t, "/profile/edit", url.Values{"email": {"bob@example.com"}}, cookie)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, response.MsgDuplicateAccount, errorMessage(t, rec))
}

func TestRouter_Misc(t *testing.T) {
	a := newApp(t, false)

	rec := a.get(t, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])

	rec = a.get(t, "/avatars/missing.png", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.get(t, "/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, response.MsgNotFound, errorMessage(t, rec))

	rec = a.get(t, "/auth/login", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = a.do(t, httptest.NewRequest(http.MethodGet, "/profile", nil), &http.Cookie{Name: "session", Value: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
