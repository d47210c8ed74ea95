package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/brewstore/brewstore-server/internal/api"
	"github.com/brewstore/brewstore-server/internal/app"
	iauth "github.com/brewstore/brewstore-server/internal/auth"
	"github.com/brewstore/brewstore-server/internal/auth/mfa"
	"github.com/brewstore/brewstore-server/internal/database/testutil"
	"github.com/brewstore/brewstore-server/internal/services"
	"github.com/brewstore/brewstore-server/pkg/mail"
)

type captureMailer struct {
	sent []mail.Message
}

func (m *captureMailer) Send(_ context.Context, msg mail.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

var sixDigitPattern = regexp.MustCompile(`\d{6}`)

type fixture struct {
	router *gin.Engine
	db     *gorm.DB
	mailer *captureMailer
}

func setupRouter(t *testing.T) *fixture {
	t.Helper()
	return setupRouterWithRecaptcha(t, services.RecaptchaConfig{Enabled: false})
}

func setupRouterWithRecaptcha(t *testing.T, recaptchaCfg services.RecaptchaConfig) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t)
	mailer := &captureMailer{}

	cfg := &app.Config{}
	cfg.Server.Environment = "test"
	cfg.Frontend.URL = "https://shop.example.com"

	tokens, err := iauth.NewTokenService(iauth.TokenConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		Issuer:        "brewstore",
	})
	require.NoError(t, err)

	totpSvc, err := mfa.NewTOTPService(db)
	require.NoError(t, err)

	otpSvc, err := iauth.NewOTPService(db, mailer, iauth.OTPConfig{})
	require.NoError(t, err)

	lockout, err := iauth.NewLockoutGuard(db, iauth.LockoutConfig{})
	require.NoError(t, err)

	recaptcha, err := services.NewRecaptchaService(recaptchaCfg)
	require.NoError(t, err)

	policy := iauth.NewPasswordPolicy()

	login, err := iauth.NewLoginService(iauth.LoginDeps{
		DB:        db,
		Tokens:    tokens,
		TOTP:      totpSvc,
		OTP:       otpSvc,
		Policy:    policy,
		Lockout:   lockout,
		Recaptcha: recaptcha,
	})
	require.NoError(t, err)

	resets, err := services.NewPasswordResetService(db, mailer, policy, services.PasswordResetConfig{
		FrontendURL: cfg.Frontend.URL,
	})
	require.NoError(t, err)

	router, err := api.NewRouter(cfg, api.Deps{
		DB:     db,
		Tokens: tokens,
		Login:  login,
		TOTP:   totpSvc,
		OTP:    otpSvc,
		Resets: resets,
	})
	require.NoError(t, err)

	return &fixture{router: router, db: db, mailer: mailer}
}

func (f *fixture) post(t *testing.T, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func cookieByName(t *testing.T, w *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()

	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %q not set", name)
	return nil
}

func (f *fixture) lastEmailedCode(t *testing.T) string {
	t.Helper()

	require.NotEmpty(t, f.mailer.sent)
	code := sixDigitPattern.FindString(f.mailer.sent[len(f.mailer.sent)-1].Body)
	require.Len(t, code, 6)
	return code
}

func registerMaya(t *testing.T, f *fixture) {
	t.Helper()

	w := f.post(t, "/api/auth/register",
		`{"name":"Maya Bean","email":"maya@example.com","password":"Sup3r$ecret"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "User registered successfully", decodeBody(t, w)["msg"])
}

// loginMaya walks the password and OTP steps, returning the final recorder.
func loginMaya(t *testing.T, f *fixture) *httptest.ResponseRecorder {
	t.Helper()

	w := f.post(t, "/api/auth/login", `{"email":"maya@example.com","password":"Sup3r$ecret"}`)
	require.Equal(t, http.StatusPartialContent, w.Code)

	body := decodeBody(t, w)
	require.Equal(t, true, body["otpRequired"])
	require.Equal(t, "OTP sent to your email", body["msg"])

	userID, _ := body["userId"].(string)
	require.NotEmpty(t, userID)

	w = f.post(t, "/api/auth/login",
		`{"userId":"`+userID+`","otpCode":"`+f.lastEmailedCode(t)+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	return w
}

func TestRegisterDuplicate(t *testing.T) {
	f := setupRouter(t)
	registerMaya(t, f)

	w := f.post(t, "/api/auth/register",
		`{"name":"Maya Bean","email":"maya@example.com","password":"Sup3r$ecret"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "User already exists", decodeBody(t, w)["msg"])
}

// The storefront submits the recaptcha response under the "token" key; it has
// to reach the verifier as-is or every real registration fails the challenge.
func TestRegisterForwardsRecaptchaToken(t *testing.T) {
	var received string
	verify := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		received = r.PostFormValue("response")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": true}`))
	}))
	defer verify.Close()

	f := setupRouterWithRecaptcha(t, services.RecaptchaConfig{
		Enabled:  true,
		Secret:   "server-secret",
		Endpoint: verify.URL,
	})

	w := f.post(t, "/api/auth/register",
		`{"name":"Jane Doe","email":"jane@example.com","password":"Sup3r$ecret","token":"challenge-response"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "User registered successfully", decodeBody(t, w)["msg"])
	require.Equal(t, "challenge-response", received)
}

func TestLoginFlowSetsCookiesAndReturnsUser(t *testing.T) {
	f := setupRouter(t)
	registerMaya(t, f)

	w := loginMaya(t, f)
	body := decodeBody(t, w)
	require.NotEmpty(t, body["token"])

	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "Maya Bean", user["name"])
	require.Equal(t, "maya@example.com", user["email"])
	require.Equal(t, false, user["isAdmin"])

	access := cookieByName(t, w, "token")
	require.True(t, access.HttpOnly)
	require.Equal(t, "/", access.Path)
	require.Equal(t, http.SameSiteLaxMode, access.SameSite)
	require.False(t, access.Secure, "secure only in production")

	refresh := cookieByName(t, w, "refreshToken")
	require.True(t, refresh.HttpOnly)
	require.NotEmpty(t, refresh.Value)
}

func TestLoginWrongPassword(t *testing.T) {
	f := setupRouter(t)
	registerMaya(t, f)

	w := f.post(t, "/api/auth/login", `{"email":"maya@example.com","password":"Wr0ng$pass"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "Invalid credentials", decodeBody(t, w)["msg"])
}

func TestRefreshRotatesCookie(t *testing.T) {
	f := setupRouter(t)
	registerMaya(t, f)

	login := loginMaya(t, f)
	refresh := cookieByName(t, login, "refreshToken")

	w := f.post(t, "/api/auth/refresh", "", refresh)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Token refreshed", decodeBody(t, w)["msg"])

	rotated := cookieByName(t, w, "refreshToken")
	require.NotEqual(t, refresh.Value, rotated.Value)

	// The consumed token is rejected on replay.
	w = f.post(t, "/api/auth/refresh", "", refresh)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "Invalid refresh token", decodeBody(t, w)["msg"])
}

func TestRefreshWithoutCookie(t *testing.T) {
	f := setupRouter(t)

	w := f.post(t, "/api/auth/refresh", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "No refresh token", decodeBody(t, w)["msg"])
}

func TestLogoutClearsCookies(t *testing.T) {
	f := setupRouter(t)
	registerMaya(t, f)

	login := loginMaya(t, f)
	refresh := cookieByName(t, login, "refreshToken")

	w := f.post(t, "/api/auth/logout", "", refresh)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Logged out", decodeBody(t, w)["msg"])

	cleared := cookieByName(t, w, "refreshToken")
	require.Empty(t, cleared.Value)
	require.Negative(t, cleared.MaxAge)
}

func TestResendOTP(t *testing.T) {
	f := setupRouter(t)
	registerMaya(t, f)

	w := f.post(t, "/api/auth/login", `{"email":"maya@example.com","password":"Sup3r$ecret"}`)
	require.Equal(t, http.StatusPartialContent, w.Code)
	userID, _ := decodeBody(t, w)["userId"].(string)

	w = f.post(t, "/api/auth/resend-otp", `{"userId":"`+userID+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "New OTP sent to your email", decodeBody(t, w)["msg"])

	w = f.post(t, "/api/auth/resend-otp", `{"userId":"11111111-1111-1111-1111-111111111111"}`)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "User not found", decodeBody(t, w)["msg"])
}

func TestPasswordResetFlow(t *testing.T) {
	f := setupRouter(t)
	registerMaya(t, f)

	w := f.post(t, "/api/auth/forgot-password", `{"email":"maya@example.com"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Password reset email sent", decodeBody(t, w)["msg"])

	body := f.mailer.sent[len(f.mailer.sent)-1].Body
	marker := "https://shop.example.com/reset-password/"
	idx := strings.Index(body, marker)
	require.GreaterOrEqual(t, idx, 0)
	token := strings.Fields(body[idx+len(marker):])[0]

	w = f.post(t, "/api/auth/reset-password/"+token, `{"password":"Brand-N3w$pass"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "Password reset successful. Please login.", decodeBody(t, w)["msg"])

	// Reusing the just-retired password is refused.
	w = f.post(t, "/api/auth/forgot-password", `{"email":"maya@example.com"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body = f.mailer.sent[len(f.mailer.sent)-1].Body
	idx = strings.Index(body, marker)
	token = strings.Fields(body[idx+len(marker):])[0]

	w = f.post(t, "/api/auth/reset-password/"+token, `{"password":"Sup3r$ecret"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "You cannot reuse your last 2 passwords.", decodeBody(t, w)["msg"])
}

func TestTwoFactorEndpointsRequireAuth(t *testing.T) {
	f := setupRouter(t)

	w := f.post(t, "/api/users/2fa/generate", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTwoFactorGenerateAndConfirm(t *testing.T) {
	f := setupRouter(t)
	registerMaya(t, f)

	login := loginMaya(t, f)
	access := cookieByName(t, login, "token")

	w := f.post(t, "/api/users/2fa/generate", "", access)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	qr, _ := body["qr"].(string)
	require.True(t, strings.HasPrefix(qr, "data:image/png;base64,"))
	require.NotEmpty(t, body["secret"])

	// An invalid confirmation code leaves two-factor disabled.
	w = f.post(t, "/api/users/2fa/confirm", `{"code":"000000"}`, access)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "Invalid 2FA code", decodeBody(t, w)["msg"])
}
