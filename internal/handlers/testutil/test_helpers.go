package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/idforge/accountd/internal/api"
	"github.com/idforge/accountd/internal/app"
	iauth "github.com/idforge/accountd/internal/auth"
	sharedtestutil "github.com/idforge/accountd/internal/database/testutil"
	"github.com/idforge/accountd/internal/models"
	"github.com/idforge/accountd/pkg/mail"
	"github.com/idforge/accountd/pkg/response"
)

// RecordingMailer captures outbound messages instead of delivering them.
type RecordingMailer struct {
	mu       sync.Mutex
	Messages []mail.Message
}

func (m *RecordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, msg)
	return nil
}

// Sent returns a snapshot of the captured messages.
func (m *RecordingMailer) Sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mail.Message, len(m.Messages))
	copy(out, m.Messages)
	return out
}

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T      *testing.T
	DB     *gorm.DB
	Router *gin.Engine
	JWT    *iauth.JWTService
	Auth   *iauth.Service
	Mailer *RecordingMailer
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t)

	jwtSecret := "test-suite-super-secret-key-32-bytes!!"
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:          jwtSecret,
		Issuer:          "test-suite",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
	})
	require.NoError(t, err)

	cfg := &app.Config{
		Monitoring: app.MonitoringConfig{
			Health: app.HealthConfig{Enabled: true},
		},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret:     jwtSecret,
				Issuer:     "test-suite",
				AccessTTL:  time.Hour,
				RefreshTTL: 24 * time.Hour,
			},
			Tokens: app.TokenSettings{
				VerificationTTL: 15 * time.Minute,
				ResetTTL:        15 * time.Minute,
				Length:          32,
			},
		},
		App: app.AppConfig{
			FrontendURL: "http://frontend.test",
		},
	}

	mailer := &RecordingMailer{}

	authSvc, err := iauth.NewService(db, jwtSvc, mailer, cfg.Auth.AuthServiceConfig(cfg.App.FrontendURL))
	require.NoError(t, err)

	router, err := api.NewRouter(db, jwtSvc, cfg, authSvc)
	require.NoError(t, err)

	return &Env{
		T:      t,
		DB:     db,
		Router: router,
		JWT:    jwtSvc,
		Auth:   authSvc,
		Mailer: mailer,
	}
}

// SignUp registers a new account through the API and asserts success.
func (e *Env) SignUp(email, password string) {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/sign-up", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())
}

// VerificationToken fetches the stored email-verification token for an account.
func (e *Env) VerificationToken(email string) string {
	e.T.Helper()

	account := e.Account(email)
	require.NotNil(e.T, account.EmailToken, "account has no pending verification token")
	return *account.EmailToken
}

// ResetToken fetches the stored password-reset token for an account.
func (e *Env) ResetToken(email string) string {
	e.T.Helper()

	account := e.Account(email)
	require.NotNil(e.T, account.PasswordResetToken, "account has no pending reset token")
	return *account.PasswordResetToken
}

// Account loads the account row for the given email.
func (e *Env) Account(email string) *models.Account {
	e.T.Helper()

	var account models.Account
	require.NoError(e.T, e.DB.Where("email = ?", email).First(&account).Error)
	return &account
}

// RegisterVerified runs the full sign-up plus email verification flow.
func (e *Env) RegisterVerified(email, password string) {
	e.T.Helper()

	e.SignUp(email, password)

	token := e.VerificationToken(email)
	w := e.Request(http.MethodGet, "/api/auth/verify-email?token="+token, nil, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())
}

// LoginResult bundles the outcome of POST /api/auth/login.
type LoginResult struct {
	AccessToken   string
	RefreshCookie *http.Cookie
}

// Login authenticates and returns the access token and refresh cookie.
func (e *Env) Login(email, password string) LoginResult {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var payload struct {
		Token string `json:"token"`
	}
	DecodeInto(e.T, resp.Data, &payload)
	require.NotEmpty(e.T, payload.Token)

	var refreshCookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "refreshToken" {
			refreshCookie = c
			break
		}
	}
	require.NotNil(e.T, refreshCookie, "login response did not set the refresh cookie")

	return LoginResult{AccessToken: payload.Token, RefreshCookie: refreshCookie}
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// MessageKey extracts the message field from a success envelope.
func MessageKey(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	resp := DecodeResponse(t, w)
	require.True(t, resp.Success, w.Body.String())

	var payload struct {
		Message string `json:"message"`
	}
	DecodeInto(t, resp.Data, &payload)
	return payload.Message
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, c := range cookies {
		if c != nil {
			req.AddCookie(c)
		}
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
