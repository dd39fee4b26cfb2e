package auth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	testutil "github.com/idforge/accountd/internal/database/testutil"
	"github.com/idforge/accountd/internal/models"
	"github.com/idforge/accountd/pkg/crypto"
	apperrors "github.com/idforge/accountd/pkg/errors"
	"github.com/idforge/accountd/pkg/mail"
)

func TestRegisterCreatesUnverifiedAccount(t *testing.T) {
	db, svc, clock, mailer := setupAuthService(t)

	account, err := svc.Register(context.Background(), "Register-New@Example.com ", "password123")
	require.NoError(t, err)
	require.Equal(t, "register-new@example.com", account.Email)
	require.False(t, account.EmailConfirmed)
	require.NotNil(t, account.EmailToken)
	require.NotNil(t, account.EmailTokenExpiresAt)
	require.True(t, account.EmailTokenExpiresAt.Equal(clock.Now().Add(15*time.Minute)))

	var stored models.Account
	require.NoError(t, db.Take(&stored, "email = ?", "register-new@example.com").Error)
	require.False(t, stored.EmailConfirmed)
	require.NotNil(t, stored.EmailToken)

	var profile models.Profile
	require.NoError(t, db.Take(&profile, "email = ?", "register-new@example.com").Error)

	messages := mailer.Sent()
	require.Len(t, messages, 1)
	require.Equal(t, []string{"register-new@example.com"}, messages[0].To)
	require.Contains(t, messages[0].Body, "/verify-email?token="+*stored.EmailToken)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	_, svc, _, _ := setupAuthService(t)

	_, err := svc.Register(context.Background(), "register-dup@example.com", "password123")
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), "register-dup@example.com", "other-password")
	require.ErrorIs(t, err, ErrEmailAlreadyInUse)
}

func TestLoginRequiresVerifiedEmail(t *testing.T) {
	_, svc, _, _ := setupAuthService(t)

	_, err := svc.Register(context.Background(), "login-unverified@example.com", "password123")
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "login-unverified@example.com", "password123")
	require.ErrorIs(t, err, ErrEmailNotVerified)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	_, svc, _, _ := setupAuthService(t)

	registerVerified(t, svc, "login-creds@example.com", "password123")

	_, err := svc.Login(context.Background(), "login-creds@example.com", "wrong-password")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "login-creds-unknown@example.com", "password123")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
}

func TestLoginStoresRefreshToken(t *testing.T) {
	db, svc, clock, _ := setupAuthService(t)

	registerVerified(t, svc, "login-store@example.com", "password123")

	pair, err := svc.Login(context.Background(), "login-store@example.com", "password123")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	var stored models.Account
	require.NoError(t, db.Take(&stored, "email = ?", "login-store@example.com").Error)
	require.NotNil(t, stored.RefreshToken)
	require.Equal(t, pair.RefreshToken, *stored.RefreshToken)
	require.NotNil(t, stored.RefreshTokenExpiresAt)
	require.True(t, stored.RefreshTokenExpiresAt.After(clock.Now()))
}

func TestVerifyEmailIsSingleUse(t *testing.T) {
	db, svc, _, _ := setupAuthService(t)

	_, err := svc.Register(context.Background(), "verify-once@example.com", "password123")
	require.NoError(t, err)

	token := verificationToken(t, db, "verify-once@example.com")

	require.NoError(t, svc.VerifyEmail(context.Background(), token))

	var stored models.Account
	require.NoError(t, db.Take(&stored, "email = ?", "verify-once@example.com").Error)
	require.True(t, stored.EmailConfirmed)
	require.Nil(t, stored.EmailToken)
	require.Nil(t, stored.EmailTokenExpiresAt)

	err = svc.VerifyEmail(context.Background(), token)
	require.ErrorIs(t, err, ErrInvalidOrExpiredToken)
}

func TestVerifyEmailExpiredToken(t *testing.T) {
	db, svc, clock, _ := setupAuthService(t)

	_, err := svc.Register(context.Background(), "verify-expired@example.com", "password123")
	require.NoError(t, err)

	token := verificationToken(t, db, "verify-expired@example.com")

	clock.Advance(16 * time.Minute)

	err = svc.VerifyEmail(context.Background(), token)
	require.ErrorIs(t, err, ErrTokenExpired)

	var stored models.Account
	require.NoError(t, db.Take(&stored, "email = ?", "verify-expired@example.com").Error)
	require.False(t, stored.EmailConfirmed)
}

func TestVerifyEmailUnknownToken(t *testing.T) {
	_, svc, _, _ := setupAuthService(t)

	err := svc.VerifyEmail(context.Background(), "no-such-token")
	require.ErrorIs(t, err, ErrInvalidOrExpiredToken)

	err = svc.VerifyEmail(context.Background(), "  ")
	require.ErrorIs(t, err, ErrInvalidOrExpiredToken)
}

func TestRefreshIssuesNewAccessToken(t *testing.T) {
	_, svc, clock, _ := setupAuthService(t)

	registerVerified(t, svc, "refresh-ok@example.com", "password123")

	pair, err := svc.Login(context.Background(), "refresh-ok@example.com", "password123")
	require.NoError(t, err)

	clock.Advance(time.Minute)

	accessToken, err := svc.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, accessToken)
	require.NotEqual(t, pair.AccessToken, accessToken)
}

func TestRefreshRejectsMissingAndMalformedTokens(t *testing.T) {
	_, svc, _, _ := setupAuthService(t)

	_, err := svc.Refresh(context.Background(), "")
	require.ErrorIs(t, err, ErrMissingRefreshToken)

	_, err = svc.Refresh(context.Background(), "not-a-jwt")
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRefreshRejectsSupersededToken(t *testing.T) {
	_, svc, clock, _ := setupAuthService(t)

	registerVerified(t, svc, "refresh-superseded@example.com", "password123")

	first, err := svc.Login(context.Background(), "refresh-superseded@example.com", "password123")
	require.NoError(t, err)

	clock.Advance(time.Second)

	second, err := svc.Login(context.Background(), "refresh-superseded@example.com", "password123")
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = svc.Refresh(context.Background(), first.RefreshToken)
	require.ErrorIs(t, err, ErrRefreshTokenInvalidOrExpired)

	_, err = svc.Refresh(context.Background(), second.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshRejectsExpiredStoredToken(t *testing.T) {
	_, svc, clock, _ := setupAuthService(t)

	registerVerified(t, svc, "refresh-expired@example.com", "password123")

	pair, err := svc.Login(context.Background(), "refresh-expired@example.com", "password123")
	require.NoError(t, err)

	clock.Advance(8 * 24 * time.Hour)

	_, err = svc.Refresh(context.Background(), pair.RefreshToken)
	require.ErrorIs(t, err, ErrRefreshTokenInvalidOrExpired)
}

func TestLogoutRevokesStoredToken(t *testing.T) {
	db, svc, _, _ := setupAuthService(t)

	registerVerified(t, svc, "logout@example.com", "password123")

	pair, err := svc.Login(context.Background(), "logout@example.com", "password123")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), pair.RefreshToken))

	var stored models.Account
	require.NoError(t, db.Take(&stored, "email = ?", "logout@example.com").Error)
	require.Nil(t, stored.RefreshToken)
	require.Nil(t, stored.RefreshTokenExpiresAt)

	_, err = svc.Refresh(context.Background(), pair.RefreshToken)
	require.ErrorIs(t, err, ErrRefreshTokenInvalidOrExpired)
}

func TestLogoutIgnoresUnknownTokens(t *testing.T) {
	db, svc, _, _ := setupAuthService(t)

	registerVerified(t, svc, "logout-noop@example.com", "password123")

	pair, err := svc.Login(context.Background(), "logout-noop@example.com", "password123")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), ""))
	require.NoError(t, svc.Logout(context.Background(), "garbage"))

	// A superseded token must not revoke the current session.
	stale, err := svc.jwt.GenerateRefreshToken("logout-noop@example.com")
	require.NoError(t, err)
	if stale == pair.RefreshToken {
		t.Skip("generated token collided with the stored one")
	}
	require.NoError(t, svc.Logout(context.Background(), stale))

	var stored models.Account
	require.NoError(t, db.Take(&stored, "email = ?", "logout-noop@example.com").Error)
	require.NotNil(t, stored.RefreshToken)
}

func TestResendVerificationThrottlesWhileTokenValid(t *testing.T) {
	db, svc, clock, mailer := setupAuthService(t)

	_, err := svc.Register(context.Background(), "resend@example.com", "password123")
	require.NoError(t, err)
	firstToken := verificationToken(t, db, "resend@example.com")

	err = svc.ResendVerification(context.Background(), "resend@example.com")
	require.ErrorIs(t, err, ErrTokenStillValid)

	clock.Advance(16 * time.Minute)

	require.NoError(t, svc.ResendVerification(context.Background(), "resend@example.com"))

	secondToken := verificationToken(t, db, "resend@example.com")
	require.NotEqual(t, firstToken, secondToken)

	messages := mailer.Sent()
	require.Len(t, messages, 2)
	require.Contains(t, messages[1].Body, secondToken)
}

func TestResendVerificationRejectsConfirmedAccounts(t *testing.T) {
	_, svc, _, _ := setupAuthService(t)

	registerVerified(t, svc, "resend-confirmed@example.com", "password123")

	err := svc.ResendVerification(context.Background(), "resend-confirmed@example.com")
	require.ErrorIs(t, err, ErrEmailAlreadyConfirmed)

	err = svc.ResendVerification(context.Background(), "resend-unknown@example.com")
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestPasswordResetFlow(t *testing.T) {
	db, svc, _, mailer := setupAuthService(t)

	registerVerified(t, svc, "reset-flow@example.com", "password123")

	require.NoError(t, svc.ForgotPassword(context.Background(), "reset-flow@example.com"))

	var stored models.Account
	require.NoError(t, db.Take(&stored, "email = ?", "reset-flow@example.com").Error)
	require.NotNil(t, stored.PasswordResetToken)
	token := *stored.PasswordResetToken

	messages := mailer.Sent()
	require.Contains(t, messages[len(messages)-1].Body, "/reset-password?token="+token)

	require.NoError(t, svc.ResetPassword(context.Background(), token, "new-password-456"))

	stored = models.Account{}
	require.NoError(t, db.Take(&stored, "email = ?", "reset-flow@example.com").Error)
	require.Nil(t, stored.PasswordResetToken)
	require.Nil(t, stored.PasswordResetTokenExpiresAt)
	require.True(t, crypto.VerifyPassword(stored.Password, "new-password-456"))
	require.False(t, crypto.VerifyPassword(stored.Password, "password123"))

	_, err := svc.Login(context.Background(), "reset-flow@example.com", "password123")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "reset-flow@example.com", "new-password-456")
	require.NoError(t, err)

	// The token is single use.
	err = svc.ResetPassword(context.Background(), token, "another-password")
	require.ErrorIs(t, err, ErrInvalidOrExpiredToken)
}

func TestResetPasswordExpiredToken(t *testing.T) {
	db, svc, clock, _ := setupAuthService(t)

	registerVerified(t, svc, "reset-expired@example.com", "password123")
	require.NoError(t, svc.ForgotPassword(context.Background(), "reset-expired@example.com"))

	var stored models.Account
	require.NoError(t, db.Take(&stored, "email = ?", "reset-expired@example.com").Error)
	token := *stored.PasswordResetToken

	clock.Advance(16 * time.Minute)

	err := svc.ResetPassword(context.Background(), token, "new-password-456")
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestForgotPasswordUnknownEmail(t *testing.T) {
	_, svc, _, _ := setupAuthService(t)

	err := svc.ForgotPassword(context.Background(), "forgot-unknown@example.com")
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestForgotPasswordReplacesPreviousToken(t *testing.T) {
	db, svc, clock, _ := setupAuthService(t)

	registerVerified(t, svc, "reset-replace@example.com", "password123")

	require.NoError(t, svc.ForgotPassword(context.Background(), "reset-replace@example.com"))
	first := resetToken(t, db, "reset-replace@example.com")

	clock.Advance(time.Minute)

	require.NoError(t, svc.ForgotPassword(context.Background(), "reset-replace@example.com"))
	second := resetToken(t, db, "reset-replace@example.com")
	require.NotEqual(t, first, second)

	err := svc.ResetPassword(context.Background(), first, "new-password-456")
	require.ErrorIs(t, err, ErrInvalidOrExpiredToken)

	require.NoError(t, svc.ResetPassword(context.Background(), second, "new-password-456"))
}

func setupAuthService(t *testing.T) (*gorm.DB, *Service, *testClock, *recordingMailer) {
	t.Helper()

	db := testutil.MustOpenTestDB(t)

	clock := &testClock{current: time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)}
	mailer := &recordingMailer{}

	jwtService, err := NewJWTService(JWTConfig{
		Secret:          "auth-service-secret",
		Issuer:          "auth-test",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		Clock:           clock.Now,
	})
	require.NoError(t, err)

	svc, err := NewService(db, jwtService, mailer, ServiceConfig{
		VerificationTokenTTL: 15 * time.Minute,
		ResetTokenTTL:        15 * time.Minute,
		FrontendURL:          "http://frontend.test/",
		Clock:                clock.Now,
	})
	require.NoError(t, err)

	return db, svc, clock, mailer
}

func registerVerified(t *testing.T, svc *Service, email, password string) {
	t.Helper()

	account, err := svc.Register(context.Background(), email, password)
	require.NoError(t, err)
	require.NotNil(t, account.EmailToken)
	require.NoError(t, svc.VerifyEmail(context.Background(), *account.EmailToken))
}

func verificationToken(t *testing.T, db *gorm.DB, email string) string {
	t.Helper()

	var account models.Account
	require.NoError(t, db.Take(&account, "email = ?", strings.ToLower(email)).Error)
	require.NotNil(t, account.EmailToken)
	return *account.EmailToken
}

func resetToken(t *testing.T, db *gorm.DB, email string) string {
	t.Helper()

	var account models.Account
	require.NoError(t, db.Take(&account, "email = ?", strings.ToLower(email)).Error)
	require.NotNil(t, account.PasswordResetToken)
	return *account.PasswordResetToken
}

type testClock struct {
	current time.Time
}

func (c *testClock) Now() time.Time {
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}

type recordingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *recordingMailer) Sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mail.Message, len(m.messages))
	copy(out, m.messages)
	return out
}
