package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/idforge/accountd/internal/models"
	"github.com/idforge/accountd/pkg/crypto"
	apperrors "github.com/idforge/accountd/pkg/errors"
	"github.com/idforge/accountd/pkg/mail"
)

const (
	defaultVerificationTokenTTL = 15 * time.Minute
	defaultResetTokenTTL        = 15 * time.Minute
	defaultOpaqueTokenBytes     = 32
)

// Typed workflow outcomes. The Code doubles as the machine-readable message
// key rendered to clients; the StatusCode drives the HTTP mapping.
var (
	// ErrEmailAlreadyInUse indicates a registration attempt with a taken email.
	ErrEmailAlreadyInUse = apperrors.New("ERROR.EMAIL_ALREADY_IN_USE", "Email already in use", http.StatusBadRequest)
	// ErrEmailNotVerified rejects logins from accounts that never confirmed their address.
	ErrEmailNotVerified = apperrors.New("ERROR.VERIFY_EMAIL_BEFORE_LOGIN", "Verify your email before logging in", http.StatusForbidden)
	// ErrMissingRefreshToken is returned when no refresh token accompanies the request.
	ErrMissingRefreshToken = apperrors.New("ERROR.MISSING_REFRESH_TOKEN", "Refresh token is missing", http.StatusBadRequest)
	// ErrInvalidRefreshToken covers unparseable refresh tokens and unknown subjects.
	ErrInvalidRefreshToken = apperrors.New("ERROR.INVALID_REFRESH_TOKEN", "Refresh token is invalid", http.StatusBadRequest)
	// ErrRefreshTokenInvalidOrExpired covers stored-token mismatch and stored expiry passed.
	ErrRefreshTokenInvalidOrExpired = apperrors.New("ERROR.INVALID_OR_EXPIRED_REFRESH_TOKEN", "Refresh token is invalid or expired", http.StatusBadRequest)
	// ErrInvalidOrExpiredToken is returned when no account holds the presented single-use token.
	ErrInvalidOrExpiredToken = apperrors.New("ERROR.INVALID_OR_EXPIRED_TOKEN", "Invalid or expired token", http.StatusBadRequest)
	// ErrTokenExpired is returned when the token exists but its expiry has passed.
	ErrTokenExpired = apperrors.New("ERROR.TOKEN_EXPIRED", "Token expired", http.StatusBadRequest)
	// ErrAccountNotFound indicates no account exists for the supplied email.
	ErrAccountNotFound = apperrors.New("ERROR.USER_NOT_FOUND", "Account not found", http.StatusNotFound)
	// ErrEmailAlreadyConfirmed rejects resend requests for verified accounts.
	ErrEmailAlreadyConfirmed = apperrors.New("ERROR.EMAIL_ALREADY_CONFIRMED", "Email already confirmed", http.StatusBadRequest)
	// ErrTokenStillValid throttles resend requests while the previous token is live.
	ErrTokenStillValid = apperrors.New("ERROR.TOKEN_STILL_VALID", "Current token is still valid", http.StatusBadRequest)
)

// ServiceConfig describes tunable behaviour for the auth Service.
type ServiceConfig struct {
	// VerificationTokenTTL bounds the email-verification token lifetime.
	VerificationTokenTTL time.Duration
	// ResetTokenTTL bounds the password-reset token lifetime.
	ResetTokenTTL time.Duration
	// TokenLength is the number of random bytes in generated opaque tokens.
	TokenLength int
	// FrontendURL is the base for verification and reset links embedded in emails.
	FrontendURL string
	// Clock injects a custom time source for tests.
	Clock func() time.Time
}

// TokenPair bundles the signed tokens issued on login.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Service implements the account and session workflows: registration, email
// verification, login, refresh, logout, and password reset. Each workflow is a
// read, a pure decision, and at most one write; expiry is checked lazily at
// use time.
type Service struct {
	db              *gorm.DB
	jwt             *JWTService
	mailer          mail.Mailer
	verificationTTL time.Duration
	resetTTL        time.Duration
	tokenLength     int
	frontendURL     string
	now             func() time.Time
}

// NewService constructs the auth service with the provided dependencies.
func NewService(db *gorm.DB, jwtService *JWTService, mailer mail.Mailer, cfg ServiceConfig) (*Service, error) {
	if db == nil {
		return nil, errors.New("auth service: db is required")
	}
	if jwtService == nil {
		return nil, errors.New("auth service: jwt service is required")
	}

	verificationTTL := cfg.VerificationTokenTTL
	if verificationTTL <= 0 {
		verificationTTL = defaultVerificationTokenTTL
	}

	resetTTL := cfg.ResetTokenTTL
	if resetTTL <= 0 {
		resetTTL = defaultResetTokenTTL
	}

	length := cfg.TokenLength
	if length <= 0 {
		length = defaultOpaqueTokenBytes
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &Service{
		db:              db,
		jwt:             jwtService,
		mailer:          mailer,
		verificationTTL: verificationTTL,
		resetTTL:        resetTTL,
		tokenLength:     length,
		frontendURL:     strings.TrimRight(cfg.FrontendURL, "/"),
		now:             clock,
	}, nil
}

// Register creates an unverified account with a fresh email-verification token
// and dispatches the verification email. A profile row is created alongside.
func (s *Service) Register(ctx context.Context, email, password string) (*models.Account, error) {
	email = normaliseEmail(email)
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}
	if strings.TrimSpace(password) == "" {
		return nil, apperrors.NewBadRequest("password is required")
	}

	hashed, err := crypto.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("auth service: hash password: %w", err)
	}

	token, err := crypto.GenerateToken(s.tokenLength)
	if err != nil {
		return nil, fmt.Errorf("auth service: generate verification token: %w", err)
	}

	expiresAt := s.now().Add(s.verificationTTL)
	account := &models.Account{
		Email:               email,
		Password:            hashed,
		EmailConfirmed:      false,
		EmailToken:          &token,
		EmailTokenExpiresAt: &expiresAt,
	}

	if err := s.db.WithContext(ctx).Create(account).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrEmailAlreadyInUse
		}
		return nil, fmt.Errorf("auth service: create account: %w", err)
	}

	// The profile lives independently of the account; a failure here must not
	// orphan the registration.
	profile := &models.Profile{Email: email}
	if err := s.db.WithContext(ctx).Create(profile).Error; err != nil && !isUniqueConstraintError(err) {
		return nil, fmt.Errorf("auth service: create profile: %w", err)
	}

	if err := s.sendVerificationEmail(ctx, email, token); err != nil {
		return nil, err
	}

	return account, nil
}

// Login verifies credentials, requires a confirmed email, and issues an access
// and refresh token pair. The refresh token and its expiry are stored on the
// account, replacing any previous session.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, error) {
	email = normaliseEmail(email)

	account, err := s.findByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return TokenPair{}, apperrors.ErrInvalidCredentials
		}
		return TokenPair{}, err
	}

	if !crypto.VerifyPassword(account.Password, password) {
		return TokenPair{}, apperrors.ErrInvalidCredentials
	}

	if !account.EmailConfirmed {
		return TokenPair{}, ErrEmailNotVerified
	}

	accessToken, err := s.jwt.GenerateAccessToken(account.Email)
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth service: generate access token: %w", err)
	}

	refreshToken, err := s.jwt.GenerateRefreshToken(account.Email)
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth service: generate refresh token: %w", err)
	}

	expiresAt := s.now().Add(s.jwt.RefreshTokenTTL())
	updates := map[string]any{
		"refresh_token":            refreshToken,
		"refresh_token_expires_at": expiresAt,
	}
	if err := s.db.WithContext(ctx).Model(account).Updates(updates).Error; err != nil {
		return TokenPair{}, fmt.Errorf("auth service: store refresh token: %w", err)
	}

	return TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// Refresh exchanges a valid refresh token for a new access token. The refresh
// token itself is not rotated; it stays valid until logout or natural expiry.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return "", ErrMissingRefreshToken
	}

	subject, err := s.jwt.ExtractSubject(refreshToken)
	if err != nil {
		return "", ErrInvalidRefreshToken
	}

	account, err := s.findByEmail(ctx, subject)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrInvalidRefreshToken
		}
		return "", err
	}

	if !account.RefreshTokenMatches(refreshToken, s.now()) {
		return "", ErrRefreshTokenInvalidOrExpired
	}

	accessToken, err := s.jwt.GenerateAccessToken(account.Email)
	if err != nil {
		return "", fmt.Errorf("auth service: generate access token: %w", err)
	}

	return accessToken, nil
}

// Logout revokes the stored refresh token for the session identified by the
// presented refresh token. Unknown or unparseable tokens are ignored so the
// endpoint stays idempotent; clearing the cookie is the handler's job.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil
	}

	subject, err := s.jwt.ExtractSubject(refreshToken)
	if err != nil {
		return nil
	}

	account, err := s.findByEmail(ctx, subject)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	if account.RefreshToken == nil || *account.RefreshToken != refreshToken {
		return nil
	}

	updates := map[string]any{
		"refresh_token":            nil,
		"refresh_token_expires_at": nil,
	}
	if err := s.db.WithContext(ctx).Model(account).Updates(updates).Error; err != nil {
		return fmt.Errorf("auth service: revoke refresh token: %w", err)
	}

	return nil
}

// VerifyEmail consumes a verification token, transitioning the account to
// confirmed. The token is single-use: a second call with the same value finds
// no holder and reports it as invalid.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidOrExpiredToken
	}

	var account models.Account
	err := s.db.WithContext(ctx).Where("email_token = ?", token).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrInvalidOrExpiredToken
	}
	if err != nil {
		return fmt.Errorf("auth service: find verification token: %w", err)
	}

	if account.EmailTokenExpiresAt == nil || !account.EmailTokenExpiresAt.After(s.now()) {
		return ErrTokenExpired
	}

	updates := map[string]any{
		"email_confirmed":        true,
		"email_token":            nil,
		"email_token_expires_at": nil,
	}
	if err := s.db.WithContext(ctx).Model(&account).Updates(updates).Error; err != nil {
		return fmt.Errorf("auth service: confirm email: %w", err)
	}

	return nil
}

// ResendVerification regenerates the verification token once the previous one
// has lapsed. A still-valid token is an error so the endpoint cannot be used
// to spam mailboxes.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	account, err := s.findByEmail(ctx, normaliseEmail(email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAccountNotFound
		}
		return err
	}

	if account.EmailConfirmed {
		return ErrEmailAlreadyConfirmed
	}

	if account.HasValidEmailToken(s.now()) {
		return ErrTokenStillValid
	}

	token, err := crypto.GenerateToken(s.tokenLength)
	if err != nil {
		return fmt.Errorf("auth service: generate verification token: %w", err)
	}

	expiresAt := s.now().Add(s.verificationTTL)
	updates := map[string]any{
		"email_token":            token,
		"email_token_expires_at": expiresAt,
	}
	if err := s.db.WithContext(ctx).Model(account).Updates(updates).Error; err != nil {
		return fmt.Errorf("auth service: store verification token: %w", err)
	}

	return s.sendVerificationEmail(ctx, account.Email, token)
}

// ForgotPassword generates a reset token and emails a reset link. The caller
// decides whether an unknown email is surfaced or swallowed.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	account, err := s.findByEmail(ctx, normaliseEmail(email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAccountNotFound
		}
		return err
	}

	token, err := crypto.GenerateToken(s.tokenLength)
	if err != nil {
		return fmt.Errorf("auth service: generate reset token: %w", err)
	}

	expiresAt := s.now().Add(s.resetTTL)
	updates := map[string]any{
		"password_reset_token":            token,
		"password_reset_token_expires_at": expiresAt,
	}
	if err := s.db.WithContext(ctx).Model(account).Updates(updates).Error; err != nil {
		return fmt.Errorf("auth service: store reset token: %w", err)
	}

	return s.sendPasswordResetEmail(ctx, account.Email, token)
}

// ResetPassword consumes a reset token and replaces the account credential.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidOrExpiredToken
	}
	if strings.TrimSpace(newPassword) == "" {
		return apperrors.NewBadRequest("new password is required")
	}

	var account models.Account
	err := s.db.WithContext(ctx).Where("password_reset_token = ?", token).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrInvalidOrExpiredToken
	}
	if err != nil {
		return fmt.Errorf("auth service: find reset token: %w", err)
	}

	if account.PasswordResetTokenExpiresAt == nil || !account.PasswordResetTokenExpiresAt.After(s.now()) {
		return ErrTokenExpired
	}

	hashed, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("auth service: hash password: %w", err)
	}

	updates := map[string]any{
		"password":                        hashed,
		"password_reset_token":            nil,
		"password_reset_token_expires_at": nil,
	}
	if err := s.db.WithContext(ctx).Model(&account).Updates(updates).Error; err != nil {
		return fmt.Errorf("auth service: reset password: %w", err)
	}

	return nil
}

func (s *Service) findByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("auth service: find account: %w", err)
	}
	return &account, nil
}

func (s *Service) sendVerificationEmail(ctx context.Context, email, token string) error {
	link := fmt.Sprintf("%s/verify-email?token=%s", s.frontendURL, token)
	body := fmt.Sprintf("Click the link to verify your email: %s\n\nIf you did not create an account, you can ignore this message.\n", link)
	return s.sendMail(ctx, email, "Confirm your email", body)
}

func (s *Service) sendPasswordResetEmail(ctx context.Context, email, token string) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", s.frontendURL, token)
	body := fmt.Sprintf("Click the link to reset your password: %s\n\nIf you did not request a reset, you can ignore this message.\n", link)
	return s.sendMail(ctx, email, "Reset your password", body)
}

func (s *Service) sendMail(ctx context.Context, to, subject, body string) error {
	if s.mailer == nil {
		return nil
	}

	message := mail.Message{
		To:      []string{to},
		Subject: subject,
		Body:    body,
	}
	if err := s.mailer.Send(ctx, message); err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		return fmt.Errorf("auth service: send email: %w", err)
	}
	return nil
}

func normaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
