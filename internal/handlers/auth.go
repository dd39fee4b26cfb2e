package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/idforge/accountd/internal/auth"
	appErrors "github.com/idforge/accountd/pkg/errors"
	"github.com/idforge/accountd/pkg/metrics"
	"github.com/idforge/accountd/pkg/response"
)

// RefreshCookieName is the cookie carrying the refresh token. It is scoped to
// the refresh endpoint path so browsers never attach it elsewhere.
const RefreshCookieName = "refreshToken"

// RefreshCookiePath bounds where the refresh cookie is sent.
const RefreshCookiePath = "/api/auth/refresh"

// AuthHandler manages the account and session flows.
type AuthHandler struct {
	auth *iauth.Service
	jwt  *iauth.JWTService
}

// NewAuthHandler configures an auth handler with required services.
func NewAuthHandler(auth *iauth.Service, jwt *iauth.JWTService) *AuthHandler {
	return &AuthHandler{auth: auth, jwt: jwt}
}

type credentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8"`
}

// SignUp registers a new unverified account and sends the verification email.
// POST /api/auth/sign-up
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req credentialsRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if _, err := h.auth.Register(requestContext(c), req.Email, req.Password); err != nil {
		if errors.Is(err, iauth.ErrEmailAlreadyInUse) {
			metrics.Registrations.WithLabelValues("duplicate").Inc()
		} else {
			metrics.Registrations.WithLabelValues("error").Inc()
		}
		response.Error(c, err)
		return
	}

	metrics.Registrations.WithLabelValues("success").Inc()
	response.Message(c, http.StatusOK, "SUCCESS.USER_REGISTERED_VERIFY_YOUR_EMAIL")
}

// Login verifies credentials and returns an access token. The refresh token
// travels only in a scoped HttpOnly cookie, never in the JSON body.
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req credentialsRequest
	if !bindAndValidate(c, &req) {
		return
	}

	pair, err := h.auth.Login(requestContext(c), req.Email, req.Password)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		response.Error(c, err)
		return
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()

	h.setRefreshCookie(c, pair.RefreshToken, int(h.jwt.RefreshTokenTTL().Seconds()))
	response.Success(c, http.StatusOK, gin.H{"token": pair.AccessToken})
}

// Refresh exchanges the refresh cookie for a new access token.
// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	refreshToken, err := c.Cookie(RefreshCookieName)
	if err != nil {
		response.Error(c, iauth.ErrMissingRefreshToken)
		return
	}

	accessToken, err := h.auth.Refresh(requestContext(c), refreshToken)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"token": accessToken})
}

// Logout revokes the stored refresh token when the cookie is present and
// clears the cookie either way.
// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if refreshToken, err := c.Cookie(RefreshCookieName); err == nil {
		if err := h.auth.Logout(requestContext(c), refreshToken); err != nil {
			response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
			return
		}
	}

	h.setRefreshCookie(c, "", -1)
	response.Message(c, http.StatusOK, "SUCCESS.LOGGED_OUT")
}

// VerifyEmail consumes an email-verification token.
// GET /api/auth/verify-email?token=...
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.NewBadRequest("token is required"))
		return
	}

	if err := h.auth.VerifyEmail(requestContext(c), token); err != nil {
		response.Error(c, err)
		return
	}

	response.Message(c, http.StatusOK, "SUCCESS.EMAIL_SUCCESSFULLY_VERIFIED")
}

// ResendVerification regenerates and re-sends the verification token.
// POST /api/auth/resend-verification
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req emailRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.auth.ResendVerification(requestContext(c), req.Email); err != nil {
		response.Error(c, err)
		return
	}

	response.Message(c, http.StatusOK, "SUCCESS.NEW_CONFIRMATION_EMAIL_SENT")
}

// ForgotPassword triggers the password-reset email. Unknown emails get the
// same 200 as known ones so the endpoint cannot be used to enumerate accounts.
// POST /api/auth/forgot-password
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req emailRequest
	if !bindAndValidate(c, &req) {
		return
	}

	err := h.auth.ForgotPassword(requestContext(c), req.Email)
	if err != nil && !errors.Is(err, iauth.ErrAccountNotFound) {
		response.Error(c, err)
		return
	}

	response.Message(c, http.StatusOK, "SUCCESS.PASSWORD_RESET_EMAIL_SENT")
}

// ResetPassword consumes a reset token and sets the new credential.
// POST /api/auth/reset-password
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.auth.ResetPassword(requestContext(c), req.Token, req.NewPassword); err != nil {
		response.Error(c, err)
		return
	}

	response.Message(c, http.StatusOK, "SUCCESS.PASSWORD_SUCCESSFULLY_RESET")
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(RefreshCookieName, value, maxAge, RefreshCookiePath, "", true, true)
}
