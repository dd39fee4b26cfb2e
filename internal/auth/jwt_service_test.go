package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestNewJWTServiceRequiresSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{})
	require.Error(t, err)
	require.EqualError(t, err, "jwt: secret must be provided")
}

func TestGenerateAndValidateAccessToken(t *testing.T) {
	current := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }

	svc, err := NewJWTService(JWTConfig{
		Secret:         "super-secret",
		Issuer:         "accountd",
		AccessTokenTTL: time.Hour,
		Clock:          now,
	})
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken("user@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)

	require.Equal(t, "user@example.com", claims.Subject)
	require.Equal(t, "accountd", claims.Issuer)
	require.Equal(t, TokenTypeAccess, claims.TokenType)
	require.True(t, claims.IssuedAt.Time.Equal(current))
	require.True(t, claims.ExpiresAt.Time.Equal(current.Add(time.Hour)))
}

func TestGenerateRefreshTokenCarriesType(t *testing.T) {
	now := func() time.Time { return time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC) }

	svc, err := NewJWTService(JWTConfig{
		Secret:          "super-secret",
		RefreshTokenTTL: 48 * time.Hour,
		Clock:           now,
	})
	require.NoError(t, err)

	token, err := svc.GenerateRefreshToken("user@example.com")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, TokenTypeRefresh, claims.TokenType)
	require.True(t, claims.ExpiresAt.Time.Equal(now().Add(48*time.Hour)))
}

func TestGenerateRequiresSubject(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "secret"})
	require.NoError(t, err)

	_, err = svc.GenerateAccessToken("")
	require.Error(t, err)
}

func TestValidateTokenInvalidSignature(t *testing.T) {
	now := func() time.Time { return time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC) }

	issuer, err := NewJWTService(JWTConfig{
		Secret:         "issuer-secret",
		AccessTokenTTL: time.Minute,
		Clock:          now,
	})
	require.NoError(t, err)

	token, err := issuer.GenerateAccessToken("user@example.com")
	require.NoError(t, err)

	verifier, err := NewJWTService(JWTConfig{
		Secret:         "other-secret",
		AccessTokenTTL: time.Minute,
		Clock:          now,
	})
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	require.Error(t, err)
	require.True(t, errors.Is(err, jwt.ErrTokenSignatureInvalid))
}

func TestValidateTokenExpired(t *testing.T) {
	current := time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }

	svc, err := NewJWTService(JWTConfig{
		Secret:         "secret",
		AccessTokenTTL: time.Minute,
		Clock:          now,
	})
	require.NoError(t, err)

	token, err := svc.GenerateAccessToken("user@example.com")
	require.NoError(t, err)

	// Move time forward beyond expiry.
	current = current.Add(2 * time.Minute)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	require.True(t, errors.Is(err, jwt.ErrTokenExpired))
}

func TestValidateTokenRejectsWrongIssuer(t *testing.T) {
	now := func() time.Time { return time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC) }

	issuer, err := NewJWTService(JWTConfig{
		Secret:         "shared-secret",
		Issuer:         "someone-else",
		AccessTokenTTL: time.Minute,
		Clock:          now,
	})
	require.NoError(t, err)

	token, err := issuer.GenerateAccessToken("user@example.com")
	require.NoError(t, err)

	verifier, err := NewJWTService(JWTConfig{
		Secret:         "shared-secret",
		Issuer:         "accountd",
		AccessTokenTTL: time.Minute,
		Clock:          now,
	})
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	require.Error(t, err)
}

func TestExtractSubjectToleratesExpiry(t *testing.T) {
	current := time.Date(2024, 1, 1, 16, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }

	svc, err := NewJWTService(JWTConfig{
		Secret:          "secret",
		RefreshTokenTTL: time.Minute,
		Clock:           now,
	})
	require.NoError(t, err)

	token, err := svc.GenerateRefreshToken("user@example.com")
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)
	require.True(t, svc.IsExpired(token))

	subject, err := svc.ExtractSubject(token)
	require.NoError(t, err)
	require.Equal(t, "user@example.com", subject)
}

func TestExtractSubjectRejectsGarbage(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "secret"})
	require.NoError(t, err)

	_, err = svc.ExtractSubject("")
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ExtractSubject("not.a.jwt")
	require.ErrorIs(t, err, ErrInvalidToken)

	require.True(t, svc.IsExpired("not.a.jwt"))
}
