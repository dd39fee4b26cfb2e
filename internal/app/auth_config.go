package app

import (
	"github.com/idforge/accountd/internal/auth"
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	accessTTL := c.JWT.AccessTTL
	if accessTTL <= 0 {
		accessTTL = auth.DefaultAccessTokenTTL
	}

	refreshTTL := c.JWT.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = auth.DefaultRefreshTokenTTL
	}

	return auth.JWTConfig{
		Secret:          c.JWT.Secret,
		Issuer:          c.JWT.Issuer,
		AccessTokenTTL:  accessTTL,
		RefreshTokenTTL: refreshTTL,
	}
}

// AuthServiceConfig converts AuthConfig into auth.Service parameters. The
// frontend URL is passed separately because it lives under the app section.
func (c AuthConfig) AuthServiceConfig(frontendURL string) auth.ServiceConfig {
	return auth.ServiceConfig{
		VerificationTokenTTL: c.Tokens.VerificationTTL,
		ResetTokenTTL:        c.Tokens.ResetTTL,
		TokenLength:          c.Tokens.Length,
		FrontendURL:          frontendURL,
	}
}
