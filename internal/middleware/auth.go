package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/idforge/accountd/internal/auth"
	"github.com/idforge/accountd/pkg/errors"
	"github.com/idforge/accountd/pkg/response"
)

const (
	// CtxClaimsKey stores the validated token claims on the gin context.
	CtxClaimsKey = "authClaims"
	// CtxSubjectKey stores the authenticated account email on the gin context.
	CtxSubjectKey = "subjectEmail"
)

// Auth enforces bearer access-token authentication using the supplied JWT service.
// The extracted subject is propagated so downstream handlers never parse tokens.
func Auth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		token := strings.TrimSpace(authz[7:])
		claims, err := jwt.ValidateToken(token)
		if err != nil || claims.TokenType != iauth.TokenTypeAccess {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxSubjectKey, claims.Subject)

		c.Next()
	}
}
