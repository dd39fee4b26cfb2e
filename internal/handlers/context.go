package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/idforge/accountd/internal/middleware"
	appErrors "github.com/idforge/accountd/pkg/errors"
	"github.com/idforge/accountd/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// subjectEmail extracts the authenticated identity placed on the context by the
// auth middleware, writing a 401 response when absent.
func subjectEmail(c *gin.Context) (string, bool) {
	v, ok := c.Get(middleware.CtxSubjectKey)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}

	email, _ := v.(string)
	if email == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}

	return email, true
}
