package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/assistant-platform/auth-service/internal/domain/entity"
)

// SessionCookieName carries the opaque session identifier.
const SessionCookieName = "session_id"

// identityContextKey is where the middleware parks the resolved identity.
const identityContextKey = "current_identity"

// SessionValidator resolves a session identifier to an identity.
type SessionValidator interface {
	Validate(ctx context.Context, sessionID string) (*entity.CurrentIdentity, error)
}

// TokenValidator resolves a bearer token to an identity.
type TokenValidator interface {
	Validate(ctx context.Context, presented string) (*entity.CurrentIdentity, error)
}

// Authenticate accepts either the session cookie or an Authorization bearer
// token and attaches the resolved identity to the request. Unauthenticated
// requests are rejected with a uniform 401.
func Authenticate(sessions SessionValidator, tokens TokenValidator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			identity, err := tokens.Validate(c.Request.Context(), strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				logger.Debug("bearer token rejected", zap.Error(err))
				abortUnauthenticated(c)
				return
			}
			c.Set(identityContextKey, identity)
			c.Next()
			return
		}

		if sessionID, err := c.Cookie(SessionCookieName); err == nil && sessionID != "" {
			identity, err := sessions.Validate(c.Request.Context(), sessionID)
			if err != nil {
				logger.Debug("session rejected", zap.Error(err))
				abortUnauthenticated(c)
				return
			}
			c.Set(identityContextKey, identity)
			c.Next()
			return
		}

		abortUnauthenticated(c)
	}
}

// RequireMFAElevated gates the sensitive endpoints: the identity must come
// from a session that completed its second factor (or from an account without
// two-factor, whose sessions are elevated at issue time).
func RequireMFAElevated() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := CurrentIdentity(c)
		if !ok || !identity.MFAElevated {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "two-factor verification required",
				"code":  "mfa_required",
			})
			return
		}
		c.Next()
	}
}

// CurrentIdentity returns the identity attached by Authenticate.
func CurrentIdentity(c *gin.Context) (*entity.CurrentIdentity, bool) {
	value, exists := c.Get(identityContextKey)
	if !exists {
		return nil, false
	}
	identity, ok := value.(*entity.CurrentIdentity)
	return identity, ok
}

func abortUnauthenticated(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": "not authenticated",
		"code":  "unauthenticated",
	})
}
