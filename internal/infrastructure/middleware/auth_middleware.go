package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"bintunet/internal/core/services"
	"bintunet/pkg/errors"
	"bintunet/pkg/logger"
)

const (
	sessionKey = "session"
	tokenKey   = "token"
)

// SessionResolver turns a bearer token into a live session.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*services.Session, error)
}

// AuthMiddleware resolves the session from the Authorization header, or from
// the token query parameter for websocket upgrades that cannot set headers.
func AuthMiddleware(resolver SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, appErr := bearerToken(c)
		if appErr != nil {
			_ = c.Error(appErr)
			c.Abort()
			return
		}

		session, err := resolver.Resolve(c.Request.Context(), token)
		if err != nil {
			_ = c.Error(errors.WrapError(err, errors.ErrCodeUnauthorized, "session is not valid", http.StatusUnauthorized))
			c.Abort()
			return
		}

		// Store session in context
		c.Set(sessionKey, session)
		c.Set(tokenKey, token)
		c.Set("user_id", session.User.ID)
		c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), string(session.User.ID)))
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, *errors.AppError) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if token := c.Query("token"); token != "" {
			return token, nil
		}
		return "", errors.NewUnauthorizedError("authorization header required")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", errors.NewUnauthorizedError("invalid authorization header format")
	}
	return parts[1], nil
}

// SessionFrom returns the session stored by AuthMiddleware.
func SessionFrom(c *gin.Context) (*services.Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil, false
	}
	session, ok := v.(*services.Session)
	return session, ok
}

// TokenFrom returns the raw token the request authenticated with.
func TokenFrom(c *gin.Context) string {
	return c.GetString(tokenKey)
}
