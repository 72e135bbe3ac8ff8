package middleware

import (
	"context"
	"regexp"

	"github.com/gin-gonic/gin"
	apperrors "github.com/vhvplatform/go-notification-engine/internal/shared/errors"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// UserIDKey is the context key for the authenticated user ID
	UserIDKey ContextKey = "user_id"

	// UserIDHeader is set by the upstream auth gateway
	UserIDHeader = "X-User-ID"
)

// user IDs are UUIDs or other opaque tokens from the practice database
var userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

// IdentityMiddleware requires the X-User-ID header set by the auth gateway and
// stores it on both the gin and request contexts
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(UserIDHeader)
		if userID == "" {
			abortWithError(c, apperrors.NewUnauthorizedError("X-User-ID header is required", nil))
			return
		}
		if !userIDRegex.MatchString(userID) {
			abortWithError(c, apperrors.NewUnauthorizedError("invalid user identifier", nil))
			return
		}

		c.Set(string(UserIDKey), userID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), UserIDKey, userID))
		c.Next()
	}
}

// GetUserID retrieves the user ID from the gin context
func GetUserID(c *gin.Context) string {
	if v, ok := c.Get(string(UserIDKey)); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// GetUserIDFromContext retrieves the user ID from a standard context
func GetUserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(UserIDKey).(string); ok {
		return id
	}
	return ""
}

func abortWithError(c *gin.Context, err *apperrors.AppError) {
	c.AbortWithStatusJSON(err.HTTPStatus(), gin.H{
		"code":  err.Code,
		"error": err.Message,
	})
}
