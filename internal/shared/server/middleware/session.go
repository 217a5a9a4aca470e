package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"submission-backend/internal/shared/server/respond"
)

const sessionIDKey = "sessionId"

// Session extracts the caller's session identity from the X-Session-Id
// header and stores it in context. Requests without a session are rejected;
// authentication proper is handled upstream of this service.
func Session() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		sessionID := c.GetHeader("X-Session-Id")
		if sessionID == "" {
			respond.Error(c, http.StatusUnauthorized, "session_required", "X-Session-Id header is required", nil)
			return
		}

		c.Set(sessionIDKey, sessionID)
		c.Next()
	}
}

// SessionIDFromContext fetches the session ID stored by Session middleware.
func SessionIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(sessionIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}
