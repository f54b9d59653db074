package middleware

import (
	"net/http"
	"strings"

	"desklink/internal/core/domain"
	"desklink/internal/core/ports"
	pkglogger "desklink/pkg/logger"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware requires a valid session-join token and stores its
// claims on the request context.
func AuthMiddleware(tokens ports.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		sessionID, participantID, role, err := tokens.ValidateJoinToken(c.Request.Context(), token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		c.Set("session_id", sessionID)
		c.Set("participant_id", participantID)
		c.Set("role", role)
		c.Request = c.Request.WithContext(
			pkglogger.WithParticipant(c.Request.Context(), string(participantID)))
		c.Next()
	}
}

// OptionalAuthMiddleware stores claims when a valid token is present
// but lets unauthenticated requests through.
func OptionalAuthMiddleware(tokens ports.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			if sessionID, participantID, role, err := tokens.ValidateJoinToken(c.Request.Context(), token); err == nil {
				c.Set("session_id", sessionID)
				c.Set("participant_id", participantID)
				c.Set("role", role)
				c.Request = c.Request.WithContext(
					pkglogger.WithParticipant(c.Request.Context(), string(participantID)))
			}
		}
		c.Next()
	}
}

// RequireRole gates a route on the role claim set by AuthMiddleware.
func RequireRole(required domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		roleVal, exists := c.Get("role")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			c.Abort()
			return
		}
		role, ok := roleVal.(domain.Role)
		if !ok || role != required {
			c.JSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	return parts[1], true
}
