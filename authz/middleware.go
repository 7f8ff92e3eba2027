package authz

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ContextKey is the type for context keys to avoid collisions
type ContextKey string

const (
	// Context keys set by the session middleware
	ContextKeyUserID    ContextKey = "user_id"
	ContextKeyUserEmail ContextKey = "user_email"
	ContextKeyUserRole  ContextKey = "user_role"
)

// RequireTier middleware ensures the authenticated actor sits at or above the required tier.
// Denials carry no detail about why, so tenant structure never leaks.
// Usage: router.POST("/organisations", authz.RequireTier(authz.RolePlatform), handler)
func RequireTier(required Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := GetUserIDFromContext(c)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "User not authenticated",
			})
			return
		}

		role := GetRoleFromContext(c)
		if !Allows(role, required) {
			log.Info().
				Str("user_id", userID).
				Str("role", string(role)).
				Str("required", string(required)).
				Msg("authz denied")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		c.Next()
	}
}

// GetUserIDFromContext retrieves the actor's user ID from Gin context
func GetUserIDFromContext(c *gin.Context) string {
	return c.GetString(string(ContextKeyUserID))
}

// GetRoleFromContext retrieves the actor's role from Gin context
func GetRoleFromContext(c *gin.Context) Role {
	return Role(c.GetString(string(ContextKeyUserRole)))
}

// SetActor stores the authenticated actor in Gin context
func SetActor(c *gin.Context, userID, email string, role Role) {
	c.Set(string(ContextKeyUserID), userID)
	c.Set(string(ContextKeyUserEmail), email)
	c.Set(string(ContextKeyUserRole), string(role))
}
