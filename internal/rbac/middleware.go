package rbac

import (
	"net/http"

	"meeting-scheduler/internal/auth"
	"meeting-scheduler/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RequireUser rejects requests without an authenticated identity.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := auth.FromContext(c.Request.Context())
		if err != nil || id.UserID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}

// RequireAnyRole allows access if the caller has any of the provided roles.
// Rules:
// - admin passes every gate
// - scheduler only passes gates that name it; it never reaches organizer data
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if !Allowed(role, allowedSet) {
			logger.FromGin(c).Warn("role denied", "role", role, "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// Allowed applies the gate rules to one role.
func Allowed(role string, allowed map[string]struct{}) bool {
	if IsAdmin(role) {
		return true
	}
	_, ok := allowed[role]
	return ok
}
