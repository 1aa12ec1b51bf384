package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"promptfinder/internal/models"
	"promptfinder/internal/security"
)

const viewerKey = "viewer"

// Auth requires a valid bearer token and stores the caller as a models.Viewer.
func Auth(secret string, staffRoles []string) gin.HandlerFunc {
	return authenticate(secret, staffRoles, true)
}

// OptionalAuth resolves the caller when a token is present and lets anonymous requests through.
func OptionalAuth(secret string, staffRoles []string) gin.HandlerFunc {
	return authenticate(secret, staffRoles, false)
}

func authenticate(secret string, staffRoles []string, required bool) gin.HandlerFunc {
	staff := make(map[string]struct{}, len(staffRoles))
	for _, r := range staffRoles {
		staff[strings.ToLower(strings.TrimSpace(r))] = struct{}{}
	}

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			if required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required."})
				return
			}
			c.Next()
			return
		}

		claims, err := security.ParseAccessToken(strings.TrimPrefix(authHeader, "Bearer "), secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token."})
			return
		}

		_, isStaff := staff[strings.ToLower(claims.Role)]
		c.Set(viewerKey, models.Viewer{ID: claims.UserID, Role: claims.Role, Staff: isStaff})
		c.Next()
	}
}

// ViewerFrom returns the authenticated caller, or the anonymous viewer.
func ViewerFrom(c *gin.Context) models.Viewer {
	if v, ok := c.Get(viewerKey); ok {
		if viewer, ok := v.(models.Viewer); ok {
			return viewer
		}
	}
	return models.Viewer{}
}

// SetViewer is used by tests and internal callers to inject an identity.
func SetViewer(c *gin.Context, viewer models.Viewer) {
	c.Set(viewerKey, viewer)
}
