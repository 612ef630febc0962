// README: Caller role tagging. The engine records the role; enforcement belongs to the caller's access-control layer.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const roleContextKey = "caller_role"

var knownRoles = map[string]bool{
	"patient":         true,
	"elderly-patient": true,
	"family_member":   true,
}

// CallerRole reads the X-Caller-Role header and stashes it on the request
// context. Unknown roles are rejected; a missing header defaults to patient.
func CallerRole() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetHeader("X-Caller-Role")
		if role == "" {
			role = "patient"
		}
		if !knownRoles[role] {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown caller role"})
			return
		}
		c.Set(roleContextKey, role)
		c.Next()
	}
}

// RoleFrom returns the caller role tagged on the request.
func RoleFrom(c *gin.Context) string {
	return c.GetString(roleContextKey)
}
