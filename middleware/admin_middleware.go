package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminMiddleware ensures the caller is an admin. Use after AuthMiddleware.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(actorKey); !exists {
			abort(c, http.StatusUnauthorized, "unauthorized", "Authentication required")
			return
		}
		if !ActorFrom(c).IsAdmin() {
			abort(c, http.StatusForbidden, "forbidden", "Admin privileges required")
			return
		}
		c.Next()
	}
}
