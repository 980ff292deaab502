package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/portal-orchestrator/dto"
	"github.com/portal-orchestrator/models"
	"github.com/portal-orchestrator/services"
	"github.com/portal-orchestrator/utils"
)

const (
	actorKey          = "actor"
	DeployTokenHeader = "X-Deploy-Token"
	accessTokenCookie = "access_token"
)

// ActorFrom returns the caller stored by the auth middlewares
func ActorFrom(c *gin.Context) services.Actor {
	if value, ok := c.Get(actorKey); ok {
		if actor, ok := value.(services.Actor); ok {
			return actor
		}
	}
	return services.Actor{}
}

func abort(c *gin.Context, status int, code, detail string) {
	c.AbortWithStatusJSON(status, dto.ErrorResponse{Detail: detail, Code: code})
}

// AuthMiddleware authenticates portal operators with a bearer token or the
// access_token cookie
func AuthMiddleware(auth *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authenticateUser(c, auth) {
			return
		}
		c.Next()
	}
}

// DeployTokenMiddleware additionally accepts the CI deploy token in the
// X-Deploy-Token header. Without the header it behaves like AuthMiddleware.
func DeployTokenMiddleware(auth *services.AuthService, deployToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		given := c.GetHeader(DeployTokenHeader)
		if given == "" {
			if !authenticateUser(c, auth) {
				return
			}
			c.Next()
			return
		}

		if deployToken == "" || subtle.ConstantTimeCompare([]byte(given), []byte(deployToken)) != 1 {
			abort(c, http.StatusForbidden, "forbidden", "Invalid deploy trigger token")
			return
		}
		c.Set(actorKey, services.Actor{DeployToken: true})
		c.Next()
	}
}

func authenticateUser(c *gin.Context, auth *services.AuthService) bool {
	token := utils.BearerToken(c.GetHeader("Authorization"))
	if token == "" {
		token, _ = c.Cookie(accessTokenCookie)
	}
	if token == "" {
		abort(c, http.StatusUnauthorized, "unauthorized", "Not authenticated")
		return false
	}

	claims, err := auth.ValidateToken(token)
	if err != nil {
		abort(c, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
		return false
	}

	user, err := auth.GetUser(claims.UserID)
	if err != nil || !user.IsActive {
		abort(c, http.StatusForbidden, "forbidden", "Inactive user")
		return false
	}

	c.Set("userId", user.ID)
	c.Set("role", string(user.Role))
	c.Set(actorKey, services.Actor{UserID: user.ID, Role: user.Role})
	return true
}

// TeacherOrAdmin rejects deploy token callers on routes meant for operators
func TeacherOrAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := ActorFrom(c)
		if actor.DeployToken || (actor.Role != models.RoleAdmin && actor.Role != models.RoleTeacher) {
			abort(c, http.StatusForbidden, "forbidden", "Insufficient permissions")
			return
		}
		c.Next()
	}
}
