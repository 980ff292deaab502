package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/portal-orchestrator/dto"
	"github.com/portal-orchestrator/middleware"
	"github.com/portal-orchestrator/services"
)

const tokenCookieMaxAge = 86400

// UserController handles login and operator accounts
type UserController struct {
	authService *services.AuthService
}

// NewUserController creates a new user controller instance
func NewUserController(authService *services.AuthService) *UserController {
	return &UserController{authService: authService}
}

// Login handles POST /auth/login
func (c *UserController) Login(ctx *gin.Context) {
	var req dto.LoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondBindError(ctx, err)
		return
	}

	auth, err := c.authService.Login(req)
	if err != nil {
		respondError(ctx, err)
		return
	}

	// the token is also returned in the body for Bearer clients
	ctx.SetCookie("access_token", auth.Token, tokenCookieMaxAge, "/", "", true, true)
	ctx.JSON(http.StatusOK, auth)
}

// Logout handles POST /auth/logout
func (c *UserController) Logout(ctx *gin.Context) {
	ctx.SetCookie("access_token", "", -1, "/", "", true, true)
	ctx.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me handles GET /auth/me
func (c *UserController) Me(ctx *gin.Context) {
	user, err := c.authService.GetUser(middleware.ActorFrom(ctx).UserID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, user)
}

// Register handles POST /auth/register (admin only)
func (c *UserController) Register(ctx *gin.Context) {
	var req dto.RegisterRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondBindError(ctx, err)
		return
	}

	user, err := c.authService.Register(req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, user)
}
