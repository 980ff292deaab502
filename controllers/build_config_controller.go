package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/portal-orchestrator/dto"
	"github.com/portal-orchestrator/middleware"
	"github.com/portal-orchestrator/services"
)

// BuildConfigController manages per-student pipeline settings and deploy keys
type BuildConfigController struct {
	studentService     *services.StudentService
	buildConfigService *services.BuildConfigService
	deployKeyService   *services.DeployKeyService
}

func NewBuildConfigController(
	studentService *services.StudentService,
	buildConfigService *services.BuildConfigService,
	deployKeyService *services.DeployKeyService,
) *BuildConfigController {
	return &BuildConfigController{
		studentService:     studentService,
		buildConfigService: buildConfigService,
		deployKeyService:   deployKeyService,
	}
}

// GetBuildConfig handles GET /build-configs/:student_id
func (c *BuildConfigController) GetBuildConfig(ctx *gin.Context) {
	student, err := c.studentService.Get(middleware.ActorFrom(ctx), ctx.Param("student_id"))
	if err != nil {
		respondError(ctx, err)
		return
	}

	cfg, err := c.buildConfigService.Get(student)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, cfg)
}

// UpdateBuildConfig handles PUT /build-configs/:student_id
func (c *BuildConfigController) UpdateBuildConfig(ctx *gin.Context) {
	var req dto.BuildConfigRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondBindError(ctx, err)
		return
	}

	student, err := c.studentService.Get(middleware.ActorFrom(ctx), ctx.Param("student_id"))
	if err != nil {
		respondError(ctx, err)
		return
	}

	cfg, err := c.buildConfigService.Update(student, req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, cfg)
}

// GenerateDeployKey handles POST /build-configs/:student_id/deploy-key
func (c *BuildConfigController) GenerateDeployKey(ctx *gin.Context) {
	var req dto.DeployKeyRequest
	// an empty body means defaults
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			respondBindError(ctx, err)
			return
		}
	}

	student, err := c.studentService.Get(middleware.ActorFrom(ctx), ctx.Param("student_id"))
	if err != nil {
		respondError(ctx, err)
		return
	}

	result, err := c.deployKeyService.GenerateDeployKey(ctx.Request.Context(), student, req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, result)
}
