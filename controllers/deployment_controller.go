package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/portal-orchestrator/dto"
	"github.com/portal-orchestrator/middleware"
	"github.com/portal-orchestrator/services"
)

// DeploymentController serves the deploy controller and live status endpoints
type DeploymentController struct {
	deployService *services.DeployService
	statusService *services.StatusService
}

func NewDeploymentController(deployService *services.DeployService, statusService *services.StatusService) *DeploymentController {
	return &DeploymentController{
		deployService: deployService,
		statusService: statusService,
	}
}

// TriggerDeploy handles POST /deploy/:code
func (c *DeploymentController) TriggerDeploy(ctx *gin.Context) {
	var req dto.DeployRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondBindError(ctx, err)
		return
	}

	result, err := c.deployService.TriggerDeploy(ctx.Request.Context(), middleware.ActorFrom(ctx), ctx.Param("code"), req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusAccepted, result)
}

// DeployFromBuild handles POST /deploy/:code/from-build
func (c *DeploymentController) DeployFromBuild(ctx *gin.Context) {
	var req dto.DeployFromBuildRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondBindError(ctx, err)
		return
	}

	result, err := c.deployService.DeployFromBuild(ctx.Request.Context(), middleware.ActorFrom(ctx), ctx.Param("code"), req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusAccepted, result)
}

// DeleteDeployment handles DELETE /deploy/:code?project_type=
func (c *DeploymentController) DeleteDeployment(ctx *gin.Context) {
	result, err := c.deployService.DeleteDeployment(ctx.Request.Context(), middleware.ActorFrom(ctx), ctx.Param("code"), ctx.Query("project_type"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, result)
}

// GetStatus handles GET /deploy/:code?project_type=
func (c *DeploymentController) GetStatus(ctx *gin.Context) {
	status, err := c.statusService.GetStatus(ctx.Request.Context(), middleware.ActorFrom(ctx), ctx.Param("code"), ctx.Query("project_type"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, status)
}

// ListClusterResources handles GET /deploy/resources/list
func (c *DeploymentController) ListClusterResources(ctx *gin.Context) {
	resources, err := c.deployService.ListClusterResources(ctx.Request.Context(), middleware.ActorFrom(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, resources)
}

// GetDeployments handles GET /deployments?student_id=&limit=
func (c *DeploymentController) GetDeployments(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "100"))
	deployments, err := c.deployService.ListDeployments(middleware.ActorFrom(ctx), ctx.Query("student_id"), limit)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, deployments)
}
