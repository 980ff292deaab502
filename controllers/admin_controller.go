package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/portal-orchestrator/dto"
	"github.com/portal-orchestrator/services"
)

// AdminController serves system settings and cluster monitoring
type AdminController struct {
	settingsService   *services.SettingsService
	monitoringService *services.MonitoringService
}

func NewAdminController(settingsService *services.SettingsService, monitoringService *services.MonitoringService) *AdminController {
	return &AdminController{
		settingsService:   settingsService,
		monitoringService: monitoringService,
	}
}

// GetSettings handles GET /admin/settings
func (c *AdminController) GetSettings(ctx *gin.Context) {
	settings, err := c.settingsService.Get()
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, settings)
}

// UpdateSettings handles PUT /admin/settings
func (c *AdminController) UpdateSettings(ctx *gin.Context) {
	var req dto.SettingsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondBindError(ctx, err)
		return
	}

	settings, err := c.settingsService.Update(req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, settings)
}

// GetOverview handles GET /admin/monitoring/overview. It never fails; a
// degraded cluster is reported in the status field.
func (c *AdminController) GetOverview(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, c.monitoringService.GetOverview(ctx.Request.Context()))
}

// GetNamespaces handles GET /admin/monitoring/namespaces
func (c *AdminController) GetNamespaces(ctx *gin.Context) {
	usage, err := c.monitoringService.GetNamespaceUsage(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, usage)
}

// GetNodes handles GET /admin/monitoring/nodes
func (c *AdminController) GetNodes(ctx *gin.Context) {
	nodes, err := c.monitoringService.GetNodes(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, nodes)
}
