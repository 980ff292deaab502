package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/portal-orchestrator/dto"
	"github.com/portal-orchestrator/services"
)

// RegistryController handles HTTP requests for registries
type RegistryController struct {
	registryService *services.RegistryService
}

// NewRegistryController creates a new registry controller instance
func NewRegistryController(registryService *services.RegistryService) *RegistryController {
	return &RegistryController{registryService: registryService}
}

// GetRegistries handles GET /admin/registries
func (c *RegistryController) GetRegistries(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(ctx.DefaultQuery("pageSize", "10"))

	filter := dto.RegistryFilter{
		Page:       page,
		PageSize:   pageSize,
		Search:     ctx.Query("search"),
		SortBy:     ctx.DefaultQuery("sortBy", "created_at"),
		SortOrder:  ctx.DefaultQuery("sortOrder", "desc"),
		OnlyActive: ctx.DefaultQuery("onlyActive", "false") == "true",
	}

	result, err := c.registryService.ListRegistries(filter)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, result)
}

// GetRegistry handles GET /admin/registries/:id
func (c *RegistryController) GetRegistry(ctx *gin.Context) {
	registry, err := c.registryService.GetRegistryByID(ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, registry)
}

// CreateRegistry handles POST /admin/registries
func (c *RegistryController) CreateRegistry(ctx *gin.Context) {
	var request dto.RegistryRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		respondBindError(ctx, err)
		return
	}

	registry, err := c.registryService.CreateRegistry(request)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, registry)
}

// UpdateRegistry handles PUT /admin/registries/:id
func (c *RegistryController) UpdateRegistry(ctx *gin.Context) {
	var request dto.RegistryRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		respondBindError(ctx, err)
		return
	}

	registry, err := c.registryService.UpdateRegistry(ctx.Param("id"), request)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, registry)
}

// DeleteRegistry handles DELETE /admin/registries/:id
func (c *RegistryController) DeleteRegistry(ctx *gin.Context) {
	if err := c.registryService.DeleteRegistry(ctx.Param("id")); err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Registry deleted successfully"})
}

// TestConnection handles POST /admin/registries/:id/test
func (c *RegistryController) TestConnection(ctx *gin.Context) {
	result, err := c.registryService.TestConnection(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, result)
}

// GetCatalog handles GET /admin/registries/:id/catalog
func (c *RegistryController) GetCatalog(ctx *gin.Context) {
	catalog, err := c.registryService.Catalog(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, catalog)
}

// GetTags handles GET /admin/registries/:id/tags?repository=
func (c *RegistryController) GetTags(ctx *gin.Context) {
	repository := ctx.Query("repository")
	if repository == "" {
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Detail: "repository is required", Code: "validation_error"})
		return
	}

	tags, err := c.registryService.Tags(ctx.Request.Context(), ctx.Param("id"), repository)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, tags)
}

// DeleteTag handles DELETE /admin/registries/:id/tags?repository=&tag=
func (c *RegistryController) DeleteTag(ctx *gin.Context) {
	repository, tag := ctx.Query("repository"), ctx.Query("tag")
	if repository == "" || tag == "" {
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Detail: "repository and tag are required", Code: "validation_error"})
		return
	}

	result, err := c.registryService.DeleteTag(ctx.Request.Context(), ctx.Param("id"), repository, tag)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, result)
}
