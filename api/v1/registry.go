package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/portal-orchestrator/controllers"
)

// registerRegistryRoutes registers registry management and the v2 API proxies
func registerRegistryRoutes(router *gin.RouterGroup, rc *controllers.RegistryController) {
	registryGroup := router.Group("/registries")
	{
		registryGroup.GET("", rc.GetRegistries)
		registryGroup.POST("", rc.CreateRegistry)

		registryGroup.GET("/:id", rc.GetRegistry)
		registryGroup.PUT("/:id", rc.UpdateRegistry)
		registryGroup.DELETE("/:id", rc.DeleteRegistry)

		// registry v2 API
		registryGroup.POST("/:id/test", rc.TestConnection)
		registryGroup.GET("/:id/catalog", rc.GetCatalog)
		registryGroup.GET("/:id/tags", rc.GetTags)
		registryGroup.DELETE("/:id/tags", rc.DeleteTag)
	}
}
