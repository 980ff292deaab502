package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/portal-orchestrator/controllers"
	"github.com/portal-orchestrator/middleware"
	"github.com/portal-orchestrator/services"
)

// Controllers groups every handler mounted under /api/v1
type Controllers struct {
	Users        *controllers.UserController
	Students     *controllers.StudentController
	BuildConfigs *controllers.BuildConfigController
	Builds       *controllers.BuildController
	Deployments  *controllers.DeploymentController
	Registries   *controllers.RegistryController
	Admin        *controllers.AdminController
	Webhooks     *controllers.WebhookController
}

// RegisterRoutes registers all v1 API routes
func RegisterRoutes(router *gin.RouterGroup, c Controllers, auth *services.AuthService, deployToken string) {
	requireUser := middleware.AuthMiddleware(auth)

	router.GET("/health", controllers.HealthCheck)

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", c.Users.Login)
		authGroup.POST("/logout", c.Users.Logout)
		authGroup.GET("/me", requireUser, c.Users.Me)
		authGroup.POST("/register", requireUser, middleware.AdminMiddleware(), c.Users.Register)
	}

	// signed by Gitea, not by a portal user
	router.POST("/webhooks/gitea", c.Webhooks.GiteaPush)

	operator := router.Group("")
	operator.Use(requireUser, middleware.TeacherOrAdmin())
	{
		operator.GET("/students", c.Students.ListStudents)
		operator.POST("/students", c.Students.CreateStudent)
		operator.GET("/students/:id", c.Students.GetStudent)

		operator.GET("/build-configs/:student_id", c.BuildConfigs.GetBuildConfig)
		operator.PUT("/build-configs/:student_id", c.BuildConfigs.UpdateBuildConfig)
		operator.POST("/build-configs/:student_id/deploy-key", c.BuildConfigs.GenerateDeployKey)

		operator.GET("/builds", c.Builds.ListBuilds)
		operator.POST("/builds/trigger", c.Builds.TriggerBuild)
		operator.GET("/builds/:id", c.Builds.GetBuild)
		operator.POST("/builds/:id/cancel", c.Builds.CancelBuild)
		operator.POST("/builds/:id/sync", c.Builds.SyncBuild)
		operator.GET("/builds/:id/logs", c.Builds.GetBuildLogs)
		operator.GET("/builds/:id/logs/stream", c.Builds.StreamBuildLogs)

		operator.GET("/deployments", c.Deployments.GetDeployments)
	}

	// CI pipelines reach the deploy controller with X-Deploy-Token
	deployGroup := router.Group("/deploy")
	deployGroup.Use(middleware.DeployTokenMiddleware(auth, deployToken))
	{
		deployGroup.GET("/resources/list", c.Deployments.ListClusterResources)
		deployGroup.POST("/:code", c.Deployments.TriggerDeploy)
		deployGroup.POST("/:code/build", c.Deployments.DeployFromBuild)
		deployGroup.POST("/:code/from-build", c.Deployments.DeployFromBuild)
		deployGroup.GET("/:code", c.Deployments.GetStatus)
		deployGroup.DELETE("/:code", c.Deployments.DeleteDeployment)
	}

	adminGroup := router.Group("/admin")
	adminGroup.Use(requireUser, middleware.AdminMiddleware())
	{
		adminGroup.GET("/settings", c.Admin.GetSettings)
		adminGroup.PUT("/settings", c.Admin.UpdateSettings)
		adminGroup.GET("/monitoring/overview", c.Admin.GetOverview)
		adminGroup.GET("/monitoring/namespaces", c.Admin.GetNamespaces)
		adminGroup.GET("/monitoring/nodes", c.Admin.GetNodes)
		registerRegistryRoutes(adminGroup, c.Registries)
	}
}
