package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	v1 "github.com/portal-orchestrator/api/v1"
	"github.com/portal-orchestrator/config"
	"github.com/portal-orchestrator/controllers"
	"github.com/portal-orchestrator/database"
	"github.com/portal-orchestrator/lib/kubernetes"
	"github.com/portal-orchestrator/repositories"
	"github.com/portal-orchestrator/services"
	"github.com/portal-orchestrator/utils"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"k8s.io/utils/keymutex"
)

const (
	shutdownTimeout = 15 * time.Second

	// per-student build and deploy locks share this many buckets
	studentLockBuckets = 256
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the build runners",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(config.Load())
	},
}

func serve(cfg *config.Config) error {
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if cfg.DeployTriggerToken == "" {
		zap.S().Warn("⚠️ DEPLOY_TRIGGER_TOKEN not set, CI deploys are disabled")
	}

	if err := database.Initialize(cfg.DatabaseURL); err != nil {
		return err
	}
	if err := seed(cfg); err != nil {
		return err
	}

	kube, err := kubernetes.NewClient(kubernetes.Options{
		InCluster:      cfg.K8sInCluster,
		KubeconfigPath: cfg.K8sConfigPath,
		ProxyURL:       cfg.K8sProxyURL,
	})
	if err != nil {
		return err
	}

	store := repositories.NewStore(database.DB, cfg.BuildNamespace)
	locks := keymutex.NewHashed(studentLockBuckets)

	authService := services.NewAuthService(store.Users, cfg.JWTSecret)
	studentService := services.NewStudentService(store.Students)
	buildConfigService := services.NewBuildConfigService(store.BuildConfigs, store.Registries)
	deployKeyService := services.NewDeployKeyService(store.BuildConfigs, buildConfigService, utils.NewGiteaClient(cfg.GiteaURL, cfg.GiteaToken))
	buildService := services.NewBuildService(store, kube.Clientset, cfg, locks)
	deployService := services.NewDeployService(store, kube.Clientset, locks)
	buildService.SetAutoDeployer(deployService)

	if err := buildService.ResumeActiveBuilds(); err != nil {
		zap.S().Errorf("❌ Failed to resume active builds: %v", err)
	}

	router := newRouter(cfg)
	v1.RegisterRoutes(router.Group("/api/v1"), v1.Controllers{
		Users:        controllers.NewUserController(authService),
		Students:     controllers.NewStudentController(studentService),
		BuildConfigs: controllers.NewBuildConfigController(studentService, buildConfigService, deployKeyService),
		Builds:       controllers.NewBuildController(studentService, buildService),
		Deployments:  controllers.NewDeploymentController(deployService, services.NewStatusService(store.Students, kube.Clientset)),
		Registries:   controllers.NewRegistryController(services.NewRegistryService(store.Registries)),
		Admin: controllers.NewAdminController(
			services.NewSettingsService(store.Settings, store.Registries),
			services.NewMonitoringService(kube.Clientset, kube.MetricsClient),
		),
		Webhooks: controllers.NewWebhookController(services.NewWebhookService(store.BuildConfigs, buildService, cfg.GiteaWebhookSecret)),
	}, authService, cfg.DeployTriggerToken)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		zap.S().Infof("🚀 Portal orchestrator starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			buildService.Shutdown()
			return err
		}
	case <-ctx.Done():
	}

	zap.S().Info("🛑 Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zap.S().Warnf("⚠️ HTTP shutdown: %v", err)
	}
	// running builds keep their rows and are picked up again on the next start
	buildService.Shutdown()
	return nil
}

func newRouter(cfg *config.Config) *gin.Engine {
	if !config.GetEnvBool("LOG_DEV", false) {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Deploy-Token"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORSOrigins) == 1 && cfg.CORSOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.CORSOrigins
	}
	router.Use(cors.New(corsConfig))

	router.GET("/", controllers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}
