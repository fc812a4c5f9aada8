package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/mediagrab-go/api/handlers"
	"github.com/yourusername/mediagrab-go/api/middleware"
	"github.com/yourusername/mediagrab-go/internal/app"
	"github.com/yourusername/mediagrab-go/internal/domain"
	"github.com/yourusername/mediagrab-go/pkg/logger"
	"go.uber.org/zap"
)

// RouterDeps groups what the HTTP surface needs
type RouterDeps struct {
	Manager *app.JobManager
	Config  *domain.Config
	Logs    *logger.MultiLogger // optional
	Logger  *zap.Logger
	Ready   handlers.ReadyCheck // optional
}

// SetupRouter sets up the HTTP router
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.Logger(deps.Logger, deps.Logs))
	router.Use(middleware.Recovery(deps.Logger, deps.Logs))
	router.Use(middleware.CORS())

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(deps.Manager, deps.Ready)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	downloadHandler := handlers.NewDownloadHandler(deps.Manager, &deps.Config.Download, deps.Logger)
	progressHandler := handlers.NewProgressHandler(deps.Manager, deps.Logger)
	settingsHandler := handlers.NewSettingsHandler(deps.Manager.Settings(), deps.Logger)

	// Unversioned alias kept for simple clients
	router.POST("/download", downloadHandler.Download)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.POST("/download", downloadHandler.Download)

		jobs := v1.Group("/jobs")
		{
			jobs.POST("", downloadHandler.CreateJob)
			jobs.GET("", downloadHandler.ListJobs)
			jobs.GET("/:id", downloadHandler.GetJob)
			jobs.POST("/:id/cancel", downloadHandler.CancelJob)
			jobs.GET("/:id/artifact", downloadHandler.GetArtifact)
			jobs.GET("/:id/progress", progressHandler.Poll)
			jobs.GET("/:id/events", progressHandler.Events)
			jobs.GET("/:id/ws", progressHandler.WebSocket)
		}

		settings := v1.Group("/settings")
		{
			settings.GET("", settingsHandler.GetSettings)
			settings.PUT("", settingsHandler.UpdateSettings)
		}

		logHandler := handlers.NewLogHandler(deps.Config.Download.LogsDir())
		logs := v1.Group("/logs")
		{
			logs.GET("/categories", logHandler.GetCategories)
			logs.GET("/:category", logHandler.GetLogs)
			logs.GET("/:category/search", logHandler.SearchLogs)
			logs.GET("/:category/export", logHandler.ExportLogs)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}
