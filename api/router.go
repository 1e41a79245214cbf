package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yourusername/embed-archiver/api/handlers"
	"github.com/yourusername/embed-archiver/api/middleware"
	"github.com/yourusername/embed-archiver/pkg/logger"
)

// RouterConfig holds the collaborators served over HTTP
type RouterConfig struct {
	Archives      handlers.ArchiveService
	Queue         handlers.QueueStatus
	Interactions  *handlers.InteractionHandler // nil disables POST /interactions
	Gatherer      prometheus.Gatherer          // nil disables GET /metrics
	PublicBaseURL string
	LogsDir       string
}

// SetupRouter sets up the HTTP router
func SetupRouter(config RouterConfig, logAdapter *logger.LoggerAdapter) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	log := logAdapter.General().Named("http")
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(logAdapter))
	router.Use(middleware.CORS())

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(config.Queue)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	if config.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{})))
	}

	if config.Interactions != nil {
		router.POST("/interactions", config.Interactions.Handle)
	}

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		archiveHandler := handlers.NewArchiveHandler(config.Archives, config.PublicBaseURL, log)
		archives := v1.Group("/archives")
		{
			archives.POST("", archiveHandler.ArchiveNow)
			archives.GET("/:message_id", archiveHandler.GetArchive)
			archives.GET("/:message_id/exists", archiveHandler.Exists)
		}

		channelHandler := handlers.NewChannelHandler(config.Archives, log)
		channels := v1.Group("/channels")
		{
			channels.GET("", channelHandler.ListChannels)
			channels.GET("/:channel_id/cursor", channelHandler.GetCursor)
			channels.POST("/:channel_id/traverse", channelHandler.Traverse)
		}

		v1.GET("/queue/stats", healthHandler.QueueStats)

		logHandler := handlers.NewLogHandler(config.LogsDir)
		logs := v1.Group("/logs")
		{
			logs.GET("/categories", logHandler.GetCategories)
			logs.GET("/:category", logHandler.GetLogs)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}
