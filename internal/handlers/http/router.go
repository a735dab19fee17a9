package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"bintunet/internal/infrastructure/middleware"
	"bintunet/internal/infrastructure/monitoring"
	"bintunet/pkg/config"
	"bintunet/pkg/logger"
)

// RouterDeps are the collaborators the HTTP API is built from.
type RouterDeps struct {
	Config   *config.Config
	Sessions SessionService
	Hub      SnapshotServer
	Health   *monitoring.HealthChecker
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// NewRouter assembles the gin engine with middleware, API and ops routes.
func NewRouter(deps RouterDeps) *gin.Engine {
	startTime := time.Now()
	log := deps.Logger.Sugar()

	cl := logger.NewContextLogger(deps.Logger)

	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.RequestLoggerMiddleware(cl))
	if deps.Config.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}
	router.Use(middleware.ErrorHandlerMiddleware(cl))
	router.Use(middleware.NewHTTPRateLimitMiddleware(deps.Config))

	auth := middleware.AuthMiddleware(deps.Sessions)
	api := router.Group("/api/v1")
	NewAuthHandler(deps.Sessions).SetupRoutes(api, auth)
	NewStreamHandler().SetupRoutes(api, auth)
	if deps.Hub != nil {
		NewWSHandler(deps.Hub, log).SetupRoutes(api, auth)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"uptime":    time.Since(startTime).String(),
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		if deps.Health == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ready", "timestamp": time.Now()})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := deps.Health.CheckAll(ctx)
		if status.Status != "healthy" {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":       "not_ready",
				"timestamp":    status.Timestamp,
				"dependencies": status.Checks,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":       "ready",
			"timestamp":    status.Timestamp,
			"dependencies": status.Checks,
		})
	})

	if deps.Config.Monitoring.PrometheusEnabled {
		gatherer := deps.Gatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return router
}
