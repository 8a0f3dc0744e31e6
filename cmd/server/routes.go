package main

import (
	"github.com/gin-gonic/gin"
	"github.com/ibkchat/insight/backend/internal/middleware"
	"github.com/ibkchat/insight/backend/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	// Middleware
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS())

	// Generation is expensive; keep manual triggers on a tight budget
	generateLimiter := middleware.NewRateLimiter(1, 5)

	// Health check
	r.GET("/health", svc.healthHandler.CheckHealth)

	// API routes
	api := r.Group("/api")
	{
		reports := api.Group("/chat-reports")
		{
			reports.POST("/generate", generateLimiter.Middleware(), svc.reportHandler.Generate)
			reports.GET("", svc.reportHandler.List)
			reports.GET("/:id", svc.reportHandler.GetByID)
			reports.DELETE("/:id", svc.reportHandler.Delete)
		}

		// Thin admin surface: runtime settings, operational log, token usage
		system := api.Group("/system")
		{
			system.GET("/configs", svc.configHandler.ListByGroup)
			system.PUT("/configs/:key", svc.configHandler.Update)
			system.GET("/logs", svc.logHandler.List)
			system.GET("/ai-usage", svc.usageHandler.GetStats)
		}
	}
}
