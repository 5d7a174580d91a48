// Package routes defines the HTTP routes for the Customs AI Orchestration Service.
package routes

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/customsflow/agent-service/internal/api/handlers"
	"github.com/customsflow/agent-service/internal/api/middleware"
)

// Config holds the dependencies for setting up routes.
type Config struct {
	HealthHandler        *handlers.HealthHandler
	ChatHandler          *handlers.ChatHandler
	ConversationsHandler *handlers.ConversationsHandler
	ProgressHandler      *handlers.ProgressHandler
	AuthMiddleware       *middleware.AuthMiddleware
}

// Setup configures all routes on the Gin engine.
func Setup(r *gin.Engine, cfg *Config) {
	// API v1 routes - all routes under /api/v1/agent-service
	v1 := r.Group("/api/v1/agent-service")
	{
		// Health check routes (no auth required)
		v1.GET("/health", cfg.HealthHandler.Health)
		v1.GET("/ready", cfg.HealthHandler.Ready)
		v1.GET("/live", cfg.HealthHandler.Live)

		// Swagger UI
		v1.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

		// Apply auth middleware to protected API routes
		protected := v1.Group("")
		protected.Use(cfg.AuthMiddleware.Authenticate())

		conversations := protected.Group("/conversations")
		{
			conversations.POST("/chat", cfg.ChatHandler.Chat)
			conversations.GET("", cfg.ConversationsHandler.List)
			conversations.GET("/:conversationId/messages", cfg.ConversationsHandler.Messages)
		}

		protected.GET("/progress/stream/:conversationId", cfg.ProgressHandler.Stream)
	}
}

// SetupWithMiddleware sets up routes with common middleware.
func SetupWithMiddleware(r *gin.Engine, cfg *Config, loggingMw *middleware.LoggingMiddleware, errorMw *middleware.ErrorMiddleware) {
	// Apply global middleware
	r.Use(loggingMw.Logger())
	r.Use(errorMw.Recovery())
	r.Use(gin.Recovery())

	// Setup routes
	Setup(r, cfg)
}
