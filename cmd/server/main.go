// Package main is the entry point for the Customs AI Orchestration Service.
// @title Customs AI Orchestration Service API
// @version 1.0
// @description Conversational customs-declaration assistant: query routing, specialized RAG agents and progress streaming
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url https://github.com/customsflow/agent-service
// @contact.email support@customsflow.io

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8085
// @BasePath /api/v1/agent-service
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Bearer token authentication (JWT)
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	_ "github.com/customsflow/agent-service/docs"
	"github.com/customsflow/agent-service/internal/api/handlers"
	"github.com/customsflow/agent-service/internal/api/middleware"
	"github.com/customsflow/agent-service/internal/api/routes"
	"github.com/customsflow/agent-service/internal/config"
	"github.com/customsflow/agent-service/internal/core/cache"
	"github.com/customsflow/agent-service/internal/core/docdb"
	rediscache "github.com/customsflow/agent-service/internal/infrastructure/cache/redis"
	"github.com/customsflow/agent-service/internal/infrastructure/docdb/mongodb"
	"github.com/customsflow/agent-service/internal/infrastructure/vector/qdrant"
	"github.com/customsflow/agent-service/internal/pkg/encryption"
	"github.com/customsflow/agent-service/internal/services/agents"
	"github.com/customsflow/agent-service/internal/services/conversation"
	"github.com/customsflow/agent-service/internal/services/llm"
	"github.com/customsflow/agent-service/internal/services/orchestrator"
	"github.com/customsflow/agent-service/internal/services/progress"
	"github.com/customsflow/agent-service/internal/services/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	setupLogging(cfg.Log)

	ctx := context.Background()

	// Initialize cache client using factory pattern
	cacheClient, err := createCacheClient(cfg.Cache)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize cache client")
	}
	defer cacheClient.Close()

	// Initialize document db client using factory pattern
	docDBClient, err := createDocDBClient(ctx, cfg.DocDB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize document db client")
	}
	defer docDBClient.Close(ctx)

	// Ensure database indexes
	if err := docDBClient.EnsureIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to ensure indexes")
	}

	// One semaphore bounds all outbound vector and LLM calls.
	outbound := semaphore.NewWeighted(cfg.Orchestrator.MaxOutboundCalls)

	llmClient, err := llm.NewClient(&llm.Config{
		BaseURL:        cfg.LLM.BaseURL,
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		MaxTokens:      cfg.LLM.MaxTokens,
		Temperature:    cfg.LLM.Temperature,
		Timeout:        cfg.LLM.Timeout,
	}, outbound)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize llm client")
	}

	retriever, err := qdrant.NewClient(&qdrant.Config{
		BaseURL:        cfg.Vector.BaseURL,
		APIKey:         cfg.Vector.APIKey,
		ScoreThreshold: cfg.Vector.ScoreThreshold,
		Timeout:        cfg.Vector.Timeout,
	}, llmClient, outbound)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize vector client")
	}

	registry, err := agents.NewRegistry(&agents.RegistryConfig{
		Retriever:         retriever,
		Generator:         llmClient,
		Collections:       cfg.Vector.Collections,
		TopK:              cfg.Vector.TopK,
		GenerationTimeout: cfg.Orchestrator.GenerationTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize agent registry")
	}

	sealer, err := createSealer(cfg.Cache)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize cache sealer")
	}

	store, err := conversation.NewStore(&conversation.Config{
		CacheClient: cacheClient,
		DocDBClient: docDBClient,
		TTL:         cfg.Cache.TTL,
		Sealer:      sealer,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize conversation store")
	}

	broker := progress.NewBroker(cfg.Progress.QueueSize)

	routerEngine := router.New(router.Config{
		TieMargin:            cfg.Router.TieMargin,
		StickyBias:           cfg.Router.StickyBias,
		HistoryWindow:        cfg.Router.HistoryWindow,
		LawKeywords:          cfg.Router.LawKeywords,
		TradeKeywords:        cfg.Router.TradeKeywords,
		ConsultationKeywords: cfg.Router.ConsultationKeywords,
	})

	orch, err := orchestrator.New(&orchestrator.Config{
		Store:            store,
		Router:           routerEngine,
		Agents:           registry,
		Broker:           broker,
		RetrievalTimeout: cfg.Orchestrator.RetrievalTimeout,
		RetryBackoff:     cfg.Orchestrator.RetryBackoff,
		ContextWindow:    cfg.Orchestrator.ContextWindow,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize orchestrator")
	}

	// Set Gin mode
	gin.SetMode(cfg.Server.GinMode)

	// Setup router
	engine := setupRouter(cfg, cacheClient, docDBClient, retriever, store, broker, orch)

	// Create HTTP server
	srv := &http.Server{
		Addr:    cfg.Server.Address(),
		Handler: engine,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("address", cfg.Server.Address()).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}

// setupLogging configures the global zerolog logger.
func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// createCacheClient creates a cache client based on the configuration.
func createCacheClient(cfg config.CacheConfig) (cache.Client, error) {
	cacheType := cache.Type(cfg.Type)

	switch cacheType {
	case cache.TypeRedis:
		return rediscache.NewClient(rediscache.Config{
			Host:       cfg.Host,
			Port:       cfg.Port,
			Password:   cfg.Password,
			DB:         cfg.DB,
			DefaultTTL: cfg.TTL,
		})
	default:
		log.Fatal().Str("type", cfg.Type).Msg("unsupported cache type")
		return nil, nil
	}
}

// createSealer creates the cache payload sealer based on the configuration.
func createSealer(cfg config.CacheConfig) (encryption.Sealer, error) {
	if cfg.EncryptionKey == "" {
		log.Warn().Msg("CACHE_ENCRYPTION_KEY not set, caching payloads unsealed")
		return encryption.NewPassthroughSealer(), nil
	}
	return encryption.NewAESSealer(cfg.EncryptionKey)
}

// createDocDBClient creates a document database client based on the configuration.
func createDocDBClient(ctx context.Context, cfg config.DocDBConfig) (docdb.Client, error) {
	docDBType := docdb.Type(cfg.Type)

	switch docDBType {
	case docdb.TypeMongoDB:
		return mongodb.NewClient(ctx, &mongodb.ClientConfig{
			URI:          cfg.URI,
			DatabaseName: cfg.Database,
		})
	case docdb.TypeCosmosDB:
		// CosmosDB uses MongoDB protocol, so we can use the same client
		return mongodb.NewClient(ctx, &mongodb.ClientConfig{
			URI:          cfg.URI,
			DatabaseName: cfg.Database,
		})
	default:
		log.Fatal().Str("type", cfg.Type).Msg("unsupported docdb type")
		return nil, nil
	}
}

// setupRouter creates and configures the Gin router.
func setupRouter(cfg *config.Config, cacheClient cache.Client, docDBClient docdb.Client, retriever *qdrant.Client, store conversation.Store, broker *progress.Broker, orch *orchestrator.Service) *gin.Engine {
	engine := gin.New()

	// Create middleware
	loggingMw := middleware.NewLoggingMiddleware()
	errorMw := middleware.NewErrorMiddleware()
	authMw := middleware.NewAuthMiddleware(cfg.Auth.JWTSecret)
	engine.Use(middleware.NewCORSMiddleware(middleware.CORSConfigForOrigins(cfg.Server.AllowedOrigins)))

	// Create handlers
	healthHandler := handlers.NewHealthHandler(cacheClient, docDBClient, retriever)
	chatHandler := handlers.NewChatHandler(orch, cfg.Orchestrator.TurnTimeout)
	conversationsHandler := handlers.NewConversationsHandler(store)
	progressHandler := handlers.NewProgressHandler(broker, store, cfg.Progress.HeartbeatInterval)

	// Setup routes
	routesCfg := &routes.Config{
		HealthHandler:        healthHandler,
		ChatHandler:          chatHandler,
		ConversationsHandler: conversationsHandler,
		ProgressHandler:      progressHandler,
		AuthMiddleware:       authMw,
	}

	routes.SetupWithMiddleware(engine, routesCfg, loggingMw, errorMw)

	return engine
}
