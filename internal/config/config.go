// Package config handles application configuration loading and management.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/customsflow/agent-service/internal/domain/models"
)

// Config holds all configuration for the application. It is constructed once
// at process start and injected into every component.
type Config struct {
	Server       ServerConfig
	Cache        CacheConfig
	DocDB        DocDBConfig
	Vector       VectorConfig
	LLM          LLMConfig
	Router       RouterConfig
	Orchestrator OrchestratorConfig
	Progress     ProgressConfig
	Auth         AuthConfig
	Log          LogConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host    string
	Port    int
	GinMode string
	// AllowedOrigins restricts CORS. An empty list keeps the built-in
	// frontend origins.
	AllowedOrigins []string
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// CacheConfig holds cache-related configuration.
type CacheConfig struct {
	Type     string
	Host     string
	Port     string
	Password string
	DB       int
	TTL      time.Duration
	// EncryptionKey seals cached payloads at rest when set (32 bytes, raw or
	// base64).
	EncryptionKey string
}

// DocDBConfig holds document database configuration.
type DocDBConfig struct {
	Type     string
	URI      string
	Database string
}

// VectorConfig holds vector search backend configuration.
type VectorConfig struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	TopK           int
	ScoreThreshold float64
	// Collections maps each agent to its embedding collection name.
	Collections map[models.AgentType]string
}

// LLMConfig holds chat-completion endpoint configuration.
type LLMConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	EmbeddingModel string
	Timeout        time.Duration
	MaxTokens      int
	Temperature    float64
}

// RouterConfig holds query router configuration.
type RouterConfig struct {
	// TieMargin is the score gap under which two agents are both targeted.
	TieMargin float64
	// StickyBias is added to the agent that answered the previous turn.
	StickyBias float64
	// HistoryWindow is how many recent messages routing inspects.
	HistoryWindow int
	// Keyword overrides for the built-in domain keyword sets. An empty list
	// keeps the compiled-in defaults.
	LawKeywords          []string
	TradeKeywords        []string
	ConsultationKeywords []string
}

// OrchestratorConfig holds turn-processing configuration.
type OrchestratorConfig struct {
	// TurnTimeout bounds an entire turn including fan-out.
	TurnTimeout time.Duration
	// RetrievalTimeout bounds one vector search call.
	RetrievalTimeout time.Duration
	// GenerationTimeout bounds one generation call.
	GenerationTimeout time.Duration
	// RetryBackoff is the wait before the single upstream/persistence retry.
	RetryBackoff time.Duration
	// MaxOutboundCalls caps concurrent retrieval/generation calls process-wide.
	MaxOutboundCalls int64
	// ContextWindow is how many recent messages are loaded as agent context.
	ContextWindow int
}

// ProgressConfig holds progress streaming configuration.
type ProgressConfig struct {
	HeartbeatInterval time.Duration
	QueueSize         int
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	JWTSecret string
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			GinMode:        getEnv("GIN_MODE", "debug"),
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		},
		Cache: CacheConfig{
			Type:          getEnv("CACHE_TYPE", "redis"),
			Host:          getEnv("REDIS_HOST", "localhost"),
			Port:          getEnv("REDIS_PORT", "6379"),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvAsInt("REDIS_DB", 0),
			TTL:           getEnvAsSeconds("CACHE_TTL_SECONDS", 300),
			EncryptionKey: getEnv("CACHE_ENCRYPTION_KEY", ""),
		},
		DocDB: DocDBConfig{
			Type:     getEnv("DOCDB_TYPE", "mongodb"),
			URI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGODB_DATABASE", "customsflow"),
		},
		Vector: VectorConfig{
			BaseURL:        getEnv("VECTOR_BASE_URL", "http://localhost:6333"),
			APIKey:         getEnv("VECTOR_API_KEY", ""),
			Timeout:        getEnvAsSeconds("VECTOR_TIMEOUT_SECONDS", 10),
			TopK:           getEnvAsInt("VECTOR_TOP_K", 5),
			ScoreThreshold: getEnvAsFloat("VECTOR_SCORE_THRESHOLD", 0.0),
			Collections: map[models.AgentType]string{
				models.AgentLaw:             getEnv("VECTOR_COLLECTION_LAW", "customs_law"),
				models.AgentTradeRegulation: getEnv("VECTOR_COLLECTION_TRADE", "trade_regulation"),
				models.AgentConsultation:    getEnv("VECTOR_COLLECTION_CONSULTATION", "consultation_cases"),
			},
		},
		LLM: LLMConfig{
			BaseURL:        getEnv("LLM_BASE_URL", "http://localhost:11434/v1"),
			APIKey:         getEnv("LLM_API_KEY", ""),
			Model:          getEnv("LLM_MODEL", "gpt-4o-mini"),
			EmbeddingModel: getEnv("LLM_EMBEDDING_MODEL", "text-embedding-3-small"),
			Timeout:        getEnvAsSeconds("LLM_TIMEOUT_SECONDS", 60),
			MaxTokens:      getEnvAsInt("LLM_MAX_TOKENS", 1024),
			Temperature:    getEnvAsFloat("LLM_TEMPERATURE", 0.2),
		},
		Router: RouterConfig{
			TieMargin:            getEnvAsFloat("ROUTER_TIE_MARGIN", 0.15),
			StickyBias:           getEnvAsFloat("ROUTER_STICKY_BIAS", 0.1),
			HistoryWindow:        getEnvAsInt("ROUTER_HISTORY_WINDOW", 6),
			LawKeywords:          getEnvAsList("ROUTER_LAW_KEYWORDS", nil),
			TradeKeywords:        getEnvAsList("ROUTER_TRADE_KEYWORDS", nil),
			ConsultationKeywords: getEnvAsList("ROUTER_CONSULTATION_KEYWORDS", nil),
		},
		Orchestrator: OrchestratorConfig{
			TurnTimeout:       getEnvAsSeconds("TURN_TIMEOUT_SECONDS", 120),
			RetrievalTimeout:  getEnvAsSeconds("RETRIEVAL_TIMEOUT_SECONDS", 10),
			GenerationTimeout: getEnvAsSeconds("GENERATION_TIMEOUT_SECONDS", 60),
			RetryBackoff:      time.Duration(getEnvAsInt("RETRY_BACKOFF_MS", 500)) * time.Millisecond,
			MaxOutboundCalls:  int64(getEnvAsInt("MAX_OUTBOUND_CALLS", 8)),
			ContextWindow:     getEnvAsInt("CONTEXT_WINDOW", 10),
		},
		Progress: ProgressConfig{
			HeartbeatInterval: getEnvAsSeconds("PROGRESS_HEARTBEAT_SECONDS", 15),
			QueueSize:         getEnvAsInt("PROGRESS_QUEUE_SIZE", 32),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsFloat gets an environment variable as a float with a default value.
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvAsSeconds gets an environment variable as a duration in seconds.
func getEnvAsSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultValue)) * time.Second
}

// getEnvAsList gets an environment variable as a comma-separated list.
func getEnvAsList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
