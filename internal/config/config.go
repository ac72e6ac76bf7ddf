package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreSurrealDB = "surrealdb"
	StoreQdrant    = "qdrant"
	StoreMemory    = "memory"
)

// Embedding providers.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Config holds all configuration values.
type Config struct {
	Store string

	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Qdrant
	QdrantAddr       string
	QdrantCollection string

	// Embedding
	EmbedProvider  string
	EmbedModel     string
	EmbedDimension int
	OllamaHost     string
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	EmbedRate      float64
	EmbedTimeout   time.Duration

	// Pipeline
	BatchSize   int
	CurrentYear int

	// Events
	NATSURL       string
	AutoVectorize bool

	// Server
	ServerPort int

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Store: strings.ToLower(getEnv("PRICECAT_STORE", StoreSurrealDB)),

		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "pricecat"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "catalog"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		QdrantAddr:       getEnv("QDRANT_ADDR", "localhost:6334"),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "catalog_items"),

		EmbedProvider:  strings.ToLower(getEnv("PRICECAT_EMBED_PROVIDER", ProviderOllama)),
		EmbedModel:     getEnv("PRICECAT_EMBED_MODEL", "all-minilm:l6-v2"),
		EmbedDimension: getEnvInt("PRICECAT_EMBED_DIMENSION", 384),
		OllamaHost:     getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", ""),
		EmbedRate:      getEnvFloat("PRICECAT_EMBED_RATE", 0),
		EmbedTimeout:   getEnvDuration("PRICECAT_EMBED_TIMEOUT", 60*time.Second),

		BatchSize:   getEnvInt("PRICECAT_BATCH_SIZE", 20),
		CurrentYear: getEnvInt("PRICECAT_CURRENT_YEAR", time.Now().Year()),

		NATSURL:       getEnv("NATS_URL", ""),
		AutoVectorize: getEnv("PRICECAT_AUTO_VECTORIZE", "false") == "true",

		ServerPort: getEnvInt("PRICECAT_SERVER_PORT", 8585),

		LogFile:  getEnv("PRICECAT_LOG_FILE", "/tmp/pricecat.log"),
		LogLevel: parseLogLevel(getEnv("PRICECAT_LOG_LEVEL", "INFO")),
	}
}

// Validate rejects configurations that cannot be wired.
func (c Config) Validate() error {
	switch c.Store {
	case StoreSurrealDB, StoreQdrant, StoreMemory:
	default:
		return fmt.Errorf("unknown store %q (want surrealdb, qdrant or memory)", c.Store)
	}
	switch c.EmbedProvider {
	case ProviderOllama, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown embedding provider %q (want ollama or openai)", c.EmbedProvider)
	}
	if c.EmbedProvider == ProviderOpenAI && c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.EmbedDimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.EmbedDimension)
	}
	if c.CurrentYear <= 0 {
		return fmt.Errorf("current year must be positive, got %d", c.CurrentYear)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultVal
	}
	return v
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultVal
	}
	return v
}

// getEnvDuration accepts Go durations ("30s") or plain seconds ("30").
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
