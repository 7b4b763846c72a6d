package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Backend type identifiers. The backend is a process-lifetime choice;
// switching requires a restart because per-tenant caches (open database
// handles, initialized spaces) do not survive a swap.
const (
	BackendEmbedded = "embedded"
	BackendNebula   = "nebula"
)

// Embedding provider identifiers
const (
	EmbeddingOpenAI = "openai"
	EmbeddingLocal  = "local"
)

// Config holds all application configuration
type Config struct {
	Environment string
	LogLevel    string

	// Graph backend selection
	GraphBackend string

	// Embedded backend configuration
	GraphDataPath string

	// NebulaGraph configuration
	NebulaHost         string
	NebulaPort         int
	NebulaUser         string
	NebulaPassword     string
	NebulaPoolSize     int
	NebulaTimeout      time.Duration
	NebulaReadyTimeout time.Duration

	// Vector index configuration
	VectorDBPath string

	// Embedding configuration
	EmbeddingProvider   string
	EmbeddingModel      string
	EmbeddingDimensions int
	OpenAIAPIKey        string

	// Auto-link configuration
	SimilarityThreshold float64
	MaxAutoLinks        int

	// Feature flags
	EnableMetrics bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		GraphBackend: getEnv("GRAPH_BACKEND", BackendEmbedded),

		GraphDataPath: getEnv("GRAPH_DATA_PATH", "./data/graph"),

		NebulaHost:         getEnv("NEBULA_HOST", "127.0.0.1"),
		NebulaPort:         getEnvInt("NEBULA_PORT", 9669),
		NebulaUser:         getEnv("NEBULA_USER", "root"),
		NebulaPassword:     getEnv("NEBULA_PASSWORD", "nebula"),
		NebulaPoolSize:     getEnvInt("NEBULA_POOL_SIZE", 10),
		NebulaTimeout:      getEnvDuration("NEBULA_TIMEOUT", 5*time.Second),
		NebulaReadyTimeout: getEnvDuration("NEBULA_READY_TIMEOUT", 30*time.Second),

		VectorDBPath: getEnv("VECTOR_DB_PATH", "./data/vectors"),

		EmbeddingProvider:   getEnv("EMBEDDING_PROVIDER", EmbeddingLocal),
		EmbeddingModel:      getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimensions: getEnvInt("EMBEDDING_DIMENSIONS", 384),
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),

		SimilarityThreshold: getEnvFloat("SIMILARITY_THRESHOLD", 1.5),
		MaxAutoLinks:        getEnvInt("MAX_AUTO_LINKS", 3),

		EnableMetrics: getEnvBool("ENABLE_METRICS", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	switch c.GraphBackend {
	case BackendEmbedded, BackendNebula:
	default:
		return fmt.Errorf("unsupported GRAPH_BACKEND %q", c.GraphBackend)
	}

	switch c.EmbeddingProvider {
	case EmbeddingLocal:
	case EmbeddingOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when EMBEDDING_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("unsupported EMBEDDING_PROVIDER %q", c.EmbeddingProvider)
	}

	if c.SimilarityThreshold <= 0 {
		return fmt.Errorf("SIMILARITY_THRESHOLD must be positive")
	}

	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat gets a float environment variable with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
