package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the process-wide configuration snapshot. It is built once at
// startup and passed explicitly to the components that need it; nothing
// re-reads the environment per request.
type Config struct {
	GeminiAPIKey string
	DatabaseURL  string
	HTTPPort     string
	LogLevel     string

	Retriever        string
	ChromaAPIKey     string
	ChromaTenant     string
	ChromaDatabase   string
	ChromaCollection string
	IndexPath        string

	// JWTSecret enables bearer auth on the session routes when non-empty.
	JWTSecret string
}

const (
	RetrieverChroma = "chroma"
	RetrieverLocal  = "local"
)

// Load reads configuration from the environment (and a .env file if one
// exists). A missing required value is an error; the caller is expected to
// treat it as fatal.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		DatabaseURL:      getEnv("DATABASE_URL", "policy_assistant.db"),
		HTTPPort:         getEnv("HTTP_PORT", "8080"),
		LogLevel:         getEnv("LOG_LEVEL", "INFO"),
		Retriever:        strings.ToLower(getEnv("RETRIEVER", RetrieverChroma)),
		ChromaAPIKey:     getEnv("CHROMA_API_KEY", ""),
		ChromaTenant:     getEnv("CHROMA_TENANT", ""),
		ChromaDatabase:   getEnv("CHROMA_DATABASE", ""),
		ChromaCollection: getEnv("CHROMA_COLLECTION", "rag_collection"),
		IndexPath:        getEnv("INDEX_PATH", "policy_index.db"),
		JWTSecret:        getEnv("JWT_SECRET", ""),
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	switch cfg.Retriever {
	case RetrieverChroma:
		if cfg.ChromaAPIKey == "" || cfg.ChromaTenant == "" || cfg.ChromaDatabase == "" {
			return nil, fmt.Errorf("CHROMA_API_KEY, CHROMA_TENANT and CHROMA_DATABASE are required when RETRIEVER=chroma")
		}
	case RetrieverLocal:
		if cfg.IndexPath == "" {
			return nil, fmt.Errorf("INDEX_PATH must not be empty when RETRIEVER=local")
		}
	default:
		return nil, fmt.Errorf("RETRIEVER must be %q or %q, got %q", RetrieverChroma, RetrieverLocal, cfg.Retriever)
	}

	return cfg, nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
