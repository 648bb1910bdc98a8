package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI    string
	DBName      string
	Port        string
	GinMode     string
	CORSOrigins []string

	// Redis (asynq transport + embedding memoization cache)
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// File handling
	FileStorageDir string
	MaxFileSize    int64
	StorageBucket  string

	// Chunking
	MaxChunkSize int
	ChunkOverlap int

	// Processing queue
	QueueBatchSize        int
	MaxProcessingAttempts int
	SweepInterval         int // seconds between scheduled batch sweeps

	// Embeddings configuration
	EmbeddingsProvider    string // "google" (default), "openai"
	GeminiAPIKey          string
	GoogleEmbeddingsModel string
	OpenAIAPIKey          string
	OpenAIEmbeddingsModel string
	VectorDimensions      int
	EmbeddingCacheTTL     int // seconds

	// External semantic index (OpenAI vector stores)
	IndexEnabled       bool
	IndexTTLDays       int
	IndexBatchSize     int
	IndexPollInterval  int // seconds
	IndexPollTimeout   int // seconds
	ImporterUserAgent  string
	ImporterTimeout    int // seconds per URL fetch
	OTLPEndpoint       string
	TracingSampleRatio float64
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017/grant_platform"),
		DBName:      getEnv("DB_NAME", "grant_platform"),
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		FileStorageDir: getEnv("FILE_STORAGE_DIR", "./storage"),
		MaxFileSize:    getEnvInt64("MAX_FILE_SIZE", 10*1024*1024), // 10MiB hard extraction ceiling
		StorageBucket:  getEnv("STORAGE_BUCKET", "grant-attachments"),

		MaxChunkSize: getEnvInt("MAX_CHUNK_SIZE", 4000),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 200),

		QueueBatchSize:        getEnvInt("QUEUE_BATCH_SIZE", 5),
		MaxProcessingAttempts: getEnvInt("MAX_PROCESSING_ATTEMPTS", 3),
		SweepInterval:         getEnvInt("SWEEP_INTERVAL", 60),

		EmbeddingsProvider:    getEnv("EMBEDDINGS_PROVIDER", "google"),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIEmbeddingsModel: getEnv("OPENAI_EMBEDDINGS_MODEL", "text-embedding-3-small"),
		VectorDimensions:      getEnvInt("VECTOR_DIM", 768),
		EmbeddingCacheTTL:     getEnvInt("EMBEDDING_CACHE_TTL", 3600),

		IndexEnabled:       getEnvBool("INDEX_MIRROR_ENABLED", true),
		IndexTTLDays:       getEnvInt("INDEX_TTL_DAYS", 7),
		IndexBatchSize:     getEnvInt("INDEX_BATCH_SIZE", 500),
		IndexPollInterval:  getEnvInt("INDEX_POLL_INTERVAL", 1),
		IndexPollTimeout:   getEnvInt("INDEX_POLL_TIMEOUT", 120),
		ImporterUserAgent:  getEnv("IMPORTER_USER_AGENT", "GrantPlatform/1.0"),
		ImporterTimeout:    getEnvInt("IMPORTER_TIMEOUT", 30),
		OTLPEndpoint:       getEnv("OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRatio: getEnvFloat64("TRACING_SAMPLE_RATIO", 0.1),
	}

	// Validate required fields
	if cfg.EmbeddingsProvider == "google" && cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}
	if cfg.EmbeddingsProvider == "openai" && cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required - set it in .env file")
	}
	if cfg.IndexEnabled && cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required for index mirroring - set it or disable INDEX_MIRROR_ENABLED")
	}
	if cfg.ChunkOverlap >= cfg.MaxChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than MAX_CHUNK_SIZE (%d)", cfg.ChunkOverlap, cfg.MaxChunkSize)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
