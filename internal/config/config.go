package config

import (
	"os"
	"strconv"
	"strings"
)

// Config centralizes runtime settings for the API and the pipeline worker.
type Config struct {
	Port string

	AuthToken          string
	CORSAllowedOrigins []string

	DatabaseURL string

	ExtractedTextDir string

	OpenRouterAPIKey    string
	OpenRouterBaseURL   string
	OpenRouterModel     string
	OpenRouterTimeoutMS int
	OpenRouterSiteURL   string
	OpenRouterAppName   string

	MaxChunkSize       int
	ChunkLookback      int
	ExtractConcurrency int
	ExtractMaxAttempts int

	ExtractionCacheTTLSeconds int
	ExtractionCacheMaxEntries int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisStream   string
	RedisDLQ      string
	RedisGroup    string
	RedisConsumer string

	RateLimitRPS   float64
	RateLimitBurst int

	WorkerEnabled bool
}

func Load() Config {
	return Config{
		Port: getEnv("PORT", "8080"),

		AuthToken:          getEnv("API_AUTH_TOKEN", ""),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", nil),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		ExtractedTextDir: getEnv("EXTRACTED_TEXT_DIR", "extracted_text"),

		OpenRouterAPIKey:    getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterBaseURL:   getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterModel:     getEnv("OPENROUTER_MODEL", "meta-llama/llama-3.1-8b-instruct"),
		OpenRouterTimeoutMS: getEnvInt("OPENROUTER_TIMEOUT_MS", 30000),
		OpenRouterSiteURL:   getEnv("OPENROUTER_SITE_URL", ""),
		OpenRouterAppName:   getEnv("OPENROUTER_APP_NAME", "Document Timeline"),

		MaxChunkSize:       getEnvInt("MAX_CHUNK_SIZE", 10000),
		ChunkLookback:      getEnvInt("CHUNK_BOUNDARY_LOOKBACK", 200),
		ExtractConcurrency: getEnvInt("EXTRACT_CONCURRENCY", 4),
		ExtractMaxAttempts: getEnvInt("EXTRACT_MAX_ATTEMPTS", 3),

		ExtractionCacheTTLSeconds: getEnvInt("EXTRACTION_CACHE_TTL_SECONDS", 3600),
		ExtractionCacheMaxEntries: getEnvInt("EXTRACTION_CACHE_MAX_ENTRIES", 2000),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisStream:   getEnv("REDIS_STREAM", "doc_submits"),
		RedisDLQ:      getEnv("REDIS_DLQ_STREAM", "doc_submits_dlq"),
		RedisGroup:    getEnv("REDIS_GROUP", "doc_workers"),
		RedisConsumer: getEnv("REDIS_CONSUMER", "api-1"),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 40),

		WorkerEnabled: getEnvBool("WORKER_ENABLED", true),
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return fallback
	}
	return result
}
