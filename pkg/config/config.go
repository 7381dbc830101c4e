// Package config loads service configuration from the environment.
// A .env file, when present, is loaded by main before Load is called.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds all resolved runtime configuration.
type Config struct {
	AppName    string
	AppVersion string

	Host        string
	Port        int
	APIPrefix   string
	CORSOrigins []string

	// Remote document-extraction service (ADE-compatible).
	ADEAPIURL         string
	ADEAPIKey         string
	ADESyncMaxBytes   int64
	ADEPollMaxIters   int
	AdaptiveSchema    bool

	// LLM provider (Bedrock).
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	BedrockModelID     string
	FallbackModelIDs   []string
	EmbedModelID       string

	// Vector store.
	QdrantURL     string
	QdrantAPIKey  string
	QdrantEnabled bool

	// Graph store.
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jEnabled  bool

	UploadDir     string
	CacheDir      string
	StateDir      string
	MaxUploadSize int64

	LogLevel string
	LogFile  string
}

// Load reads configuration from the environment, applying defaults for
// anything unset.
func Load() *Config {
	return &Config{
		AppName:    getEnv("APP_NAME", "ArthaNethra"),
		AppVersion: getEnv("APP_VERSION", "1.0.0"),

		Host:        getEnv("HOST", "0.0.0.0"),
		Port:        getEnvInt("PORT", 8000),
		APIPrefix:   getEnv("API_PREFIX", "/api/v1"),
		CORSOrigins: getEnvList("CORS_ORIGINS", "http://localhost:4200,http://localhost:3000"),

		ADEAPIURL:       getEnv("ADE_API_URL", "https://api.va.landing.ai/v1/ade"),
		ADEAPIKey:       getEnv("ADE_API_KEY", ""),
		ADESyncMaxBytes: getEnvInt64("ADE_SYNC_MAX_BYTES", 15*1024*1024),
		ADEPollMaxIters: getEnvInt("ADE_POLL_MAX_ITERATIONS", 60),
		AdaptiveSchema:  getEnvBool("ADE_ADAPTIVE_SCHEMA", true),

		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		BedrockModelID:     getEnv("BEDROCK_MODEL_ID", "anthropic.claude-3-sonnet-20240229-v1:0"),
		FallbackModelIDs:   getEnvList("BEDROCK_FALLBACK_MODEL_IDS", "us.anthropic.claude-3-5-haiku-20241022-v1:0"),
		EmbedModelID:       getEnv("BEDROCK_EMBED_MODEL_ID", "amazon.titan-embed-text-v2:0"),

		QdrantURL:     getEnv("QDRANT_URL", "localhost:6334"),
		QdrantAPIKey:  getEnv("QDRANT_API_KEY", ""),
		QdrantEnabled: getEnvBool("QDRANT_ENABLED", true),

		Neo4jURI:      getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:     getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword: getEnv("NEO4J_PASSWORD", ""),
		Neo4jEnabled:  getEnvBool("NEO4J_ENABLED", true),

		UploadDir:     getEnv("UPLOAD_DIR", "./uploads"),
		CacheDir:      getEnv("CACHE_DIR", "./cache"),
		StateDir:      getEnv("STATE_DIR", "./cache/state"),
		MaxUploadSize: getEnvInt64("MAX_UPLOAD_SIZE", 100*1024*1024),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", "logs/arthanethra.log"),
	}
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SlogLevel maps the configured log level to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// EnsureDirs creates the upload, cache, and state directories.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.UploadDir, c.CacheDir, c.StateDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		slog.Warn("Invalid integer env value, using default", "key", key, "value", v, "default", defaultValue)
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		slog.Warn("Invalid integer env value, using default", "key", key, "value", v, "default", defaultValue)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		slog.Warn("Invalid boolean env value, using default", "key", key, "value", v, "default", defaultValue)
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
