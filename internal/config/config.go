package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	GRPCPort string
	HTTPPort string

	// Shared secret for the gRPC and HTTP RPC transports. Empty disables auth.
	RPCSecret string

	// Database, empty keeps the call audit in memory
	DatabaseURL string

	// Redis, empty keeps events and action locks in process
	RedisURL string

	// MQTT, empty disables event fan-out
	MQTTBroker string

	// Logging
	LogLevel  slog.Level
	LogFormat string // "json" or "text"

	// Tracing
	OTLPEndpoint string
	ServiceName  string

	// Stacks
	StackRoot      string
	MkconfDir      string
	DockerBackend  string // "cli" or "api"
	StatusSchedule string
	LockTTL        time.Duration

	// Web panels. With RPC_SECRET set the panels and /api ask for the token.
	SessionTTL time.Duration
	// Origins allowed to make credentialed cross-origin requests
	CORSOrigins []string

	// Features
	EnableMetrics bool
	EnableTracing bool
}

// Load reads configuration from the environment. A .env file named by
// ENV_FILE (default ".env") is applied first when present; variables already
// set in the environment win.
func Load() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		GRPCPort:       getEnv("GRPC_PORT", "9000"),
		HTTPPort:       getEnv("HTTP_PORT", "8080"),
		RPCSecret:      getEnv("RPC_SECRET", ""),
		DatabaseURL:    getEnv("DB_URL", ""),
		RedisURL:       getEnv("REDIS_URL", ""),
		MQTTBroker:     getEnv("MQTT_BROKER", ""),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", ""),
		ServiceName:    getEnv("SERVICE_NAME", "omvstack"),
		StackRoot:      getEnv("STACK_ROOT", "/srv/dev-disk-by-label-data"),
		MkconfDir:      getEnv("MKCONF_DIR", "/usr/share/openmediavault/mkconf"),
		DockerBackend:  getEnv("DOCKER_BACKEND", "cli"),
		StatusSchedule: getEnv("STATUS_SCHEDULE", "@every 30s"),
		LockTTL:        getEnvDuration("LOCK_TTL", 10*time.Minute),
		SessionTTL:     getEnvDuration("SESSION_TTL", 12*time.Hour),
		EnableMetrics:  getEnvBool("ENABLE_METRICS", true),
		EnableTracing:  getEnvBool("ENABLE_TRACING", false),
		CORSOrigins:    getEnvList("CORS_ORIGINS"),
	}

	cfg.LogLevel = parseLevel(getEnv("LOG_LEVEL", "info"))

	return cfg, nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil || parsed <= 0 {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, skipping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
