// Package config loads runtime configuration from the environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// MongoURI selects the persistent store. Empty means the in-memory
	// fixture store is used instead.
	MongoURI string

	// NATSURL points at an external NATS server for the event stream.
	// When empty and NATSEmbedded is true, an embedded server is started;
	// when empty and NATSEmbedded is false, the in-memory bus is used.
	NATSURL      string
	NATSEmbedded bool
	NATSStoreDir string

	WebPort       int
	JWTSecret     string
	TokenDuration time.Duration

	// LoginRPM limits login attempts per key per minute at the edge.
	LoginRPM int

	LogLevel string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		MongoURI:      os.Getenv("MONGODB_URI"),
		NATSURL:       os.Getenv("NATS_URL"),
		NATSEmbedded:  getEnvAsBool("NATS_EMBEDDED", false),
		NATSStoreDir:  getEnv("NATS_STORE_DIR", "/tmp/carechat-nats"),
		WebPort:       getEnvAsInt("WEB_PORT", 8080),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		TokenDuration: getEnvAsDuration("TOKEN_DURATION", 24*time.Hour),
		LoginRPM:      getEnvAsInt("LOGIN_RATE_LIMIT_RPM", 10),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}

	setupLogger(cfg.LogLevel)

	slog.Info("configuration loaded",
		"webPort", cfg.WebPort,
		"mongo", cfg.MongoURI != "",
		"natsURL", cfg.NATSURL,
		"natsEmbedded", cfg.NATSEmbedded,
	)

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
}
