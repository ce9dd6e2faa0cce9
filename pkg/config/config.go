package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds process configuration for the verification service.
type Config struct {
	LogLevel         string
	ProfilePath      string
	MaxCost          uint64
	StoreDriver      string
	StoreDSN         string
	RedisAddr        string
	OTLPEndpoint     string
	TelemetryEnabled bool
}

// DefaultMaxCost admits every single Ed25519 or 4096 bit RSA condition and
// small thresholds of them.
const DefaultMaxCost = 1 << 20

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	maxCost := uint64(DefaultMaxCost)
	if v := os.Getenv("CONDITIONS_MAX_COST"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("CONDITIONS_MAX_COST: %w", err)
		}
		maxCost = parsed
	}

	driver := strings.ToLower(os.Getenv("STORE_DRIVER"))
	if driver == "" {
		driver = "memory"
	}
	switch driver {
	case "memory", "sqlite", "postgres", "redis":
	default:
		return nil, fmt.Errorf("STORE_DRIVER: unsupported driver %q", driver)
	}

	dsn := os.Getenv("STORE_DSN")
	if dsn == "" && driver == "sqlite" {
		dsn = "file:conditions.db?_pragma=busy_timeout(5000)"
	}
	if dsn == "" && driver == "postgres" {
		// Default to local generic postgres
		dsn = "postgres://conditions@localhost:5432/conditions?sslmode=disable"
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:4317"
	}

	return &Config{
		LogLevel:         logLevel,
		ProfilePath:      os.Getenv("CONDITIONS_PROFILE"),
		MaxCost:          maxCost,
		StoreDriver:      driver,
		StoreDSN:         dsn,
		RedisAddr:        redisAddr,
		OTLPEndpoint:     endpoint,
		TelemetryEnabled: os.Getenv("TELEMETRY_ENABLED") == "true",
	}, nil
}

// SlogLevel maps LogLevel onto a slog level, defaulting to Info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Logger returns a JSON logger writing to w at the configured level.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: c.SlogLevel()}))
}
