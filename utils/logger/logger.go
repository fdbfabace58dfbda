// ABOUTME: Logger configuration loaded from environment, standardized on slog
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config controls the handler the service logs through.
type Config struct {
	Level       string
	Format      string
	ServiceName string
}

// LoadConfigFromEnv reads logger settings from the environment.
func LoadConfigFromEnv() Config {
	return Config{
		Level:       getEnvOrDefault("LOG_LEVEL", "info"),
		Format:      getEnvOrDefault("LOG_FORMAT", "json"),
		ServiceName: getEnvOrDefault("SERVICE_NAME", "news-enricher"),
	}
}

// New builds a slog.Logger from the config, writing to output.
func New(cfg Config, output io.Writer) *slog.Logger {
	if output == nil {
		output = os.Stdout
	}

	options := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(output, options)
	} else {
		handler = slog.NewJSONHandler(output, options)
	}

	return slog.New(handler).With("service", cfg.ServiceName)
}

// Init builds the logger from env config and installs it as slog default.
func Init() *slog.Logger {
	log := New(LoadConfigFromEnv(), os.Stdout)
	slog.SetDefault(log)
	return log
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
