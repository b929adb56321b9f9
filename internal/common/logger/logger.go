// Package logger builds the structured loggers used by the twikey binaries.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger levels
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// New creates a JSON structured logger with the given options.
func New(opts ...Option) *slog.Logger {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	handler := slog.NewJSONHandler(cfg.output, &slog.HandlerOptions{
		Level: cfg.level,
	})

	logger := slog.New(handler)
	if cfg.service != "" {
		logger = logger.With("service", cfg.service)
	}
	return logger
}

type config struct {
	level   slog.Level
	output  io.Writer
	service string
}

func defaultConfig() *config {
	return &config{
		level:  LevelInfo,
		output: os.Stdout,
	}
}

// Option configures the logger
type Option func(*config)

// WithLevel sets the minimum log level
func WithLevel(level slog.Level) Option {
	return func(c *config) {
		c.level = level
	}
}

// WithOutput sets the output writer
func WithOutput(w io.Writer) Option {
	return func(c *config) {
		if w != nil {
			c.output = w
		}
	}
}

// WithService tags every record with the emitting binary.
func WithService(name string) Option {
	return func(c *config) {
		c.service = name
	}
}

// ParseLevel maps LOG_LEVEL style strings onto slog levels, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}
