// Package logger configures the process-wide slog logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	Level         slog.Level
	LogFile       string
	LogToStderr   bool
	AlsoLogStderr bool
	Format        string // "json" or "text"
}

// SetupLogger creates a configured slog logger. With no file and no stderr
// output selected, logs go to stderr.
func SetupLogger(cfg Config) (*slog.Logger, error) {
	var writers []io.Writer

	if cfg.LogFile != "" && !cfg.LogToStderr {
		dir := filepath.Dir(cfg.LogFile)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}

		file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		writers = append(writers, file)
	}

	if cfg.LogToStderr || cfg.AlsoLogStderr || len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	return slog.New(newHandler(io.MultiWriter(writers...), cfg)), nil
}

func newHandler(w io.Writer, cfg Config) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: true,
	}
	if cfg.Format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// ParseLevel converts a string to slog.Level. Unknown levels map to info.
func ParseLevel(level string) slog.Level {
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

func WithCommand(logger *slog.Logger, cmd string) *slog.Logger {
	return logger.With("command", cmd)
}

func WithProvider(logger *slog.Logger, provider string) *slog.Logger {
	return logger.With("provider", provider)
}

func WithDuration(logger *slog.Logger, duration time.Duration) *slog.Logger {
	return logger.With("duration_ms", duration.Milliseconds())
}

// GetDefaultLogFile returns the default log file path for a component
func GetDefaultLogFile(component string) string {
	configDir, _ := os.UserConfigDir()
	if configDir == "" {
		configDir = "."
	}
	return filepath.Join(configDir, "componentsdb", component+".log")
}
