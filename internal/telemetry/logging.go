package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// LogLevel reads LOG_LEVEL (DEBUG, INFO, WARN, ERROR). Defaults to INFO.
func LogLevel() slog.Level {
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoggerOptions controls NewLogger.
type LoggerOptions struct {
	// Verbose forces debug level regardless of LOG_LEVEL.
	Verbose bool
	// Format is "text" or "json". Empty means LOG_FORMAT, then text for
	// terminals and JSON otherwise.
	Format string
}

// NewLogger builds a logger writing to w.
func NewLogger(w io.Writer, opts LoggerOptions) *slog.Logger {
	level := LogLevel()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if resolveFormat(w, opts.Format) == "text" {
		handler = slog.NewTextHandler(w, hopts)
	} else {
		handler = slog.NewJSONHandler(w, hopts)
	}
	return slog.New(handler)
}

// SetupLogger builds a logger writing to w and installs it as the slog
// default.
func SetupLogger(w io.Writer, opts LoggerOptions) *slog.Logger {
	logger := NewLogger(w, opts)
	slog.SetDefault(logger)
	return logger
}

func resolveFormat(w io.Writer, format string) string {
	if format == "" {
		format = strings.ToLower(os.Getenv("LOG_FORMAT"))
	}
	switch format {
	case "text", "json":
		return format
	}
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return "text"
	}
	return "json"
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type ctxKey string

const ctxLogger ctxKey = "logger"

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxLogger, logger)
}

// LoggerFrom returns the logger stored in ctx, if any.
func LoggerFrom(ctx context.Context) (*slog.Logger, bool) {
	logger, ok := ctx.Value(ctxLogger).(*slog.Logger)
	return logger, ok
}

// FromContext returns the logger stored in ctx, or the slog default.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := LoggerFrom(ctx); ok {
		return logger
	}
	return slog.Default()
}

// WithSessionID returns logger with a session_id attribute.
func WithSessionID(logger *slog.Logger, id string) *slog.Logger {
	return logger.With("session_id", id)
}
