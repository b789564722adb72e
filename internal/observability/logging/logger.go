// Package logging builds slog loggers and carries them through contexts.
//
//	logger := logging.NewLogger()
//	logger.Info("server starting", slog.String("addr", addr))
//
//	func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
//	    logging.WithRequestID(r.Context(), h.logger).Info("summarizing")
//	}
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"medsum/internal/handler/http/requestid"
)

// Level parses LOG_LEVEL. Unknown values mean info.
func Level() slog.Level {
	return ParseLevel(os.Getenv("LOG_LEVEL"))
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

func handlerOptions(level slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		// Source locations only for warn and above.
		AddSource: level >= slog.LevelWarn,
	}
}

// NewLogger creates a JSON logger on stdout at LOG_LEVEL.
func NewLogger() *slog.Logger {
	return New(os.Stdout, "json", Level())
}

// NewTextLogger creates a human-readable logger on stdout at LOG_LEVEL.
func NewTextLogger() *slog.Logger {
	return New(os.Stdout, "text", Level())
}

// New creates a logger writing to w. format is "json" or "text".
// CLIs log to stderr so stdout stays reserved for the summary.
func New(w io.Writer, format string, level slog.Level) *slog.Logger {
	opts := handlerOptions(level)
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// WithRequestID returns logger annotated with the request ID from ctx.
func WithRequestID(ctx context.Context, logger *slog.Logger) *slog.Logger {
	reqID := requestid.FromContext(ctx)
	if reqID == "" {
		return logger
	}
	return logger.With(slog.String("request_id", reqID))
}

// FromContext retrieves the logger from the context, or the default logger.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerContextKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

type contextKey string

const loggerContextKey contextKey = "logger"
