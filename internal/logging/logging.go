// Package logging holds the slog helpers shared by every busfinder component.
// Loggers travel through context.Context so per-run attributes (run id, route)
// are attached once and picked up by the packages further down the call chain.
package logging

import (
	"context"
	"io"
	"log/slog"
)

type contextKey struct{}

// NewLogger builds the process logger. Verbose enables debug records and
// jsonOutput switches from the text handler to the JSON handler.
func NewLogger(w io.Writer, verbose bool, jsonOutput bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if jsonOutput {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger stored by WithLogger, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && logger != nil {
			return logger
		}
	}
	return slog.Default()
}

// LogError records err at ERROR level under msg.
func LogError(logger *slog.Logger, msg string, err error, attrs ...slog.Attr) {
	logAttrs(logger, slog.LevelError, msg, err, attrs)
}

// LogWarn records a recoverable problem. err may be nil.
func LogWarn(logger *slog.Logger, msg string, err error, attrs ...slog.Attr) {
	logAttrs(logger, slog.LevelWarn, msg, err, attrs)
}

// LogOperation records a named step of the run at INFO level.
func LogOperation(logger *slog.Logger, operation string, attrs ...slog.Attr) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.LogAttrs(context.Background(), slog.LevelInfo, operation, attrs...)
}

// SafeCloseWithLogging closes c and logs a failure instead of returning it.
// name identifies the resource in the log record.
func SafeCloseWithLogging(c io.Closer, logger *slog.Logger, name string) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		LogError(logger, "failed to close resource", err, slog.String("resource", name))
	}
}

func logAttrs(logger *slog.Logger, level slog.Level, msg string, err error, attrs []slog.Attr) {
	if logger == nil {
		logger = slog.Default()
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	logger.LogAttrs(context.Background(), level, msg, attrs...)
}
