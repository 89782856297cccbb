// Package logger provides the structured logging used across viewerkit.
//
// Unlike the teacher's getLogger() (a package-level *log.Logger behind a
// sync.Once) and unlike marmos91/dittofs's logger package (global atomic
// level/format state), this package hands out an explicit *Logger value
// that every subsystem receives at construction time. Design Notes in
// SPEC_FULL.md flag global singletons as a re-architecture target, so
// there is no package-level logger here to retrieve.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config controls how a Logger is built.
type Config struct {
	// Level is one of "debug", "info", "warn", "error" (case-insensitive).
	Level string
	// Format is "text" or "json".
	Format string
	// Output defaults to os.Stderr when nil.
	Output io.Writer
}

// Logger wraps *slog.Logger with viewerkit's standard field keys.
type Logger struct {
	slog *slog.Logger
}

// New builds a Logger from Config. A zero Config yields an info-level
// text logger writing to stderr.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return &Logger{slog: slog.New(handler)}
}

// Nop returns a Logger that discards everything, for tests that don't
// care about log output.
func Nop() *Logger {
	return &Logger{slog: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a Logger whose every subsequent entry carries the given
// key/value pairs, the same pattern the teacher uses to prefix every
// debug line with the op ID (see connection.go's debugLog).
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...)}
}

// WithContext merges any LogContext found on ctx into the returned
// Logger's fields.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	lc := FromContext(ctx)
	if lc == nil {
		return l
	}
	return l.With(
		KeyPath, lc.Path,
		KeyComponent, lc.Component,
	)
}

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)   { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)   { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any)  { l.slog.Error(msg, args...) }
