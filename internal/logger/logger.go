// Package logger holds the process-wide structured logger used by the
// allocator packages and the pagectl command.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// EnvVar enables debug logging to stderr when set to a non-empty value. A
// level name ("debug", "info", "warn", "error") selects that level instead.
const EnvVar = "PAGEALLOC_LOG"

// L is the global logger instance. It discards all output unless EnvVar is
// set or Init is called.
var L = fromEnv(os.Getenv(EnvVar), os.Stderr)

// Options configures the logger initialization.
type Options struct {
	Enabled bool       // If false, all logging is discarded
	Level   slog.Level // Minimum log level. Default: LevelInfo
	JSON    bool       // JSON handler instead of text
	Output  io.Writer  // Default: os.Stderr
}

// Init replaces L according to opts and returns it.
func Init(opts Options) *slog.Logger {
	L = New(opts)
	return L
}

// New builds a logger without touching L.
func New(opts Options) *slog.Logger {
	if !opts.Enabled {
		return discard()
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: opts.Level}
	if opts.JSON {
		return slog.New(slog.NewJSONHandler(out, hopts))
	}
	return slog.New(slog.NewTextHandler(out, hopts))
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logger: unknown level %q", s)
	}
}

func fromEnv(v string, out io.Writer) *slog.Logger {
	if v == "" {
		return discard()
	}
	level, err := ParseLevel(v)
	if err != nil {
		// Any other non-empty value just switches logging on.
		level = slog.LevelDebug
	}
	return New(Options{Enabled: true, Level: level, Output: out})
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Debug logs a debug message with optional key-value pairs.
func Debug(msg string, args ...any) { L.Debug(msg, args...) }

// Info logs an info message with optional key-value pairs.
func Info(msg string, args ...any) { L.Info(msg, args...) }

// Warn logs a warning message with optional key-value pairs.
func Warn(msg string, args ...any) { L.Warn(msg, args...) }

// Error logs an error message with optional key-value pairs.
func Error(msg string, args ...any) { L.Error(msg, args...) }
