// Package logging wraps log/slog with the console format and level names
// used across the migration graph tools.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// LevelTrace sits below debug and is used for per-record output
const LevelTrace = slog.LevelDebug - 4

// contextKey is a type for context keys to avoid collisions
type contextKey string

const requestIDKey contextKey = "requestID"

var (
	mu     sync.RWMutex
	logger *slog.Logger

	// output receives the logs of SetLevel and SetJSONOutput
	output io.Writer = os.Stderr
)

func init() {
	Configure(output, slog.LevelInfo, false)
}

// Configure replaces the process logger. Logs go to w in the compact
// console format, or as JSON lines when json is set.
func Configure(w io.Writer, level slog.Level, json bool) {
	var h slog.Handler
	if json {
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		h = NewCompactHandler(w, &slog.HandlerOptions{Level: level})
	}

	mu.Lock()
	logger = slog.New(h)
	mu.Unlock()
}

// SetLevel keeps the compact console format and changes the level
func SetLevel(level slog.Level) {
	Configure(output, level, false)
}

// SetJSONOutput switches to JSON lines at level
func SetJSONOutput(level slog.Level) {
	Configure(output, level, true)
}

// ParseLevel maps a level name and a count of -v flags to a slog level.
// Each -v lowers the level one step below info and wins over a higher name.
func ParseLevel(name string, verbose int) (slog.Level, error) {
	var level slog.Level
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		level = slog.LevelInfo
	case "trace":
		level = LevelTrace
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}

	switch {
	case verbose >= 2 && level > LevelTrace:
		level = LevelTrace
	case verbose == 1 && level > slog.LevelDebug:
		level = slog.LevelDebug
	}
	return level, nil
}

// New returns a logger that tags every record with component
func New(component string) *slog.Logger {
	return current().With("component", component)
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

func withRequestID(ctx context.Context, args []any) []any {
	if requestID := GetRequestID(ctx); requestID != "" {
		return append([]any{"requestID", requestID}, args...)
	}
	return args
}

// Trace logs per-record detail
func Trace(msg string, args ...any) {
	current().Log(context.Background(), LevelTrace, msg, args...)
}

// Debug logs at DEBUG level (internal component behavior)
func Debug(msg string, args ...any) {
	current().Debug(msg, args...)
}

// DebugContext logs at DEBUG level with context
func DebugContext(ctx context.Context, msg string, args ...any) {
	current().DebugContext(ctx, msg, withRequestID(ctx, args)...)
}

// Info logs at INFO level (user-facing operations)
func Info(msg string, args ...any) {
	current().Info(msg, args...)
}

// InfoContext logs at INFO level with context
func InfoContext(ctx context.Context, msg string, args ...any) {
	current().InfoContext(ctx, msg, withRequestID(ctx, args)...)
}

// Warn logs at WARN level (should be monitored)
func Warn(msg string, args ...any) {
	current().Warn(msg, args...)
}

// Error logs at ERROR level
func Error(msg string, args ...any) {
	current().Error(msg, args...)
}

// ErrorContext logs at ERROR level with context
func ErrorContext(ctx context.Context, msg string, args ...any) {
	current().ErrorContext(ctx, msg, withRequestID(ctx, args)...)
}

