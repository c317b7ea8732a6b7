// Package logging provides structured logging for omaha using slog.
//
// Usage:
//
//	// Send logs to a file (falls back to stderr on failure)
//	if err := logging.Init(logPath); err != nil {
//	    // handle error
//	}
//	defer logging.Close()
//
//	// Add context values
//	ctx = logging.WithComponent(ctx, "branch")
//	ctx = logging.WithChannel(ctx, "beta")
//
//	// Log with context - component/channel extracted automatically
//	logging.Info(ctx, "resolved channel",
//	    slog.Int("branch", 1650),
//	)
package logging

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LogLevelEnvVar is the environment variable that controls log level.
const LogLevelEnvVar = "OMAHA_LOG_LEVEL"

var (
	// logger is the package-level logger instance
	logger *slog.Logger

	// logFile holds the current log file handle for cleanup
	logFile *os.File

	// logBufWriter wraps logFile with buffered I/O
	logBufWriter *bufio.Writer

	// mu protects logger, logFile and logBufWriter
	mu sync.RWMutex

	// logLevelGetter is an optional callback to get log level from settings.
	logLevelGetter func() string
)

// SetLogLevelGetter sets a callback function to get the log level from settings.
// The callback is only used if OMAHA_LOG_LEVEL is not set.
func SetLogLevelGetter(getter func() string) {
	mu.Lock()
	defer mu.Unlock()
	logLevelGetter = getter
}

// Init initializes the logger, writing JSON logs to logPath.
// An empty logPath logs to stderr. If the file cannot be created, Init falls
// back to stderr as well.
func Init(logPath string) error {
	if strings.ContainsRune(logPath, 0) {
		return errors.New("invalid log path")
	}

	mu.Lock()
	defer mu.Unlock()

	closeLocked()

	levelStr := os.Getenv(LogLevelEnvVar)
	if levelStr == "" && logLevelGetter != nil {
		levelStr = logLevelGetter()
	}
	level := parseLogLevel(levelStr)

	if levelStr != "" && !isValidLogLevel(levelStr) {
		fmt.Fprintf(os.Stderr, "[omaha] Warning: invalid log level %q, defaulting to INFO\n", levelStr)
	}

	if logPath == "" {
		logger = createLogger(os.Stderr, level)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0o750); err != nil {
		logger = createLogger(os.Stderr, level)
		return nil //nolint:nilerr // stderr fallback
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // path comes from settings
	if err != nil {
		logger = createLogger(os.Stderr, level)
		return nil //nolint:nilerr // stderr fallback
	}

	logFile = f
	logBufWriter = bufio.NewWriterSize(f, 8192)
	logger = createLogger(logBufWriter, level)

	return nil
}

// Close flushes and closes the log file if one is open.
// Safe to call multiple times.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
}

func closeLocked() {
	if logBufWriter != nil {
		_ = logBufWriter.Flush()
		logBufWriter = nil
	}
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

// resetLogger resets the logger to nil (for testing).
func resetLogger() {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
	logger = nil
}

// getLogger returns the current logger, or a default stderr logger if not initialized.
func getLogger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()

	if logger == nil {
		return slog.Default()
	}
	return logger
}

// createLogger creates a JSON logger writing to the given writer at the specified level.
func createLogger(w io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level,
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// parseLogLevel parses a log level string to slog.Level.
// Returns slog.LevelInfo for empty or invalid values.
func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// isValidLogLevel checks if the given string is a valid log level.
func isValidLogLevel(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG", "INFO", "WARN", "WARNING", "ERROR", "":
		return true
	default:
		return false
	}
}

// Debug logs at DEBUG level with context values automatically extracted.
func Debug(ctx context.Context, msg string, attrs ...any) {
	log(ctx, slog.LevelDebug, msg, attrs...)
}

// Info logs at INFO level with context values automatically extracted.
func Info(ctx context.Context, msg string, attrs ...any) {
	log(ctx, slog.LevelInfo, msg, attrs...)
}

// Warn logs at WARN level with context values automatically extracted.
func Warn(ctx context.Context, msg string, attrs ...any) {
	log(ctx, slog.LevelWarn, msg, attrs...)
}

// Error logs at ERROR level with context values automatically extracted.
func Error(ctx context.Context, msg string, attrs ...any) {
	log(ctx, slog.LevelError, msg, attrs...)
}

// LogDuration logs a message with duration_ms calculated from the start time.
// Designed for use with defer:
//
//	defer logging.LogDuration(ctx, slog.LevelDebug, "feed parsed", time.Now())
func LogDuration(ctx context.Context, level slog.Level, msg string, start time.Time, attrs ...any) {
	allAttrs := make([]any, 0, len(attrs)+1)
	allAttrs = append(allAttrs, slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	allAttrs = append(allAttrs, attrs...)

	log(ctx, level, msg, allAttrs...)
}

func log(ctx context.Context, level slog.Level, msg string, attrs ...any) {
	l := getLogger()

	var allAttrs []any
	for _, a := range attrsFromContext(ctx) {
		allAttrs = append(allAttrs, a)
	}
	allAttrs = append(allAttrs, attrs...)

	// Context values are already extracted as attributes.
	l.Log(context.Background(), level, msg, allAttrs...)
}

// attrsFromContext extracts logging attributes from a context.
func attrsFromContext(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}

	var attrs []slog.Attr
	if s := CommandFromContext(ctx); s != "" {
		attrs = append(attrs, slog.String("command", s))
	}
	if s := ComponentFromContext(ctx); s != "" {
		attrs = append(attrs, slog.String("component", s))
	}
	if s := ChannelFromContext(ctx); s != "" {
		attrs = append(attrs, slog.String("channel", s))
	}
	return attrs
}
