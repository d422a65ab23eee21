package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger creates a configured slog.Logger.
//
// level: slog level (DEBUG, INFO, WARN, ERROR)
// format: "text" (human-readable) or "json" (structured)
//
// Output goes to stderr by default (stdout is reserved for program output).
func NewLogger(level slog.Level, format string) *slog.Logger {
	return NewLoggerWithWriter(level, format, os.Stderr)
}

// redactedKeys are attribute keys whose values never reach the log: secrets
// and patient-identifying report data.
var redactedKeys = map[string]bool{
	"password":      true,
	"token":         true,
	"api_key":       true,
	"authorization": true,
	"cookie":        true,
	"patient_name":  true,
	"blood_report":  true,
	"report_text":   true,
}

// Redacted replaces the value of a redacted attribute.
const Redacted = "[REDACTED]"

func redact(_ []string, a slog.Attr) slog.Attr {
	if redactedKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, Redacted)
	}
	return a
}

// NewLoggerWithWriter creates a logger writing to the given writer.
// Attributes named in redactedKeys are masked.
func NewLoggerWithWriter(level slog.Level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: redact}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// NewRotatingFile returns a size-rotated log file writer.
func NewRotatingFile(path string) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}
}

// NewLoggerWithFile creates a logger writing to stderr and, when path is
// non-empty, to a rotating log file. The returned closer releases the file.
func NewLoggerWithFile(level slog.Level, format, path string) (*slog.Logger, io.Closer) {
	if path == "" {
		return NewLogger(level, format), io.NopCloser(nil)
	}
	file := NewRotatingFile(path)
	return NewLoggerWithWriter(level, format, io.MultiWriter(os.Stderr, file)), file
}

// ParseLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unrecognized values.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
