// Package logger provides leveled logging (debug, info, warn, error) on top
// of the standard log package. Analyzer and gateway failures that degrade to
// fallbacks are reported here so they remain observable.
package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Level represents a logging level.
type Level int

const (
	// DebugLevel logs are voluminous and usually disabled in production.
	DebugLevel Level = iota
	// InfoLevel is the default logging priority.
	InfoLevel
	// WarnLevel logs are noteworthy but need no individual review.
	WarnLevel
	// ErrorLevel logs indicate a failure that was contained.
	ErrorLevel
)

var (
	level = InfoLevel
	out   = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
)

// Init sets the global log level. Unknown names fall back to info.
func Init(name string) {
	switch strings.ToLower(name) {
	case "debug":
		level = DebugLevel
	case "info":
		level = InfoLevel
	case "warn":
		level = WarnLevel
	case "error":
		level = ErrorLevel
	default:
		level = InfoLevel
	}
}

// Debug logs a message at DebugLevel.
func Debug(format string, args ...any) {
	if level <= DebugLevel {
		_ = out.Output(2, fmt.Sprintf("[DEBUG] "+format, args...))
	}
}

// Info logs a message at InfoLevel.
func Info(format string, args ...any) {
	if level <= InfoLevel {
		_ = out.Output(2, fmt.Sprintf("[INFO] "+format, args...))
	}
}

// Warn logs a message at WarnLevel.
func Warn(format string, args ...any) {
	if level <= WarnLevel {
		_ = out.Output(2, fmt.Sprintf("[WARN] "+format, args...))
	}
}

// Error logs a message at ErrorLevel.
func Error(format string, args ...any) {
	if level <= ErrorLevel {
		_ = out.Output(2, fmt.Sprintf("[ERROR] "+format, args...))
	}
}

// Fatal logs a message and exits.
func Fatal(format string, args ...any) {
	_ = out.Output(2, fmt.Sprintf("[FATAL] "+format, args...))
	os.Exit(1)
}
