// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package logger provides structured logging using zerolog.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// log writes to stderr at info level until Initialize is called, so library
// users that never call it still get output.
var log = newDefaultLogger()

func newDefaultLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: stderr{}, TimeFormat: time.RFC3339}).
		Level(zerolog.InfoLevel).
		With().
		Timestamp().
		Logger()
}

// stderr writes to os.Stderr as it is at write time.
type stderr struct{}

func (stderr) Write(p []byte) (int, error) {
	return os.Stderr.Write(p)
}

// Initialize sets up the global logger with the specified level
func Initialize(level string) {
	// Parse log level
	logLevel, err := parseLogLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}

	// Configure zerolog
	zerolog.TimeFieldFormat = time.RFC3339
	output := zerolog.ConsoleWriter{Out: stderr{}, TimeFormat: time.RFC3339}

	log = zerolog.New(output).
		Level(logLevel).
		With().
		Timestamp().
		Caller().
		Logger()
}

// parseLogLevel converts string log level to zerolog.Level
func parseLogLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	case "fatal":
		return zerolog.FatalLevel, nil
	case "panic":
		return zerolog.PanicLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// NewFileLogger opens (or creates) a dedicated notification log at path and
// returns a logger writing JSON lines to it. Records at debug level and above
// are kept. The caller owns the returned io.Closer.
func NewFileLogger(path string) (zerolog.Logger, io.Closer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to create notification log directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) // #nosec G304
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("failed to open notification log: %w", err)
	}

	l := zerolog.New(f).
		Level(zerolog.DebugLevel).
		With().
		Timestamp().
		Str("logger", "notifications").
		Logger()
	return l, f, nil
}

// Get returns the global logger instance
func Get() *zerolog.Logger {
	return &log
}

// Debug logs a debug message
func Debug() *zerolog.Event {
	return log.Debug()
}

// Info logs an info message
func Info() *zerolog.Event {
	return log.Info()
}

// Warn logs a warning message
func Warn() *zerolog.Event {
	return log.Warn()
}

// Error logs an error message
func Error() *zerolog.Event {
	return log.Error()
}

// Fatal logs a fatal message and exits
func Fatal() *zerolog.Event {
	return log.Fatal()
}

// With creates a child logger with additional fields
func With() zerolog.Context {
	return log.With()
}

// SetOutput sets the output writer for the logger
func SetOutput(w io.Writer) {
	log = log.Output(w)
}
