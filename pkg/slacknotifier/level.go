// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package slacknotifier

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Level is the severity of a notification. It decides the icon shown in
// Slack, the attachment colour and the log level used by the local fallback.
type Level int

const (
	// LevelSuccess reports a completed operation
	LevelSuccess Level = iota
	// LevelWarning reports a condition that may need attention
	LevelWarning
	// LevelError reports a failure
	LevelError
	// LevelInfo reports routine progress
	LevelInfo
	// LevelDebug reports diagnostic detail
	LevelDebug
)

// Levels lists every notification level in declaration order.
var Levels = []Level{LevelSuccess, LevelWarning, LevelError, LevelInfo, LevelDebug}

// String returns the upper-case level name shown in messages.
func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "SUCCESS"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// Icon returns the emoji prefixed to the message text.
func (l Level) Icon() string {
	switch l {
	case LevelSuccess:
		return "✅"
	case LevelWarning:
		return "⚠️"
	case LevelError:
		return "❌"
	case LevelInfo:
		return "ℹ️"
	case LevelDebug:
		return "🔍"
	default:
		return "📢"
	}
}

// Color maps the level to a Slack attachment colour.
func (l Level) Color() string {
	switch l {
	case LevelSuccess:
		return "good" // Green
	case LevelWarning:
		return "warning" // Yellow
	case LevelError:
		return "danger" // Red
	case LevelInfo:
		return "#439FE0" // Blue
	default:
		return "#808080" // Gray
	}
}

// LogLevel is the zerolog level used when the notification is written to the
// local log instead of Slack. SUCCESS and INFO share the info level.
func (l Level) LogLevel() zerolog.Level {
	switch l {
	case LevelError:
		return zerolog.ErrorLevel
	case LevelWarning:
		return zerolog.WarnLevel
	case LevelDebug:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel converts a level name (case-insensitive) into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "success", "ok", "good":
		return LevelSuccess, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "error", "err", "danger":
		return LevelError, nil
	case "info", "":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	default:
		return LevelInfo, fmt.Errorf("unknown notification level %q", s)
	}
}
