// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package errors provides structured error types for the Slack notifier.
//
// Notification delivery is best-effort: the notifier never hands these errors
// to callers of its Send methods, but Deliver returns them so a host (such as
// the slack-notify command) can decide what a failed delivery means to it.
//
// # Example Usage
//
//	err := notifier.Deliver(ctx, slacknotifier.LevelError, n)
//	if errors.Is(err, errors.ErrNoWebhook) {
//	    // message went to the notification log instead
//	}
//
//	var notifErr *errors.NotificationError
//	if errors.As(err, &notifErr) {
//	    log.Printf("delivery via %s failed: %v", notifErr.Type, notifErr.Err)
//	}
package errors

import (
	"errors"
	"fmt"
)

// NotificationError represents an error sending notifications.
type NotificationError struct {
	Type       string // Notification type (e.g., "slack")
	StatusCode int    // HTTP status returned by the webhook, 0 if none
	Err        error  // Underlying error
}

func (e *NotificationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("notification %s (status=%d): %v", e.Type, e.StatusCode, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("notification %s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("notification %s failed", e.Type)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

// NewNotificationError creates a new notification error.
func NewNotificationError(notifType string, err error) *NotificationError {
	return &NotificationError{Type: notifType, Err: err}
}

// NewNotificationStatusError creates a notification error for a non-2xx webhook response.
func NewNotificationStatusError(notifType string, statusCode int) *NotificationError {
	return &NotificationError{
		Type:       notifType,
		StatusCode: statusCode,
		Err:        ErrDeliveryFailed,
	}
}

// IsNotificationError checks if an error is a NotificationError.
func IsNotificationError(err error) bool {
	var ne *NotificationError
	return errors.As(err, &ne)
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field string // Configuration field that caused the error
	Value string // Invalid value (optional, may be redacted for sensitive fields)
	Err   error  // Underlying error or description
}

func (e *ConfigError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("config error in field %q (value=%q): %v", e.Field, e.Value, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("config error in field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config error in field %q", e.Field)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new configuration error.
func NewConfigError(field string, value string, err error) *ConfigError {
	return &ConfigError{Field: field, Value: value, Err: err}
}

// IsConfigError checks if an error is a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Sentinel errors for common conditions
var (
	// ErrNoWebhook indicates no webhook URL is configured and the message was logged locally
	ErrNoWebhook = errors.New("no webhook configured")

	// ErrDeliveryFailed indicates the webhook request failed or was rejected
	ErrDeliveryFailed = errors.New("delivery failed")

	// ErrCircuitBreakerOpen indicates delivery was skipped because the webhook keeps failing
	ErrCircuitBreakerOpen = errors.New("circuit breaker open")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")
)
