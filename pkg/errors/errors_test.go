// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNotificationError(t *testing.T) {
	baseErr := fmt.Errorf("connection refused")
	err := NewNotificationError("slack", baseErr)

	errMsg := err.Error()
	if !strings.Contains(errMsg, "notification") || !strings.Contains(errMsg, "slack") {
		t.Errorf("Error() = %q, want message containing 'notification' and 'slack'", errMsg)
	}

	if !errors.Is(err, baseErr) {
		t.Error("errors.Is() should find wrapped error")
	}

	if !IsNotificationError(err) {
		t.Error("IsNotificationError() should return true for NotificationError")
	}

	var ne *NotificationError
	if !errors.As(err, &ne) {
		t.Fatal("errors.As() should extract NotificationError")
	}
	if ne.Type != "slack" {
		t.Errorf("NotificationError.Type = %q, want %q", ne.Type, "slack")
	}
}

func TestNotificationStatusError(t *testing.T) {
	err := NewNotificationStatusError("slack", 500)

	if !strings.Contains(err.Error(), "status=500") {
		t.Errorf("Error() = %q, want message containing status code", err.Error())
	}
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Error("status error should wrap ErrDeliveryFailed")
	}
}

func TestConfigError(t *testing.T) {
	baseErr := fmt.Errorf("invalid format")
	err := NewConfigError("progress.thresholds", "20,abc", baseErr)

	errMsg := err.Error()
	if !strings.Contains(errMsg, "config") || !strings.Contains(errMsg, "progress.thresholds") {
		t.Errorf("Error() = %q, want message containing 'config' and 'progress.thresholds'", errMsg)
	}

	if !IsConfigError(err) {
		t.Error("IsConfigError() should return true for ConfigError")
	}

	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatal("errors.As() should extract ConfigError")
	}
	if ce.Field != "progress.thresholds" {
		t.Errorf("ConfigError.Field = %q, want %q", ce.Field, "progress.thresholds")
	}
}

func TestSentinelErrors(t *testing.T) {
	sentinels := []error{ErrNoWebhook, ErrDeliveryFailed, ErrCircuitBreakerOpen, ErrInvalidConfig}

	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && errors.Is(a, b) {
				t.Errorf("sentinel %v should not match %v", a, b)
			}
		}
	}

	wrapped := NewNotificationError("slack", ErrNoWebhook)
	if !errors.Is(wrapped, ErrNoWebhook) {
		t.Error("wrapped sentinel should be found by errors.Is()")
	}
}

func TestErrorsWithoutUnderlyingError(t *testing.T) {
	notifErr := &NotificationError{Type: "slack"}
	if notifErr.Error() != "notification slack failed" {
		t.Errorf("Error() = %q", notifErr.Error())
	}

	cfgErr := &ConfigError{Field: "slack.webhook_url"}
	if cfgErr.Error() != `config error in field "slack.webhook_url"` {
		t.Errorf("Error() = %q", cfgErr.Error())
	}
}

func TestIsHelperWithWrongType(t *testing.T) {
	plain := errors.New("plain")
	if IsNotificationError(plain) {
		t.Error("IsNotificationError() should be false for plain error")
	}
	if IsConfigError(plain) {
		t.Error("IsConfigError() should be false for plain error")
	}
}
