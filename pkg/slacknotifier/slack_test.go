// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package slacknotifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/soothill/slack-notifier/pkg/errors"
)

func fixedClock() time.Time { return fixedNow }

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		webhookURL  string
		wantEnabled bool
	}{
		{
			name:        "with webhook URL",
			webhookURL:  "https://hooks.slack.com/services/test",
			wantEnabled: true,
		},
		{
			name:        "empty webhook URL",
			webhookURL:  "",
			wantEnabled: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := New(Config{WebhookURL: tt.webhookURL, SystemName: "test"})
			if notifier.IsEnabled() != tt.wantEnabled {
				t.Errorf("IsEnabled() = %v, want %v", notifier.IsEnabled(), tt.wantEnabled)
			}
		})
	}
}

func TestNew_DefaultTimeout(t *testing.T) {
	notifier := New(Config{})
	assert.Equal(t, DefaultTimeout, notifier.client.Timeout)

	notifier = New(Config{Timeout: 3 * time.Second})
	assert.Equal(t, 3*time.Second, notifier.client.Timeout)
}

func TestNotifier_Send(t *testing.T) {
	var body []byte
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST request, got %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected Content-Type application/json, got %s", r.Header.Get("Content-Type"))
		}
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := New(Config{WebhookURL: server.URL, SystemName: "TestSystem"}, WithClock(fixedClock))

	ok := notifier.SendInfo(context.Background(), Notification{
		Message: "Test message",
		Title:   "Test Title",
		Fields:  []Field{{Label: "key", Value: "value"}},
	})
	require.True(t, ok)
	require.True(t, called, "Expected webhook to be called")

	var msg Message
	require.NoError(t, json.Unmarshal(body, &msg))
	require.Len(t, msg.Blocks, 5)
	assert.Equal(t, "Test Title", msg.Blocks[0].Text.Text)
	assert.Equal(t, "ℹ️ *INFO*\nTest message", msg.Blocks[1].Text.Text)
	assert.Equal(t, "*key:*\nvalue", msg.Blocks[2].Fields[0].Text)
	assert.Equal(t, "System: TestSystem | Sent at: 2025-03-14 09:26:53", msg.Blocks[4].Elements[0].Text)
}

func TestNotifier_ConvenienceLevels(t *testing.T) {
	var texts []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg Message
		_ = json.NewDecoder(r.Body).Decode(&msg)
		texts = append(texts, msg.Blocks[0].Text.Text)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := New(Config{WebhookURL: server.URL})
	ctx := context.Background()
	n := Notification{Message: "m"}

	assert.True(t, notifier.SendSuccess(ctx, n))
	assert.True(t, notifier.SendWarning(ctx, n))
	assert.True(t, notifier.SendError(ctx, n))
	assert.True(t, notifier.SendInfo(ctx, n))
	assert.True(t, notifier.SendDebug(ctx, n))

	assert.Equal(t, []string{
		"✅ *SUCCESS*\nm",
		"⚠️ *WARNING*\nm",
		"❌ *ERROR*\nm",
		"ℹ️ *INFO*\nm",
		"🔍 *DEBUG*\nm",
	}, texts)
}

func TestNotifier_NoWebhookLogsInstead(t *testing.T) {
	var buf bytes.Buffer
	notifier := New(Config{SystemName: "batch-01"}, WithNotificationLogger(zerolog.New(&buf)))
	buf.Reset()

	err := notifier.Deliver(context.Background(), LevelError, Notification{
		Title:   "Import failed",
		Message: "3 files rejected",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNoWebhook))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "error", record["level"])
	assert.Equal(t, "ERROR", record["notification_level"])
	assert.Equal(t, "batch-01", record["system"])
	assert.Equal(t, "=== Import failed ===\n❌ ERROR: 3 files rejected", record["message"])
}

func TestNotifier_NoWebhookSendSucceeds(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelSuccess, "info"},
		{LevelInfo, "info"},
		{LevelWarning, "warn"},
		{LevelError, "error"},
		{LevelDebug, "debug"},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			var buf bytes.Buffer
			notifier := New(Config{}, WithNotificationLogger(zerolog.New(&buf)))
			buf.Reset()

			assert.True(t, notifier.Send(context.Background(), tt.level, Notification{Message: "hello"}))
			assert.Contains(t, buf.String(), `"level":"`+tt.want+`"`)
		})
	}
}

func TestNotifier_NoWebhookMakesNoRequest(t *testing.T) {
	var calls atomic.Int32
	transport := roundTripFunc(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, errors.New("unexpected request")
	})

	notifier := New(Config{}, WithHTTPClient(&http.Client{Transport: transport}),
		WithNotificationLogger(zerolog.Nop()))

	assert.True(t, notifier.SendInfo(context.Background(), Notification{Message: "hello"}))
	assert.Zero(t, calls.Load())
}

func TestNotifier_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	notifier := New(Config{WebhookURL: server.URL})
	ctx := context.Background()

	err := notifier.Deliver(ctx, LevelInfo, Notification{Message: "Test message"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrDeliveryFailed))

	var ne *apperrors.NotificationError
	require.True(t, errors.As(err, &ne))
	assert.Equal(t, http.StatusInternalServerError, ne.StatusCode)

	assert.False(t, notifier.SendInfo(ctx, Notification{Message: "Test message"}))
}

func TestNotifier_Accepts2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	notifier := New(Config{WebhookURL: server.URL})
	assert.NoError(t, notifier.Deliver(context.Background(), LevelInfo, Notification{Message: "x"}))
}

func TestNotifier_NetworkFailureDoesNotPropagate(t *testing.T) {
	transport := roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection reset by peer")
	})
	notifier := New(Config{WebhookURL: "https://hooks.slack.com/services/test"},
		WithHTTPClient(&http.Client{Transport: transport}))

	assert.NotPanics(t, func() {
		ok := notifier.SendError(context.Background(), Notification{Message: "boom"})
		assert.False(t, ok)
	})

	err := notifier.Deliver(context.Background(), LevelError, Notification{Message: "boom"})
	assert.True(t, errors.Is(err, apperrors.ErrDeliveryFailed))
	assert.True(t, apperrors.IsNotificationError(err))
}

func TestNotifier_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	notifier := New(Config{WebhookURL: server.URL, Timeout: 50 * time.Millisecond})

	err := notifier.Deliver(context.Background(), LevelInfo, Notification{Message: "Test message"})
	assert.Error(t, err, "Expected timeout error")
}

func TestNotifier_CircuitBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	var buf bytes.Buffer
	notifier := New(Config{WebhookURL: server.URL},
		WithBreakerSettings(2, time.Minute),
		WithNotificationLogger(zerolog.New(&buf)))
	ctx := context.Background()

	assert.False(t, notifier.SendWarning(ctx, Notification{Message: "first"}))
	assert.False(t, notifier.SendWarning(ctx, Notification{Message: "second"}))
	buf.Reset()

	err := notifier.Deliver(ctx, LevelWarning, Notification{Message: "third"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrCircuitBreakerOpen))
	assert.True(t, errors.Is(err, apperrors.ErrDeliveryFailed))
	assert.Equal(t, int32(2), calls.Load(), "open breaker should skip the webhook")
	assert.Contains(t, buf.String(), "third", "skipped message should go to the notification log")
}

func TestNotifier_UpdateWebhookURL(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := New(Config{}, WithNotificationLogger(zerolog.Nop()))
	require.False(t, notifier.IsEnabled())

	notifier.UpdateWebhookURL(server.URL)
	require.True(t, notifier.IsEnabled())
	require.NoError(t, notifier.Deliver(context.Background(), LevelInfo, Notification{Message: "x"}))
	assert.Equal(t, int32(1), calls.Load())

	notifier.UpdateWebhookURL("")
	assert.False(t, notifier.IsEnabled())
	assert.True(t, notifier.SendInfo(context.Background(), Notification{Message: "y"}))
	assert.Equal(t, int32(1), calls.Load())
}

func TestNotifier_ColorBarPayload(t *testing.T) {
	var raw string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		raw = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := New(Config{WebhookURL: server.URL, ColorBar: true})
	require.True(t, notifier.SendSuccess(context.Background(), Notification{Message: "ok"}))

	assert.True(t, strings.HasPrefix(raw, `{"attachments":[{"color":"good"`), raw)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestNotifier_UpdateWebhookURLClosesBreaker(t *testing.T) {
	var badCalls, goodCalls atomic.Int32
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		badCalls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		goodCalls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer good.Close()

	notifier := New(Config{WebhookURL: bad.URL},
		WithBreakerSettings(2, time.Minute),
		WithNotificationLogger(zerolog.Nop()))
	ctx := context.Background()

	assert.False(t, notifier.SendError(ctx, Notification{Message: "first"}))
	assert.False(t, notifier.SendError(ctx, Notification{Message: "second"}))
	err := notifier.Deliver(ctx, LevelError, Notification{Message: "skipped"})
	require.ErrorIs(t, err, apperrors.ErrCircuitBreakerOpen)
	require.Equal(t, int32(2), badCalls.Load())

	// Setting the same URL again keeps the breaker open.
	notifier.UpdateWebhookURL(bad.URL)
	assert.ErrorIs(t, notifier.Deliver(ctx, LevelError, Notification{Message: "still skipped"}), apperrors.ErrCircuitBreakerOpen)

	notifier.UpdateWebhookURL(good.URL)
	assert.True(t, notifier.SendInfo(ctx, Notification{Message: "after rotation"}))
	assert.Equal(t, int32(1), goodCalls.Load())
	assert.Equal(t, int32(2), badCalls.Load())
}

func TestNotifier_Reconfigure(t *testing.T) {
	var raw string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		raw = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := New(Config{SystemName: "old-name"}, WithNotificationLogger(zerolog.Nop()))
	notifier.Reconfigure(Config{
		WebhookURL: server.URL,
		SystemName: "new-name",
		Timeout:    3 * time.Second,
		ColorBar:   true,
	})

	assert.Equal(t, "new-name", notifier.SystemName())
	assert.True(t, notifier.IsEnabled())
	assert.Equal(t, 3*time.Second, notifier.client.Timeout)

	require.True(t, notifier.SendSuccess(context.Background(), Notification{Message: "ok"}))
	assert.True(t, strings.HasPrefix(raw, `{"attachments":[{"color":"good"`), raw)
	assert.Contains(t, raw, "System: new-name")
}

func TestNotifier_ReconfigureKeepsCustomClient(t *testing.T) {
	client := &http.Client{Timeout: time.Second}
	notifier := New(Config{}, WithHTTPClient(client), WithNotificationLogger(zerolog.Nop()))

	notifier.Reconfigure(Config{Timeout: 30 * time.Second})

	assert.Same(t, client, notifier.client)
	assert.Equal(t, time.Second, client.Timeout)
}

func TestNotifier_NoWebhookLogsWithoutLoggerSetup(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	saved := os.Stderr
	os.Stderr = w
	defer func() { os.Stderr = saved }()

	ok := New(Config{SystemName: "lib-user"}).SendError(context.Background(), Notification{Message: "disk full"})
	require.True(t, ok)

	require.NoError(t, w.Close())
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Contains(t, string(out), "disk full")
}
