// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package slacknotifier provides a simple client for sending notifications to Slack
// via Incoming Webhooks.
//
// Messages are rendered as block-kit payloads tagged with a level (SUCCESS,
// WARNING, ERROR, INFO, DEBUG). Delivery is best-effort: when no webhook URL
// is configured the notification is written to the notification log instead,
// and when the webhook fails the error is logged and swallowed.
//
// # Features
//
//   - Block-kit messages with header, fields and code blocks
//   - Level icons and optional colour bar
//   - Local log fallback when no webhook URL is configured
//   - Circuit breaker that stops calling a webhook that keeps failing
//   - Progress tracker firing notifications at percentage thresholds
//
// # Usage
//
//	notifier := slacknotifier.New(slacknotifier.Config{
//	    WebhookURL: "https://hooks.slack.com/services/...",
//	    SystemName: "batch-01",
//	})
//
//	notifier.SendError(ctx, slacknotifier.Notification{
//	    Title:   "Import failed",
//	    Message: "3 files could not be parsed",
//	    Fields:  []slacknotifier.Field{{Label: "Job", Value: "nightly"}},
//	})
//
//	tracker := slacknotifier.NewTracker(notifier, len(files), slacknotifier.DefaultThresholds())
//	for _, f := range files {
//	    tracker.Record(ctx, process(f) == nil)
//	}
package slacknotifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	apperrors "github.com/soothill/slack-notifier/pkg/errors"
	"github.com/soothill/slack-notifier/pkg/logger"
	"github.com/soothill/slack-notifier/pkg/metrics"
)

const (
	// DefaultTimeout is the HTTP timeout used when Config.Timeout is zero
	DefaultTimeout = 10 * time.Second

	notifierType = "slack"

	breakerName        = "slack-webhook"
	breakerMaxFailures = 5
	breakerOpenTimeout = 30 * time.Second
)

// Config holds the settings of a Notifier. Defaults taken from the
// environment are resolved by the caller (see the config package).
type Config struct {
	WebhookURL string
	SystemName string
	Timeout    time.Duration
	ColorBar   bool
}

// Option customises a Notifier
type Option func(*Notifier)

// WithHTTPClient replaces the HTTP client used for webhook requests.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Notifier) {
		s.client = client
		s.customClient = true
	}
}

// WithNotificationLogger sets the logger that receives notifications when no
// webhook is configured. Defaults to the global logger.
func WithNotificationLogger(l zerolog.Logger) Option {
	return func(s *Notifier) { s.notifLog = &l }
}

// WithClock overrides the time source used for message footers.
func WithClock(now func() time.Time) Option {
	return func(s *Notifier) { s.now = now }
}

// WithBreakerSettings overrides the circuit breaker thresholds.
func WithBreakerSettings(maxFailures uint32, openTimeout time.Duration) Option {
	return func(s *Notifier) {
		s.maxFailures = maxFailures
		s.openTimeout = openTimeout
	}
}

// Notifier sends notifications to Slack via webhook
type Notifier struct {
	// mu guards the settings that Reconfigure and UpdateWebhookURL replace.
	mu           sync.RWMutex
	webhookURL   string
	systemName   string
	colorBar     bool
	client       *http.Client
	customClient bool
	breaker      *gobreaker.CircuitBreaker

	maxFailures uint32
	openTimeout time.Duration
	notifLog    *zerolog.Logger
	now         func() time.Time
}

// New creates a new Slack notifier
func New(cfg Config, opts ...Option) *Notifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	s := &Notifier{
		webhookURL: cfg.WebhookURL,
		systemName: cfg.SystemName,
		colorBar:   cfg.ColorBar,
		client: &http.Client{
			Timeout: timeout,
		},
		now:         time.Now,
		maxFailures: breakerMaxFailures,
		openTimeout: breakerOpenTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.breaker = newBreaker(s.maxFailures, s.openTimeout)

	if s.IsEnabled() {
		s.notificationLog().Debug().Str("system", s.systemName).Msg("Slack notifier initialized with webhook")
	} else {
		s.notificationLog().Info().Str("system", s.systemName).Msg("Slack notifier initialized in logging-only mode (no webhook URL configured)")
	}
	return s
}

func newBreaker(maxFailures uint32, openTimeout time.Duration) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up is not the webhook's fault.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.Set(float64(to))
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Slack webhook circuit breaker state changed")
		},
	})
}

// IsEnabled returns whether Slack notifications are enabled
func (s *Notifier) IsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.webhookURL != ""
}

// UpdateWebhookURL updates the webhook URL for the notifier. An empty URL
// switches the notifier to logging-only mode. A new URL starts with a closed
// circuit breaker.
func (s *Notifier) UpdateWebhookURL(webhookURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setWebhookURLLocked(webhookURL)
}

// Reconfigure applies a reloaded Config. The HTTP timeout is only changed
// when the client was not supplied with WithHTTPClient.
func (s *Notifier) Reconfigure(cfg Config) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.systemName = cfg.SystemName
	s.colorBar = cfg.ColorBar
	if !s.customClient && s.client.Timeout != timeout {
		s.client = &http.Client{Timeout: timeout}
	}
	s.setWebhookURLLocked(cfg.WebhookURL)
}

func (s *Notifier) setWebhookURLLocked(webhookURL string) {
	if webhookURL == s.webhookURL {
		return
	}
	s.webhookURL = webhookURL
	// Failures of the old endpoint say nothing about the new one.
	s.breaker = newBreaker(s.maxFailures, s.openTimeout)
	metrics.CircuitBreakerState.Set(float64(gobreaker.StateClosed))
}

// SystemName returns the label shown in message footers.
func (s *Notifier) SystemName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.systemName
}

// Send delivers a notification and reports whether it reached Slack or the
// local log. It never returns an error: failures are logged and swallowed.
func (s *Notifier) Send(ctx context.Context, level Level, n Notification) bool {
	err := s.Deliver(ctx, level, n)
	if err == nil || errors.Is(err, apperrors.ErrNoWebhook) {
		return true
	}

	logger.Error().Err(err).
		Str("level", level.String()).
		Str("title", n.Title).
		Msg("Failed to send notification")
	return false
}

// SendSuccess sends a SUCCESS notification
func (s *Notifier) SendSuccess(ctx context.Context, n Notification) bool {
	return s.Send(ctx, LevelSuccess, n)
}

// SendWarning sends a WARNING notification
func (s *Notifier) SendWarning(ctx context.Context, n Notification) bool {
	return s.Send(ctx, LevelWarning, n)
}

// SendError sends an ERROR notification
func (s *Notifier) SendError(ctx context.Context, n Notification) bool {
	return s.Send(ctx, LevelError, n)
}

// SendInfo sends an INFO notification
func (s *Notifier) SendInfo(ctx context.Context, n Notification) bool {
	return s.Send(ctx, LevelInfo, n)
}

// SendDebug sends a DEBUG notification
func (s *Notifier) SendDebug(ctx context.Context, n Notification) bool {
	return s.Send(ctx, LevelDebug, n)
}

// Deliver is Send for callers that want to know what happened. It returns nil
// when Slack accepted the message, a NotificationError wrapping ErrNoWebhook
// when the message was logged locally, and one wrapping ErrDeliveryFailed
// otherwise.
func (s *Notifier) Deliver(ctx context.Context, level Level, n Notification) error {
	s.mu.RLock()
	webhookURL := s.webhookURL
	systemName := s.systemName
	colorBar := s.colorBar
	client := s.client
	breaker := s.breaker
	s.mu.RUnlock()

	if webhookURL == "" {
		s.logNotification(level, n, systemName)
		metrics.NotificationsTotal.WithLabelValues(level.String(), metrics.OutcomeLogged).Inc()
		return apperrors.NewNotificationError(notifierType, apperrors.ErrNoWebhook)
	}

	payload := BuildMessage(level, n, systemName, s.now(), colorBar)

	start := time.Now()
	_, err := breaker.Execute(func() (interface{}, error) {
		return nil, sendPayload(ctx, client, webhookURL, payload)
	})
	metrics.DeliveryDuration.Observe(time.Since(start).Seconds())

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		// Keep the message somewhere while the webhook is being skipped.
		s.logNotification(level, n, systemName)
		metrics.NotificationsTotal.WithLabelValues(level.String(), metrics.OutcomeFailed).Inc()
		return apperrors.NewNotificationError(notifierType,
			fmt.Errorf("%w: %w", apperrors.ErrDeliveryFailed, apperrors.ErrCircuitBreakerOpen))
	}
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues(level.String(), metrics.OutcomeFailed).Inc()
		return err
	}

	metrics.NotificationsTotal.WithLabelValues(level.String(), metrics.OutcomeDelivered).Inc()
	logger.Debug().Str("level", level.String()).Str("title", n.Title).Msg("Slack notification sent successfully")
	return nil
}

// sendPayload sends a payload to the Slack webhook
func sendPayload(ctx context.Context, client *http.Client, webhookURL string, payload Message) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return apperrors.NewNotificationError(notifierType,
			fmt.Errorf("%w: failed to marshal payload: %w", apperrors.ErrDeliveryFailed, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return apperrors.NewNotificationError(notifierType,
			fmt.Errorf("%w: failed to create request: %w", apperrors.ErrDeliveryFailed, err))
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return apperrors.NewNotificationError(notifierType,
			fmt.Errorf("%w: failed to send request: %w", apperrors.ErrDeliveryFailed, err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apperrors.NewNotificationStatusError(notifierType, resp.StatusCode)
	}

	return nil
}

// logNotification writes the notification to the notification log at the
// level's log level.
func (s *Notifier) logNotification(level Level, n Notification, systemName string) {
	l := s.notificationLog()
	l.WithLevel(level.LogLevel()).
		Str("system", systemName).
		Str("notification_level", level.String()).
		Msg(FormatForLog(level, n))
}

func (s *Notifier) notificationLog() *zerolog.Logger {
	if s.notifLog != nil {
		return s.notifLog
	}
	return logger.Get()
}
