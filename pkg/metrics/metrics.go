// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package metrics provides Prometheus metrics for the Slack notifier.
//
// Collectors register with the default registry, so a host process that
// already serves promhttp.Handler() exposes them without further wiring.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values for NotificationsTotal.
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
	OutcomeLogged    = "logged"
)

var (
	// NotificationsTotal counts notifications by level and outcome
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slack_notifier_notifications_total",
		Help: "Total number of notifications handled, by level and outcome",
	}, []string{"level", "outcome"})

	// DeliveryDuration tracks how long webhook requests take
	DeliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "slack_notifier_delivery_duration_seconds",
		Help:    "Duration of Slack webhook requests in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// ProgressNotificationsTotal counts progress thresholds that fired
	ProgressNotificationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slack_notifier_progress_notifications_total",
		Help: "Total number of progress notifications triggered by threshold crossings",
	})

	// CircuitBreakerState exposes the webhook circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slack_notifier_circuit_breaker_state",
		Help: "State of the webhook circuit breaker (0=closed, 1=half-open, 2=open)",
	})
)
