// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package app

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/soothill/slack-notifier/pkg/logger"
	"golang.org/x/time/rate"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 5 * time.Second
)

// progressResponse is the body served on /progress.
type progressResponse struct {
	Processed    int     `json:"processed"`
	Total        int     `json:"total"`
	Errors       int     `json:"errors"`
	Percent      float64 `json:"percent"`
	LastNotified int     `json:"last_notified"`
	Elapsed      string  `json:"elapsed"`
}

// Handler returns the metrics, health and progress endpoints.
func (a *App) Handler() http.Handler {
	healthLimiter := rate.NewLimiter(10, 20)
	progressLimiter := rate.NewLimiter(10, 20)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", rateLimitMiddleware(healthLimiter, healthCheckHandler))
	mux.HandleFunc("/progress", rateLimitMiddleware(progressLimiter, a.progressHandler))
	return mux
}

// StartMetricsServer serves Handler on addr until Close is called. The
// listener is bound before returning so bind errors reach the caller.
func (a *App) StartMetricsServer(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	a.server = &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           a.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Info().Str("addr", a.server.Addr).Msg("Starting metrics and health check server")
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	return nil
}

// MetricsAddr returns the address the metrics server listens on, or "" when
// it is not running.
func (a *App) MetricsAddr() string {
	if a.server == nil {
		return ""
	}
	return a.server.Addr
}

func (a *App) stopMetricsServer() {
	if a.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server stopped")
	}
}

func (a *App) progressHandler(w http.ResponseWriter, _ *http.Request) {
	p, ok := a.Progress()
	if !ok {
		http.Error(w, "no progress tracked", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(progressResponse{
		Processed:    p.Processed,
		Total:        p.Total,
		Errors:       p.Errors,
		Percent:      p.Percent(),
		LastNotified: p.LastNotified,
		Elapsed:      p.Elapsed.Round(time.Second).String(),
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to write progress response")
	}
}

// rateLimitMiddleware wraps an HTTP handler with rate limiting
func rateLimitMiddleware(limiter *rate.Limiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			logger.Warn().
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Msg("Rate limit exceeded")
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// healthCheckHandler handles health check requests
func healthCheckHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, writeErr := w.Write([]byte("OK")); writeErr != nil {
		logger.Error().Err(writeErr).Msg("Failed to write health check response")
	}
}
