// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package app wires configuration, logging and the Slack notifier together
// for the slack-notify command.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/soothill/slack-notifier/config"
	apperrors "github.com/soothill/slack-notifier/pkg/errors"
	"github.com/soothill/slack-notifier/pkg/logger"
	"github.com/soothill/slack-notifier/pkg/slacknotifier"
)

// Lines starting with one of these prefixes count as failed items when
// tracking progress from a stream.
var failurePrefixes = []string{"error", "fail"}

// App represents the main application
type App struct {
	mu       sync.Mutex
	cfg      *config.Config
	notifier *slacknotifier.Notifier
	logFile  io.Closer
	tracker  *slacknotifier.Tracker
	server   *http.Server

	configWatcher *config.Watcher
	wg            sync.WaitGroup
	cancel        context.CancelFunc
}

// New creates a new application instance
func New(cfg *config.Config, opts ...slacknotifier.Option) (*App, error) {
	a := &App{cfg: cfg}

	if cfg.Logging.NotificationLog != "" {
		notifLog, closer, err := logger.NewFileLogger(cfg.Logging.NotificationLog)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize notification log: %w", err)
		}
		a.logFile = closer
		opts = append([]slacknotifier.Option{slacknotifier.WithNotificationLogger(notifLog)}, opts...)
	}

	a.notifier = slacknotifier.New(cfg.NotifierConfig(), opts...)
	if a.notifier.IsEnabled() {
		logger.Info().Str("system", cfg.Slack.SystemName).Msg("Slack notifications enabled")
	} else {
		logger.Info().Str("system", cfg.Slack.SystemName).Msg("Slack notifications disabled (no webhook URL configured), logging locally")
	}

	return a, nil
}

// Notifier returns the underlying notifier
func (a *App) Notifier() *slacknotifier.Notifier {
	return a.notifier
}

// Notify sends one notification. Falling back to the local log is not an
// error; a failed webhook delivery is.
func (a *App) Notify(ctx context.Context, level slacknotifier.Level, n slacknotifier.Notification) error {
	err := a.notifier.Deliver(ctx, level, n)
	if err == nil || errors.Is(err, apperrors.ErrNoWebhook) {
		return nil
	}
	logger.Error().Err(err).Str("level", level.String()).Msg("Failed to send notification")
	return err
}

// TrackLines counts each non-empty line read from r as one processed item
// and sends progress notifications as thresholds are crossed. Lines starting
// with "error" or "fail" (any case) count as failed items. When r is
// exhausted a SUCCESS summary is sent, or a WARNING one if any item failed.
func (a *App) TrackLines(ctx context.Context, r io.Reader, total int) (slacknotifier.Progress, error) {
	a.mu.Lock()
	thresholds := a.cfg.Progress.Thresholds
	itemName := a.cfg.Progress.ItemName
	a.mu.Unlock()

	tracker := slacknotifier.NewTracker(a.notifier, total, thresholds, slacknotifier.WithItemName(itemName))
	a.mu.Lock()
	a.tracker = tracker
	a.mu.Unlock()

	// bufio.Reader rather than Scanner: lines have no length limit.
	br := bufio.NewReader(r)
	for {
		raw, readErr := br.ReadString('\n')
		if raw != "" {
			if err := ctx.Err(); err != nil {
				return tracker.Snapshot(), err
			}
			if line := strings.TrimSpace(raw); line != "" {
				tracker.Record(ctx, !isFailureLine(line))
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return tracker.Snapshot(), fmt.Errorf("failed to read input: %w", readErr)
		}
	}

	p := tracker.Snapshot()
	level := slacknotifier.LevelSuccess
	if p.Errors > 0 {
		level = slacknotifier.LevelWarning
	}
	a.notifier.Send(ctx, level, slacknotifier.Notification{
		Title:   "Processing complete",
		Message: fmt.Sprintf("Processed %d of %d %s", p.Processed, p.Total, itemName),
		Fields: []slacknotifier.Field{
			{Label: "Errors", Value: p.Errors},
			{Label: "Elapsed Time", Value: p.Elapsed.Round(time.Second).String()},
		},
	})
	return p, nil
}

func isFailureLine(line string) bool {
	lower := strings.ToLower(line)
	for _, prefix := range failurePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// WatchConfig reloads the configuration from path on SIGHUP and applies it
// until Close is called.
func (a *App) WatchConfig(ctx context.Context, path string) {
	ctx, a.cancel = context.WithCancel(ctx)

	configChan := make(chan *config.Config)
	a.configWatcher = config.NewWatcher(path, configChan)
	a.configWatcher.Start(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-ctx.Done():
				logger.Debug().Msg("Config watcher goroutine shutting down")
				return
			case newCfg := <-configChan:
				a.UpdateConfig(newCfg)
			}
		}
	}()
}

// ReloadConfig asks the config watcher to reload as if SIGHUP had been
// received. It fails if WatchConfig has not been called.
func (a *App) ReloadConfig() error {
	if a.configWatcher == nil {
		return errors.New("config watcher not started")
	}
	a.configWatcher.Reload()
	return nil
}

// UpdateConfig updates the application's configuration.
func (a *App) UpdateConfig(newCfg *config.Config) {
	a.mu.Lock()
	a.cfg = newCfg
	a.mu.Unlock()

	a.notifier.Reconfigure(newCfg.NotifierConfig())
	logger.Info().
		Str("system", newCfg.Slack.SystemName).
		Bool("slack_enabled", a.notifier.IsEnabled()).
		Msg("Application configuration updated")
}

// Progress returns the state of the tracker started by the most recent
// TrackLines call. ok is false when nothing has been tracked yet.
func (a *App) Progress() (p slacknotifier.Progress, ok bool) {
	a.mu.Lock()
	tracker := a.tracker
	a.mu.Unlock()
	if tracker == nil {
		return slacknotifier.Progress{}, false
	}
	return tracker.Snapshot(), true
}

// DumpApplicationState dumps current application state to logs
func (a *App) DumpApplicationState() {
	logger.Info().Msg("=== APPLICATION STATE DUMP (SIGUSR1) ===")

	logger.Info().
		Str("system", a.notifier.SystemName()).
		Bool("slack_enabled", a.notifier.IsEnabled()).
		Msg("Notifier state")

	if p, ok := a.Progress(); ok {
		logger.Info().
			Int("processed", p.Processed).
			Int("total", p.Total).
			Int("errors", p.Errors).
			Int("last_notified", p.LastNotified).
			Float64("percent", p.Percent()).
			Dur("elapsed", p.Elapsed).
			Msg("Progress state")
	} else {
		logger.Info().Msg("No progress tracked yet")
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	logger.Info().
		Uint64("alloc_mb", m.Alloc/1024/1024).
		Uint64("total_alloc_mb", m.TotalAlloc/1024/1024).
		Uint32("num_gc", m.NumGC).
		Int("num_goroutines", runtime.NumGoroutine()).
		Msg("Runtime statistics")

	logger.Info().Msg("=== END STATE DUMP ===")
}

// DumpGoroutineStackTraces dumps all goroutine stack traces to logs
func DumpGoroutineStackTraces() {
	logger.Info().Msg("=== GOROUTINE STACK TRACES (SIGUSR2) ===")
	logger.Info().Int("num_goroutines", runtime.NumGoroutine()).Msg("Current goroutine count")

	buf := make([]byte, 1024*1024)
	stackLen := runtime.Stack(buf, true)
	logger.Info().Str("stack_traces", string(buf[:stackLen])).Msg("Full stack trace")

	logger.Info().Msg("=== END STACK TRACES ===")
}

// Close stops the metrics server and config watcher and closes the
// notification log.
func (a *App) Close() error {
	a.stopMetricsServer()
	if a.configWatcher != nil {
		a.configWatcher.Stop()
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	if a.logFile != nil {
		return a.logFile.Close()
	}
	return nil
}
