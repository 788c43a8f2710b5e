// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Command slack-notify sends a Slack notification, or reports progress of a
// batch job read from stdin, using a block-kit webhook message. Without a
// webhook URL the notification is written to the local log instead.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/soothill/slack-notifier/app"
	"github.com/soothill/slack-notifier/config"
	"github.com/soothill/slack-notifier/pkg/logger"
	"github.com/soothill/slack-notifier/pkg/slacknotifier"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// fieldList collects repeated key=value flags in the order given.
type fieldList []slacknotifier.Field

func (f *fieldList) String() string {
	if f == nil {
		return ""
	}
	parts := make([]string, 0, len(*f))
	for _, field := range *f {
		parts = append(parts, fmt.Sprintf("%s=%v", field.Label, field.Value))
	}
	return strings.Join(parts, ",")
}

func (f *fieldList) Set(value string) error {
	label, val, ok := strings.Cut(value, "=")
	label = strings.TrimSpace(label)
	if !ok || label == "" {
		return fmt.Errorf("expected key=value, got %q", value)
	}
	*f = append(*f, slacknotifier.Field{Label: label, Value: val})
	return nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin))
}

func run(args []string, stdin io.Reader) int {
	var fields, codeBlocks fieldList

	fs := flag.NewFlagSet("slack-notify", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file (optional, environment and defaults are used otherwise)")
	envFile := fs.String("env-file", ".env", "Path to a .env file loaded before the configuration")
	levelName := fs.String("level", "info", "Notification level: success, warning, error, info or debug")
	title := fs.String("title", "", "Notification title")
	message := fs.String("message", "", "Notification message")
	fs.Var(&fields, "field", "Field as key=value (repeatable)")
	fs.Var(&codeBlocks, "code", "Code block as key=value (repeatable)")
	validateConfig := fs.Bool("validate-config", false, "Validate configuration file and exit")
	progressTotal := fs.Int("progress-total", -1, "Track progress of N items read line by line from stdin")
	metricsAddr := fs.String("metrics-addr", "", "Address for the Prometheus metrics endpoint in progress mode (disabled when empty)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	if err := config.LoadEnvFile(*envFile); err != nil {
		logger.Initialize("error")
		logger.Error().Err(err).Msg("Failed to load env file")
		return exitFailure
	}

	if *validateConfig {
		return performConfigValidation(*configPath)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Initialize("error")
		logger.Error().Err(err).Msg("Failed to load configuration")
		return exitFailure
	}

	logger.Initialize(cfg.Logging.Level)

	level, err := slacknotifier.ParseLevel(*levelName)
	if err != nil {
		logger.Error().Err(err).Msg("Invalid notification level")
		return exitUsage
	}

	application, err := app.New(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to create application")
		return exitFailure
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close application")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *progressTotal >= 0 {
		return runProgress(ctx, application, *configPath, *metricsAddr, stdin, *progressTotal)
	}

	if *message == "" {
		logger.Error().Msg("-message is required")
		return exitUsage
	}

	n := slacknotifier.Notification{
		Title:      *title,
		Message:    *message,
		Fields:     fields,
		CodeBlocks: codeBlocks,
	}
	if err := application.Notify(ctx, level, n); err != nil {
		return exitFailure
	}
	return exitOK
}

// runProgress tracks stdin lines until EOF or a shutdown signal. SIGHUP
// reloads the configuration file so the webhook can be rotated mid-run.
func runProgress(ctx context.Context, application *app.App, configPath, metricsAddr string, stdin io.Reader, total int) int {
	if configPath != "" {
		application.WatchConfig(ctx, configPath)
	}
	if metricsAddr != "" {
		if err := application.StartMetricsServer(metricsAddr); err != nil {
			logger.Error().Err(err).Str("addr", metricsAddr).Msg("Failed to start metrics server")
			return exitFailure
		}
	}
	setupDebugSignalHandlers(ctx, application)

	logger.Info().Int("total", total).Msg("Tracking progress from stdin")
	p, err := application.TrackLines(ctx, stdin, total)
	if err != nil {
		logger.Error().Err(err).Int("processed", p.Processed).Msg("Progress tracking stopped")
		return exitFailure
	}

	logger.Info().
		Int("processed", p.Processed).
		Int("errors", p.Errors).
		Dur("elapsed", p.Elapsed).
		Msg("Progress tracking complete")
	return exitOK
}

// performConfigValidation validates the configuration file and returns exit code
func performConfigValidation(configPath string) int {
	logger.Initialize("info")
	logger.Info().Str("path", configPath).Msg("Validating configuration")

	if configPath != "" {
		if err := config.ValidateWithSchema(configPath); err != nil {
			logger.Error().Err(err).Msg("Configuration schema validation failed")
			fmt.Fprintf(os.Stderr, "\n❌ Configuration validation FAILED\n")
			return exitFailure
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error().Err(err).Msg("Configuration validation failed")
		fmt.Fprintf(os.Stderr, "\n❌ Configuration validation FAILED\n")
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		return exitFailure
	}

	fmt.Println("\n✅ Configuration validation PASSED")
	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  System Name: %s\n", cfg.Slack.SystemName)
	fmt.Printf("  Timeout: %s\n", cfg.Slack.Timeout)
	fmt.Printf("  Color Bar: %t\n", cfg.Slack.ColorBar)
	fmt.Printf("  Thresholds: %v\n", cfg.Progress.Thresholds)
	fmt.Printf("  Item Name: %s\n", cfg.Progress.ItemName)
	fmt.Printf("  Log Level: %s\n", cfg.Logging.Level)
	fmt.Printf("  Notification Log: %s\n", cfg.Logging.NotificationLog)

	if cfg.Slack.WebhookURL != "" {
		fmt.Println("  Slack Notifications: Enabled")
	} else {
		fmt.Println("  Slack Notifications: Disabled (logging only)")
	}

	fmt.Println("\nAll validation checks passed. Configuration is ready for use.")
	return exitOK
}
