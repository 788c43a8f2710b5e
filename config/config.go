// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package config provides configuration management for the Slack notifier.
//
// Settings come from an optional YAML file, then environment variables
// (optionally seeded from a .env file), then defaults. This is the only
// place the environment is read; the slacknotifier package receives an
// explicit Config.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	apperrors "github.com/soothill/slack-notifier/pkg/errors"
	"github.com/soothill/slack-notifier/pkg/slacknotifier"
	"github.com/soothill/slack-notifier/pkg/util"
)

// Environment variables read by Load.
const (
	EnvWebhookURL      = "SLACK_WEBHOOK_URL"
	EnvSystemName      = "SYSTEM_NAME"
	EnvThresholds      = "NOTIFICATION_PERCENTAGES"
	EnvLogLevel        = "LOG_LEVEL"
	EnvNotificationLog = "NOTIFICATION_LOG_PATH"
)

const (
	defaultSystemName      = "unknown-host"
	defaultNotificationLog = "notifications.log"
)

// Config represents the application configuration
type Config struct {
	Slack    SlackConfig    `yaml:"slack"`
	Progress ProgressConfig `yaml:"progress"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SlackConfig holds webhook delivery settings
type SlackConfig struct {
	WebhookURL string        `yaml:"webhook_url" validate:"omitempty,url"`
	SystemName string        `yaml:"system_name" validate:"required,max=100"`
	Timeout    time.Duration `yaml:"timeout" validate:"gte=1s,lte=2m"`
	ColorBar   bool          `yaml:"color_bar"`
}

// ProgressConfig holds progress notification settings
type ProgressConfig struct {
	Thresholds []int  `yaml:"thresholds" validate:"required,min=1,dive,gt=0,lte=100"`
	ItemName   string `yaml:"item_name" validate:"required"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level           string `yaml:"level" validate:"oneof=debug info warn warning error fatal panic"`
	NotificationLog string `yaml:"notification_log"`
}

// LoadEnvFile loads variables from a .env file into the process environment.
// A missing file is not an error. Variables already set are not overridden.
func LoadEnvFile(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from a YAML file and applies environment variable
// overrides. An empty path skips the file and builds the configuration from
// the environment and defaults alone.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := util.ReadFileSafely(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		err = yaml.Unmarshal(data, &cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides and defaults
	if err := cfg.applyEnvironmentOverrides(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvironmentOverrides applies environment variable overrides to the configuration
func (c *Config) applyEnvironmentOverrides() error {
	if webhook := os.Getenv(EnvWebhookURL); webhook != "" {
		c.Slack.WebhookURL = webhook
	}
	if name := os.Getenv(EnvSystemName); name != "" {
		c.Slack.SystemName = name
	}
	if pcts := os.Getenv(EnvThresholds); pcts != "" {
		thresholds, err := ParseThresholds(pcts)
		if err != nil {
			return apperrors.NewConfigError(EnvThresholds, pcts, err)
		}
		c.Progress.Thresholds = thresholds
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.Logging.Level = level
	}
	if path := os.Getenv(EnvNotificationLog); path != "" {
		c.Logging.NotificationLog = path
	}
	return nil
}

// setDefaults sets default values for configuration fields if not provided
func (c *Config) setDefaults() {
	if c.Slack.SystemName == "" {
		c.Slack.SystemName = hostname()
	}
	if c.Slack.Timeout == 0 {
		c.Slack.Timeout = slacknotifier.DefaultTimeout
	}
	if len(c.Progress.Thresholds) == 0 {
		c.Progress.Thresholds = slacknotifier.DefaultThresholds()
	} else {
		c.Progress.Thresholds = slacknotifier.NormalizeThresholds(c.Progress.Thresholds)
	}
	if c.Progress.ItemName == "" {
		c.Progress.ItemName = "files"
	}
	if c.Logging.NotificationLog == "" {
		c.Logging.NotificationLog = defaultNotificationLog
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return defaultSystemName
	}
	return name
}

// ParseThresholds parses a comma-separated list of percentages such as
// "20,50,100". The result is sorted ascending without duplicates.
func ParseThresholds(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid percentage %q: %w", part, err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("percentage %d must be positive", v)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no percentages in %q", s)
	}
	return slacknotifier.NormalizeThresholds(out), nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := newValidator().Struct(c); err != nil {
		return translateValidationError(err)
	}

	if c.Slack.WebhookURL != "" {
		if err := validateWebhookURL(c.Slack.WebhookURL); err != nil {
			return err
		}
	}

	return nil
}

// NotifierConfig converts the loaded settings into a slacknotifier.Config.
func (c *Config) NotifierConfig() slacknotifier.Config {
	return slacknotifier.Config{
		WebhookURL: c.Slack.WebhookURL,
		SystemName: c.Slack.SystemName,
		Timeout:    c.Slack.Timeout,
		ColorBar:   c.Slack.ColorBar,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their YAML names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// translateValidationError turns the first validator failure into a ConfigError
func translateValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperrors.NewConfigError("", "", err)
	}

	fe := verrs[0]
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	value := fmt.Sprint(fe.Value())
	if strings.HasSuffix(field, "webhook_url") {
		value = redact(value)
	}

	reason := fmt.Errorf("%w: failed %q", apperrors.ErrInvalidConfig, fe.Tag())
	if fe.Param() != "" {
		reason = fmt.Errorf("%w: failed %q (%s)", apperrors.ErrInvalidConfig, fe.Tag(), fe.Param())
	}
	return apperrors.NewConfigError(field, value, reason)
}

// validateWebhookURL checks the webhook URL uses HTTPS for non-local hosts
func validateWebhookURL(raw string) error {
	parsedURL, parseErr := url.Parse(raw)
	if parseErr != nil {
		return apperrors.NewConfigError("slack.webhook_url", redact(raw), parseErr)
	}

	switch parsedURL.Scheme {
	case "https":
		return nil
	case "http":
		if isLocalHost(parsedURL.Hostname()) {
			return nil
		}
		return apperrors.NewConfigError("slack.webhook_url", redact(raw),
			fmt.Errorf("%w: must use HTTPS for non-local hosts", apperrors.ErrInvalidConfig))
	default:
		return apperrors.NewConfigError("slack.webhook_url", redact(raw),
			fmt.Errorf("%w: unsupported scheme %q", apperrors.ErrInvalidConfig, parsedURL.Scheme))
	}
}

func isLocalHost(hostname string) bool {
	hostname = strings.ToLower(hostname)
	return hostname == "localhost" ||
		hostname == "127.0.0.1" ||
		hostname == "::1" ||
		strings.HasPrefix(hostname, "192.168.") ||
		strings.HasPrefix(hostname, "10.")
}

// redact keeps the scheme and host of a webhook URL; the path is the secret.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "REDACTED"
	}
	return u.Scheme + "://" + u.Host + "/REDACTED"
}
