// --- File: notifylight/config/config.go ---
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultSettleDelay = time.Second
	DefaultHTTPTimeout = 10 * time.Second
)

// ErrorKind classifies a ConfigError.
type ErrorKind string

const (
	KindMissingField ErrorKind = "missing_field"
	KindInvalidURL   ErrorKind = "invalid_url"
	KindInvalidValue ErrorKind = "invalid_value"
)

// ConfigError reports a configuration that cannot produce a working SDK.
type ConfigError struct {
	Kind  ErrorKind
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config %s: %s: %v", e.Kind, e.Field, e.Err)
	}
	return fmt.Sprintf("config %s: %s", e.Kind, e.Field)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Config defines the *single*, authoritative SDK configuration.
type Config struct {
	ServerURL string
	APIKey    string
	UserID    string

	// AutoCheckInterval enables auto-check on Start when positive.
	AutoCheckInterval time.Duration
	Debug             bool

	// SettleDelay is the pause between two presentations. Zero selects
	// DefaultSettleDelay; a negative value disables the pause.
	SettleDelay time.Duration
	HTTPTimeout time.Duration
}

// Validate checks the required fields and fills defaults.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return &ConfigError{Kind: KindMissingField, Field: "server_url"}
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return &ConfigError{Kind: KindInvalidURL, Field: "server_url", Err: err}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ConfigError{Kind: KindInvalidURL, Field: "server_url", Err: fmt.Errorf("%q is not an http(s) url", c.ServerURL)}
	}
	if c.APIKey == "" {
		return &ConfigError{Kind: KindMissingField, Field: "api_key"}
	}
	if c.UserID == "" {
		return &ConfigError{Kind: KindMissingField, Field: "user_id"}
	}
	if c.AutoCheckInterval < 0 {
		return &ConfigError{Kind: KindInvalidValue, Field: "auto_check_interval", Err: fmt.Errorf("must not be negative, got %s", c.AutoCheckInterval)}
	}

	if c.SettleDelay == 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
	return nil
}

// UpdateConfigWithEnvOverrides applies NOTIFYLIGHT_* environment variables
// and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	if val := os.Getenv("NOTIFYLIGHT_SERVER_URL"); val != "" {
		logger.Debug("Overriding config value", "key", "NOTIFYLIGHT_SERVER_URL", "source", "env")
		cfg.ServerURL = val
	}
	if val := os.Getenv("NOTIFYLIGHT_API_KEY"); val != "" {
		logger.Debug("Overriding config value", "key", "NOTIFYLIGHT_API_KEY", "source", "env")
		cfg.APIKey = val
	}
	if val := os.Getenv("NOTIFYLIGHT_USER_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "NOTIFYLIGHT_USER_ID", "source", "env")
		cfg.UserID = val
	}
	if val := os.Getenv("NOTIFYLIGHT_AUTO_CHECK_INTERVAL"); val != "" {
		interval, err := ParseInterval(val)
		if err != nil {
			return nil, &ConfigError{Kind: KindInvalidValue, Field: "auto_check_interval", Err: err}
		}
		logger.Debug("Overriding config value", "key", "NOTIFYLIGHT_AUTO_CHECK_INTERVAL", "source", "env")
		cfg.AutoCheckInterval = interval
	}
	if val := os.Getenv("NOTIFYLIGHT_DEBUG"); val != "" {
		debug, _ := strconv.ParseBool(val)
		cfg.Debug = debug
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}

// ParseInterval accepts a Go duration ("30s", "5m") or a plain number of
// seconds.
func ParseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", s, err)
	}
	return d, nil
}
