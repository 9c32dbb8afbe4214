// --- File: notifylight/config/yaml_config.go ---
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// YamlConfig is the structure that mirrors the raw config.yaml file.
// Durations are Go duration strings or plain seconds.
type YamlConfig struct {
	ServerURL         string `yaml:"server_url"`
	APIKey            string `yaml:"api_key"`
	UserID            string `yaml:"user_id"`
	AutoCheckInterval string `yaml:"auto_check_interval"`
	Debug             bool   `yaml:"debug"`
	SettleDelay       string `yaml:"settle_delay"`
	HTTPTimeout       string `yaml:"http_timeout"`
}

// ReadYamlFile loads a YamlConfig from disk.
func ReadYamlFile(path string) (*YamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var yamlCfg YamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &yamlCfg, nil
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
// Validation happens later, in UpdateConfigWithEnvOverrides.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	cfg := &Config{
		ServerURL: baseCfg.ServerURL,
		APIKey:    baseCfg.APIKey,
		UserID:    baseCfg.UserID,
		Debug:     baseCfg.Debug,
	}

	durations := []struct {
		field string
		raw   string
		dst   *time.Duration
	}{
		{"auto_check_interval", baseCfg.AutoCheckInterval, &cfg.AutoCheckInterval},
		{"settle_delay", baseCfg.SettleDelay, &cfg.SettleDelay},
		{"http_timeout", baseCfg.HTTPTimeout, &cfg.HTTPTimeout},
	}
	for _, d := range durations {
		v, err := ParseInterval(d.raw)
		if err != nil {
			return nil, &ConfigError{Kind: KindInvalidValue, Field: d.field, Err: err}
		}
		*d.dst = v
	}

	logger.Debug("YAML config mapping complete",
		"server_url", cfg.ServerURL,
		"user_id", cfg.UserID,
		"auto_check_interval", cfg.AutoCheckInterval,
	)
	return cfg, nil
}
