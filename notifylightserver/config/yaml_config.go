package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlRedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
	TTL      string `yaml:"ttl"`
}

type YamlFCMConfig struct {
	Enabled         bool   `yaml:"enabled"`
	CredentialsFile string `yaml:"credentials_file"`
}

type YamlAPNsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	KeyID    string `yaml:"key_id"`
	TeamID   string `yaml:"team_id"`
	BundleID string `yaml:"bundle_id"`
	KeyFile  string `yaml:"key_file"`
	Sandbox  bool   `yaml:"sandbox"`
}

type YamlRateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	ProjectID              string              `yaml:"project_id"`
	ListenAddr             string              `yaml:"listen_addr"`
	Version                string              `yaml:"version"`
	APIKeys                []string            `yaml:"api_keys"`
	Storage                string              `yaml:"storage"`
	TopicID                string              `yaml:"topic_id"`
	SubscriptionID         string              `yaml:"subscription_id"`
	SubscriptionDLQTopicID string              `yaml:"subscription_dlq_topic_id"`
	NumPipelineWorkers     int                 `yaml:"num_pipeline_workers"`
	CorsConfig             YamlCorsConfig      `yaml:"cors"`
	RedisConfig            YamlRedisConfig     `yaml:"redis"`
	FCMConfig              YamlFCMConfig       `yaml:"fcm"`
	APNsConfig             YamlAPNsConfig      `yaml:"apns"`
	RateLimitConfig        YamlRateLimitConfig `yaml:"rate_limit"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	var ttl time.Duration
	if baseCfg.RedisConfig.TTL != "" {
		d, err := time.ParseDuration(baseCfg.RedisConfig.TTL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis.ttl %q: %w", baseCfg.RedisConfig.TTL, err)
		}
		ttl = d
	}

	cfg := &Config{
		ProjectID:      baseCfg.ProjectID,
		ListenAddr:     baseCfg.ListenAddr,
		Version:        baseCfg.Version,
		APIKeys:        baseCfg.APIKeys,
		Storage:        baseCfg.Storage,
		TopicID:        baseCfg.TopicID,
		SubscriptionID: baseCfg.SubscriptionID,
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Redis: RedisConfig{
			Addr:     baseCfg.RedisConfig.Addr,
			Password: baseCfg.RedisConfig.Password,
			DB:       baseCfg.RedisConfig.DB,
			Enabled:  baseCfg.RedisConfig.Enabled,
			TTL:      ttl,
		},
		FCM: FCMConfig{
			Enabled:         baseCfg.FCMConfig.Enabled,
			CredentialsFile: baseCfg.FCMConfig.CredentialsFile,
		},
		APNs: APNsConfig{
			Enabled:  baseCfg.APNsConfig.Enabled,
			KeyID:    baseCfg.APNsConfig.KeyID,
			TeamID:   baseCfg.APNsConfig.TeamID,
			BundleID: baseCfg.APNsConfig.BundleID,
			KeyFile:  baseCfg.APNsConfig.KeyFile,
			Sandbox:  baseCfg.APNsConfig.Sandbox,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: baseCfg.RateLimitConfig.RequestsPerSecond,
			Burst:             baseCfg.RateLimitConfig.Burst,
		},
		SubscriptionDLQTopicID: baseCfg.SubscriptionDLQTopicID,
		NumPipelineWorkers:     baseCfg.NumPipelineWorkers,
	}

	if cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"storage", cfg.Storage,
		"subscription_id", cfg.SubscriptionID,
	)

	return cfg, nil
}
