// Package config loads the NotifyLight server configuration: an embedded
// YAML base, then environment overrides, then validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

// Storage backends.
const (
	StorageMemory    = "memory"
	StorageFirestore = "firestore"
)

// DefaultCacheTTL applies when Redis is enabled without a TTL.
const DefaultCacheTTL = 5 * time.Minute

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type FCMConfig struct {
	Enabled bool
	// CredentialsFile is a service-account JSON; empty uses ambient
	// application default credentials.
	CredentialsFile string
}

type APNsConfig struct {
	Enabled  bool
	KeyID    string
	TeamID   string
	BundleID string
	KeyFile  string
	Sandbox  bool
}

// RateLimitConfig meters each API key. Zero RequestsPerSecond disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID  string
	ListenAddr string
	Version    string
	APIKeys    []string
	Storage    string

	TopicID                string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int

	CorsConfig middleware.CorsConfig
	Redis      RedisConfig
	FCM        FCMConfig
	APNs       APNsConfig
	RateLimit  RateLimitConfig

	PubsubConsumerConfig *messagepipeline.GooglePubsubConsumerConfig
}

// PubsubEnabled reports whether notify requests are also ingested from a
// Pub/Sub subscription.
func (c *Config) PubsubEnabled() bool {
	return c.SubscriptionID != ""
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	setString := func(key string, dst *string) {
		if val := os.Getenv(key); val != "" {
			logger.Debug("Overriding config value", "key", key, "source", "env")
			*dst = val
		}
	}
	setBool := func(key string, dst *bool) {
		if val := os.Getenv(key); val != "" {
			if b, err := strconv.ParseBool(val); err == nil {
				logger.Debug("Overriding config value", "key", key, "source", "env")
				*dst = b
			}
		}
	}

	setString("PROJECT_ID", &cfg.ProjectID)
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	setString("SERVICE_VERSION", &cfg.Version)
	setString("STORAGE_BACKEND", &cfg.Storage)
	if val := os.Getenv("API_KEYS"); val != "" {
		// Values are secrets; only the count is logged.
		cfg.APIKeys = splitList(val)
		logger.Debug("Overriding config value", "key", "API_KEYS", "source", "env", "count", len(cfg.APIKeys))
	}

	setString("TOPIC_ID", &cfg.TopicID)
	if val := os.Getenv("SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	setString("SUBSCRIPTION_DLQ_TOPIC_ID", &cfg.SubscriptionDLQTopicID)
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			logger.Debug("Overriding config value", "key", "NUM_PIPELINE_WORKERS", "source", "env")
			cfg.NumPipelineWorkers = workers
		}
	}

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	setBool("REDIS_ENABLED", &cfg.Redis.Enabled)

	// Push Overrides
	setBool("FCM_ENABLED", &cfg.FCM.Enabled)
	setString("FCM_CREDENTIALS_FILE", &cfg.FCM.CredentialsFile)
	setBool("APNS_ENABLED", &cfg.APNs.Enabled)
	setString("APNS_KEY_ID", &cfg.APNs.KeyID)
	setString("APNS_TEAM_ID", &cfg.APNs.TeamID)
	setString("APNS_BUNDLE_ID", &cfg.APNs.BundleID)
	setString("APNS_KEY_FILE", &cfg.APNs.KeyFile)
	setBool("APNS_SANDBOX", &cfg.APNs.Sandbox)

	if val := os.Getenv("RATE_LIMIT_RPS"); val != "" {
		if rps, err := strconv.ParseFloat(val, 64); err == nil && rps >= 0 {
			logger.Debug("Overriding config value", "key", "RATE_LIMIT_RPS", "source", "env")
			cfg.RateLimit.RequestsPerSecond = rps
		}
	}
	if val := os.Getenv("RATE_LIMIT_BURST"); val != "" {
		if burst, err := strconv.Atoi(val); err == nil && burst > 0 {
			logger.Debug("Overriding config value", "key", "RATE_LIMIT_BURST", "source", "env")
			cfg.RateLimit.Burst = burst
		}
	}

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		cfg.CorsConfig.AllowedOrigins = splitList(corsOrigins)
	}

	// Final Validation
	if len(cfg.APIKeys) == 0 {
		return nil, fmt.Errorf("at least one api key is required (set via YAML api_keys or API_KEYS env var)")
	}
	if cfg.Storage == "" {
		cfg.Storage = StorageMemory
	}
	if cfg.Storage != StorageMemory && cfg.Storage != StorageFirestore {
		return nil, fmt.Errorf("unknown storage backend %q (want %s or %s)", cfg.Storage, StorageMemory, StorageFirestore)
	}
	if cfg.ProjectID == "" && (cfg.Storage == StorageFirestore || cfg.PubsubEnabled()) {
		return nil, fmt.Errorf("project_id is required for firestore storage or pubsub ingestion (set via YAML or PROJECT_ID env var)")
	}
	if cfg.PubsubEnabled() && cfg.TopicID == "" {
		return nil, fmt.Errorf("topic_id is required when subscription_id is set")
	}
	if cfg.APNs.Enabled {
		if cfg.APNs.KeyID == "" || cfg.APNs.TeamID == "" || cfg.APNs.BundleID == "" || cfg.APNs.KeyFile == "" {
			return nil, fmt.Errorf("apns requires key_id, team_id, bundle_id and key_file")
		}
	}
	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis is enabled but no address is set (REDIS_ADDR)")
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = DefaultCacheTTL
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}
	if cfg.RateLimit.RequestsPerSecond > 0 && cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = int(cfg.RateLimit.RequestsPerSecond) + 1
	}

	if cfg.PubsubConsumerConfig == nil && cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
