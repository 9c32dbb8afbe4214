package config_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-notifylight/notifylightserver/config"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestUpdateConfigWithEnvOverrides(t *testing.T) {
	logger := newTestLogger()

	baseConfig := func() *config.Config {
		return &config.Config{
			ProjectID:          "base-project",
			ListenAddr:         ":8080",
			APIKeys:            []string{"base-key"},
			NumPipelineWorkers: 2,
		}
	}

	t.Run("Success - All overrides applied", func(t *testing.T) {
		cfg := baseConfig()

		t.Setenv("PROJECT_ID", "env-project")
		t.Setenv("PORT", "9090")
		t.Setenv("API_KEYS", "k1, k2,,")
		t.Setenv("STORAGE_BACKEND", "firestore")
		t.Setenv("TOPIC_ID", "env-topic")
		t.Setenv("SUBSCRIPTION_ID", "env-sub")
		t.Setenv("REDIS_ADDR", "localhost:6379")
		t.Setenv("APNS_ENABLED", "true")
		t.Setenv("APNS_KEY_ID", "KEY")
		t.Setenv("APNS_TEAM_ID", "TEAM")
		t.Setenv("APNS_BUNDLE_ID", "com.example.app")
		t.Setenv("APNS_KEY_FILE", "/secrets/key.p8")
		t.Setenv("RATE_LIMIT_RPS", "5")
		t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.com, http://b.com")

		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)

		assert.Equal(t, "env-project", finalCfg.ProjectID)
		assert.Equal(t, ":9090", finalCfg.ListenAddr)
		assert.Equal(t, []string{"k1", "k2"}, finalCfg.APIKeys)
		assert.Equal(t, config.StorageFirestore, finalCfg.Storage)
		assert.Equal(t, "env-sub", finalCfg.SubscriptionID)
		assert.True(t, finalCfg.PubsubEnabled())
		require.NotNil(t, finalCfg.PubsubConsumerConfig)
		assert.True(t, finalCfg.Redis.Enabled)
		assert.Equal(t, config.DefaultCacheTTL, finalCfg.Redis.TTL)
		assert.True(t, finalCfg.APNs.Enabled)
		assert.Equal(t, "com.example.app", finalCfg.APNs.BundleID)
		assert.Equal(t, 5.0, finalCfg.RateLimit.RequestsPerSecond)
		assert.Equal(t, 6, finalCfg.RateLimit.Burst)
		assert.Equal(t, []string{"http://a.com", "http://b.com"}, finalCfg.CorsConfig.AllowedOrigins)
	})

	t.Run("Success - Defaults applied", func(t *testing.T) {
		cfg := &config.Config{APIKeys: []string{"k"}}
		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)

		assert.Equal(t, config.StorageMemory, finalCfg.Storage)
		assert.Equal(t, ":8080", finalCfg.ListenAddr)
		assert.Equal(t, 1, finalCfg.NumPipelineWorkers)
		assert.False(t, finalCfg.PubsubEnabled())
		assert.Nil(t, finalCfg.PubsubConsumerConfig)
	})

	validationCases := []struct {
		name string
		cfg  *config.Config
	}{
		{"Missing API keys", &config.Config{}},
		{"Unknown storage", &config.Config{APIKeys: []string{"k"}, Storage: "postgres"}},
		{"Firestore without project", &config.Config{APIKeys: []string{"k"}, Storage: config.StorageFirestore}},
		{"Subscription without topic", &config.Config{APIKeys: []string{"k"}, ProjectID: "p", SubscriptionID: "s"}},
		{"Incomplete APNs", &config.Config{APIKeys: []string{"k"}, APNs: config.APNsConfig{Enabled: true, KeyID: "K"}}},
		{"Redis without address", &config.Config{APIKeys: []string{"k"}, Redis: config.RedisConfig{Enabled: true}}},
	}
	for _, tc := range validationCases {
		t.Run("Validation Failure - "+tc.name, func(t *testing.T) {
			_, err := config.UpdateConfigWithEnvOverrides(tc.cfg, logger)
			assert.Error(t, err)
		})
	}

	t.Run("Invalid numeric env is ignored", func(t *testing.T) {
		t.Setenv("NUM_PIPELINE_WORKERS", "many")
		t.Setenv("RATE_LIMIT_RPS", "-3")
		cfg := baseConfig()

		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)
		assert.Equal(t, 2, finalCfg.NumPipelineWorkers)
		assert.Zero(t, finalCfg.RateLimit.RequestsPerSecond)
	})

	t.Run("Explicit TTL kept", func(t *testing.T) {
		cfg := baseConfig()
		cfg.Redis = config.RedisConfig{Enabled: true, Addr: "r:6379", TTL: time.Hour}

		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)
		assert.Equal(t, time.Hour, finalCfg.Redis.TTL)
	})
}
