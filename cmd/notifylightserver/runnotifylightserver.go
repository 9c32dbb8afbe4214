package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	firebase "firebase.google.com/go/v4"
	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"

	"github.com/tinywideclouds/go-notifylight/internal/platform/apns"
	"github.com/tinywideclouds/go-notifylight/internal/platform/fcm"
	"github.com/tinywideclouds/go-notifylight/internal/storage/cache"
	fsStore "github.com/tinywideclouds/go-notifylight/internal/storage/firestore"
	"github.com/tinywideclouds/go-notifylight/internal/storage/memory"
	"github.com/tinywideclouds/go-notifylight/notifylightserver"
	"github.com/tinywideclouds/go-notifylight/notifylightserver/config"
	"github.com/tinywideclouds/go-notifylight/pkg/dispatch"
	"github.com/tinywideclouds/go-notifylight/pkg/wire"
)

//go:embed local.yaml
var configFile []byte

func main() {
	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "notifylight-server")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		logger.Error("Config mapping failed", "err", err)
		os.Exit(1)
	}
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Service exited with error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	deps := notifylightserver.Dependencies{Dispatchers: make(map[string]dispatch.Dispatcher)}

	// --- Stores ---
	switch cfg.Storage {
	case config.StorageFirestore:
		fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return fmt.Errorf("firestore client failed: %w", err)
		}
		defer fsClient.Close()
		deps.Messages = fsStore.NewMessageStore(fsClient)
		deps.Tokens = fsStore.NewTokenStore(fsClient)
	default:
		deps.Messages = memory.NewMessageStore()
		deps.Tokens = memory.NewTokenStore()
	}
	logger.Info("Stores initialized", "type", cfg.Storage)

	if cfg.Redis.Enabled {
		logger.Info("Initializing Redis Cache layer...", "addr", cfg.Redis.Addr)
		redisClient, err := cache.NewRedisClient(ctx, cache.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()
		deps.Messages = cache.NewCachedMessageStore(deps.Messages, redisClient, cfg.Redis.TTL, logger)
		deps.Tokens = cache.NewCachedTokenStore(deps.Tokens, redisClient, cfg.Redis.TTL)
		logger.Info("Stores upgraded", "type", "redis_cached_"+cfg.Storage)
	}

	// --- Dispatchers ---
	if cfg.FCM.Enabled {
		var opts []option.ClientOption
		if cfg.FCM.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.FCM.CredentialsFile))
		}
		fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
		if err != nil {
			return fmt.Errorf("failed to initialize firebase app: %w", err)
		}
		fcmMessaging, err := fbApp.Messaging(ctx)
		if err != nil {
			return fmt.Errorf("failed to create fcm messaging client: %w", err)
		}
		deps.Dispatchers[wire.PlatformAndroid] = fcm.NewDispatcher(fcmMessaging, logger)
		logger.Info("Android Dispatcher enabled", "provider", "fcm")
	} else {
		logger.Warn("FCM disabled. Android devices will not receive pushes.")
	}

	if cfg.APNs.Enabled {
		key, err := os.ReadFile(cfg.APNs.KeyFile)
		if err != nil {
			return fmt.Errorf("failed to read apns key: %w", err)
		}
		apnsDispatcher, err := apns.NewDispatcher(apns.Config{
			KeyID:        cfg.APNs.KeyID,
			TeamID:       cfg.APNs.TeamID,
			BundleID:     cfg.APNs.BundleID,
			P8KeyContent: string(key),
			Sandbox:      cfg.APNs.Sandbox,
		}, logger)
		if err != nil {
			return err
		}
		deps.Dispatchers[wire.PlatformIOS] = apnsDispatcher
		logger.Info("iOS Dispatcher enabled", "provider", "apns", "sandbox", cfg.APNs.Sandbox)
	} else {
		logger.Warn("APNs disabled. iOS devices will not receive pushes.")
	}

	// --- Consumer ---
	if cfg.PubsubEnabled() {
		psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return fmt.Errorf("pubsub client failed: %w", err)
		}
		defer psClient.Close()

		consumer, err := newIngestionConsumer(ctx, cfg, psClient, logger)
		if err != nil {
			return err
		}
		deps.Consumer = consumer
	}

	// --- Service ---
	service, err := notifylightserver.New(cfg, deps, logger)
	if err != nil {
		return fmt.Errorf("service creation failed: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting service...", "addr", cfg.ListenAddr)
		errCh <- service.Start(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return service.Shutdown(shutdownCtx)
}

func newIngestionConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := convertPubsub(cfg.ProjectID, cfg.PubsubConsumerConfig.SubscriptionID, "subscriptions")
	topicID := convertPubsub(cfg.ProjectID, cfg.TopicID, "topics")

	subConfig := &pubsubpb.Subscription{
		Name:                  sub,
		Topic:                 topicID,
		AckDeadlineSeconds:    10,
		EnableMessageOrdering: false,
	}
	if cfg.SubscriptionDLQTopicID != "" {
		subConfig.DeadLetterPolicy = &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     convertPubsub(cfg.ProjectID, cfg.SubscriptionDLQTopicID, "topics"),
			MaxDeliveryAttempts: 5,
		}
	}

	logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
	_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, subConfig)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			logger.Debug("Subscription already exists, skipping creation", "sub", subConfig.Name)
		} else {
			logger.Error("Failed to create subscription", "sub", subConfig.Name, "err", err)
			return nil, fmt.Errorf("could not create sub %s: %w", sub, err)
		}
	}

	return messagepipeline.NewGooglePubsubConsumer(
		messagepipeline.NewGooglePubsubConsumerDefaults(subConfig.Name), psClient, logger,
	)
}

type PS string

func convertPubsub(project, id string, ps PS) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, ps, id)
}
