// Package notifylightserver assembles the NotifyLight server: the HTTP
// API on a microservice BaseServer plus optional Pub/Sub ingestion.
package notifylightserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"golang.org/x/time/rate"

	"github.com/tinywideclouds/go-notifylight/internal/api"
	"github.com/tinywideclouds/go-notifylight/internal/pipeline"
	"github.com/tinywideclouds/go-notifylight/notifylightserver/config"
	"github.com/tinywideclouds/go-notifylight/pkg/dispatch"
	"github.com/tinywideclouds/go-notifylight/pkg/wire"
)

// Dependencies are the storage and push collaborators of the server.
// Dispatchers is keyed by platform; missing platforms are not pushed to.
type Dependencies struct {
	Messages    dispatch.MessageStore
	Tokens      dispatch.TokenStore
	Dispatchers map[string]dispatch.Dispatcher
	// Consumer enables Pub/Sub ingestion when non-nil.
	Consumer messagepipeline.MessageConsumer
}

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[wire.NotifyRequest]
	logger          *slog.Logger
}

// New assembles the service.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) (*Wrapper, error) {
	if deps.Messages == nil || deps.Tokens == nil {
		return nil, fmt.Errorf("message and token stores are required")
	}

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Notifier shared by HTTP and the pipeline
	var opts []pipeline.NotifierOption
	for platform, d := range deps.Dispatchers {
		opts = append(opts, pipeline.WithDispatcher(platform, d))
	}
	notifier := pipeline.NewNotifier(deps.Messages, deps.Tokens, logger, opts...)

	// 3. Pipeline
	var streamingService *messagepipeline.StreamingService[wire.NotifyRequest]
	if deps.Consumer != nil {
		var err error
		streamingService, err = messagepipeline.NewStreamingService(
			messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
			deps.Consumer,
			pipeline.NotifyRequestTransformer,
			notifier.Processor(),
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create streaming service: %w", err)
		}
	}

	// 4. API
	httpAPI := api.NewAPI(deps.Messages, deps.Tokens, notifier, cfg.Version, logger)
	auth := api.NewAPIKeyAuth(cfg.APIKeys, api.RateLimit{
		Rate:  rate.Limit(cfg.RateLimit.RequestsPerSecond),
		Burst: cfg.RateLimit.Burst,
	}, logger)

	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	httpAPI.Register(mux, func(h http.Handler) http.Handler {
		return corsMiddleware(auth.Middleware(h))
	})

	// CORS preflight
	preflight := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	for _, pattern := range []string{"OPTIONS /messages/", "OPTIONS /register-device", "OPTIONS /notify"} {
		mux.Handle(pattern, preflight)
	}

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		logger:          logger,
	}, nil
}

func (w *Wrapper) Start(ctx context.Context) error {
	if w.pipelineService != nil {
		w.logger.Info("Core processing pipeline starting...")
		if err := w.pipelineService.Start(ctx); err != nil {
			return fmt.Errorf("failed to start processing service: %w", err)
		}
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if w.pipelineService != nil {
		if err := w.pipelineService.Stop(ctx); err != nil {
			w.logger.Error("Processing pipeline shutdown failed.", "err", err)
			finalErr = err
		}
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
