// Package notifylight is the client side of NotifyLight: it fetches a user's
// in-app messages from a NotifyLight server, shows them one at a time through
// a host-supplied Presenter, marks them read, and forwards push and device
// token events to subscribers.
package notifylight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/tinywideclouds/go-notifylight/internal/remote"
	"github.com/tinywideclouds/go-notifylight/notifylight/config"
	"github.com/tinywideclouds/go-notifylight/pkg/inapp"
	"github.com/tinywideclouds/go-notifylight/pkg/wire"
)

type options struct {
	clock      clockwork.Clock
	source     inapp.MessageSource
	httpClient *http.Client
}

type Option func(*options)

// WithClock drives the settle delay and auto-check ticks from clock.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithMessageSource replaces the HTTP message source. Device registration
// and health still go to the configured server.
func WithMessageSource(source inapp.MessageSource) Option {
	return func(o *options) { o.source = source }
}

func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// SDK wires the fetcher, coordinator, scheduler and event bus for one user.
type SDK struct {
	cfg         config.Config
	client      *remote.Client
	source      inapp.MessageSource
	coordinator *Coordinator
	checker     *AutoChecker
	events      *EventBus
	clock       clockwork.Clock
	logger      *slog.Logger

	mu       sync.Mutex
	started  bool
	token    string
	platform string
	// registered is the last token the server accepted, with its platform.
	registered         string
	registeredPlatform string
}

// New validates cfg and builds an SDK. It performs no network calls.
// Configuration problems are returned as *config.ConfigError.
func New(cfg config.Config, presenter inapp.Presenter, logger *slog.Logger, opts ...Option) (*SDK, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if presenter == nil {
		return nil, errors.New("presenter is required")
	}
	if logger == nil {
		logger = newDefaultLogger(os.Stderr, cfg.Debug)
	}
	logger = logger.With("user_id", cfg.UserID)

	o := &options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(o)
	}

	var doer remote.HTTPDoer
	if o.httpClient != nil {
		doer = o.httpClient
	}
	client, err := remote.NewClient(remote.Config{
		ServerURL: cfg.ServerURL,
		APIKey:    cfg.APIKey,
		Timeout:   cfg.HTTPTimeout,
	}, doer, logger)
	if err != nil {
		return nil, &config.ConfigError{Kind: config.KindInvalidURL, Field: "server_url", Err: err}
	}

	source := o.source
	if source == nil {
		source = client
	}

	events := NewEventBus(logger)
	s := &SDK{
		cfg:    cfg,
		client: client,
		source: source,
		events: events,
		clock:  o.clock,
		logger: logger.With("component", "SDK"),
	}
	s.coordinator = NewCoordinator(presenter, source, events, logger,
		WithSettleDelay(cfg.SettleDelay),
		WithCoordinatorClock(o.clock),
	)
	s.checker = NewAutoChecker(func(ctx context.Context) error {
		_, err := s.CheckMessages(ctx)
		return err
	}, o.clock, logger)

	return s, nil
}

// Start enables auto-check when the config carries an interval. Calling it
// again is harmless.
func (s *SDK) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		s.logger.Info("SDK already initialized")
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.logger.Info("SDK started", "server_url", s.cfg.ServerURL, "auto_check_interval", s.cfg.AutoCheckInterval)
	if s.cfg.AutoCheckInterval > 0 {
		return s.EnableAutoCheck(s.cfg.AutoCheckInterval)
	}
	return nil
}

// Cleanup stops auto-check, drops every queued and displayed message and
// waits for in-flight acknowledgements until ctx is done.
func (s *SDK) Cleanup(ctx context.Context) error {
	s.checker.Disable()
	s.coordinator.Reset()

	s.mu.Lock()
	s.started = false
	s.mu.Unlock()

	if err := s.coordinator.Flush(ctx); err != nil {
		return fmt.Errorf("waiting for acknowledgements: %w", err)
	}
	s.logger.Info("SDK cleaned up")
	return nil
}

// CheckMessages fetches the user's unread messages and queues the new ones.
// It returns the number of messages accepted into the queue.
func (s *SDK) CheckMessages(ctx context.Context) (int, error) {
	msgs, err := s.source.FetchMessages(ctx, s.cfg.UserID)
	if err != nil {
		return 0, err
	}
	accepted := s.coordinator.Enqueue(msgs)
	s.logger.Debug("Messages fetched", "received", len(msgs), "accepted", accepted)
	s.events.Publish(Event{Kind: EventMessagesFetched, Count: accepted})
	return accepted, nil
}

// ShowMessage presents msg as soon as nothing else is on screen.
func (s *SDK) ShowMessage(msg inapp.Message) {
	s.coordinator.ShowNow(msg)
}

func (s *SDK) EnableAutoCheck(interval time.Duration) error {
	return s.checker.Enable(interval)
}

func (s *SDK) DisableAutoCheck() {
	s.checker.Disable()
}

// Subscribe registers h for events of the given kind.
func (s *SDK) Subscribe(kind EventKind, h Handler) (unsubscribe func()) {
	return s.events.Subscribe(kind, h)
}

func (s *SDK) Coordinator() *Coordinator { return s.coordinator }

// Health queries the server's health endpoint.
func (s *SDK) Health(ctx context.Context) (*wire.HealthResponse, error) {
	return s.client.Health(ctx)
}

// SetDeviceToken records the push token delivered by the platform and
// registers it with the server. The first token publishes token_received and
// a changed one token_refresh; a failed registration publishes
// registration_error and is returned, and calling again with the same token
// retries it. A token the server already accepted is not sent again.
func (s *SDK) SetDeviceToken(ctx context.Context, token, platform string) error {
	if token == "" {
		return errors.New("device token is required")
	}
	if platform != wire.PlatformIOS && platform != wire.PlatformAndroid {
		return fmt.Errorf("unsupported platform %q", platform)
	}

	s.mu.Lock()
	previous := s.token
	alreadyRegistered := s.registered == token && s.registeredPlatform == platform
	s.token = token
	s.platform = platform
	s.mu.Unlock()

	if alreadyRegistered {
		s.logger.Debug("Device token unchanged, skipping registration")
		return nil
	}
	if previous != token {
		kind := EventTokenReceived
		if previous != "" {
			kind = EventTokenRefresh
		}
		s.events.Publish(Event{Kind: kind, Token: token})
	}

	err := s.client.RegisterDevice(ctx, wire.RegisterDeviceRequest{
		Token:    token,
		Platform: platform,
		UserID:   s.cfg.UserID,
	})
	if err != nil {
		s.logger.Warn("Device registration failed", "platform", platform, "err", err)
		s.events.Publish(Event{Kind: EventRegistrationError, Token: token, Err: err})
		return err
	}

	s.mu.Lock()
	s.registered = token
	s.registeredPlatform = platform
	s.mu.Unlock()
	s.logger.Info("Device registered", "platform", platform)
	return nil
}

// Token returns the last device token, or ErrNoToken.
func (s *SDK) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return "", ErrNoToken
	}
	return s.token, nil
}

// HandleNotificationReceived normalises a push that arrived while the app
// runs and publishes notification_received.
func (s *SDK) HandleNotificationReceived(n PushNotification) PushNotification {
	return s.forwardPush(EventNotificationReceived, n)
}

// HandleNotificationOpened normalises a push the user tapped and publishes
// notification_opened.
func (s *SDK) HandleNotificationOpened(n PushNotification) PushNotification {
	return s.forwardPush(EventNotificationOpened, n)
}

func newDefaultLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func (s *SDK) forwardPush(kind EventKind, n PushNotification) PushNotification {
	n = n.normalize(s.clock.Now())
	s.logger.Debug("Push notification forwarded", "event", kind, "notification_id", n.ID)
	s.events.Publish(Event{Kind: kind, Notification: &n})
	return n
}
