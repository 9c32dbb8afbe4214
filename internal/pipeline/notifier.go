package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-notifylight/pkg/dispatch"
	"github.com/tinywideclouds/go-notifylight/pkg/wire"
)

// MessageIDKey is added to the push data of every notification that also
// created an in-app message, so the device can link the two.
const MessageIDKey = "message_id"

// Notifier fans a notify request out to in-app storage and push dispatch.
type Notifier struct {
	messages    dispatch.MessageStore
	tokens      dispatch.TokenStore
	dispatchers map[string]dispatch.Dispatcher
	logger      *slog.Logger
	now         func() time.Time
}

type NotifierOption func(*Notifier)

// WithDispatcher routes tokens of platform ("ios" or "android") to d.
// Platforms without a dispatcher are skipped.
func WithDispatcher(platform string, d dispatch.Dispatcher) NotifierOption {
	return func(n *Notifier) {
		if d != nil {
			n.dispatchers[platform] = d
		}
	}
}

// WithNow overrides the creation timestamp source.
func WithNow(now func() time.Time) NotifierOption {
	return func(n *Notifier) { n.now = now }
}

func NewNotifier(messages dispatch.MessageStore, tokens dispatch.TokenStore, logger *slog.Logger, opts ...NotifierOption) *Notifier {
	n := &Notifier{
		messages:    messages,
		tokens:      tokens,
		dispatchers: make(map[string]dispatch.Dispatcher),
		logger:      logger.With("component", "Notifier"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify delivers a request received over HTTP. Message ids are random.
func (n *Notifier) Notify(ctx context.Context, req *wire.NotifyRequest) ([]string, error) {
	return n.deliver(ctx, req, func(string) string { return uuid.NewString() }, n.logger)
}

// Processor adapts the Notifier to the streaming pipeline. Message ids
// are derived from the Pub/Sub message id so a redelivery does not store
// a second copy.
func (n *Notifier) Processor() messagepipeline.StreamProcessor[wire.NotifyRequest] {
	return func(ctx context.Context, original messagepipeline.Message, req *wire.NotifyRequest) error {
		procLogger := n.logger.With("pubsub_msg_id", original.ID)
		newID := func(userID string) string {
			return uuid.NewSHA1(uuid.NameSpaceOID, []byte(original.ID+"/"+userID)).String()
		}
		_, err := n.deliver(ctx, req, newID, procLogger)
		return err
	}
}

func (n *Notifier) deliver(ctx context.Context, req *wire.NotifyRequest, newID func(string) string, logger *slog.Logger) ([]string, error) {
	if err := NormalizeNotifyRequest(req); err != nil {
		return nil, err
	}

	var ids []string
	byUser := make(map[string]string, len(req.UserIDs))
	if wantsInApp(req.Type) {
		createdAt := n.now().UTC()
		for _, userID := range req.UserIDs {
			id := newID(userID)
			err := n.messages.CreateMessage(ctx, dispatch.StoredMessage{
				ID:        id,
				UserID:    userID,
				Title:     req.Title,
				Body:      req.Message,
				Actions:   req.Actions,
				Data:      toAnyMap(req.Data),
				CreatedAt: createdAt,
			})
			if errors.Is(err, dispatch.ErrAlreadyExists) {
				logger.Debug("In-app message already stored", "message_id", id, "user_id", userID)
			} else if err != nil {
				return ids, fmt.Errorf("failed to store message for %s: %w", userID, err)
			}
			ids = append(ids, id)
			byUser[userID] = id
		}
	}

	if !wantsPush(req.Type) {
		return ids, nil
	}

	content := dispatch.Content{Title: req.Title, Body: req.Message}
	var errs []error
	for _, userID := range req.UserIDs {
		data := maps.Clone(req.Data)
		if id, ok := byUser[userID]; ok {
			if data == nil {
				data = make(map[string]string, 1)
			}
			data[MessageIDKey] = id
		}
		if err := n.push(ctx, userID, content, data, logger.With("user_id", userID)); err != nil {
			errs = append(errs, err)
		}
	}
	return ids, errors.Join(errs...)
}

// push sends to every device of one user and prunes dead tokens.
func (n *Notifier) push(ctx context.Context, userID string, content dispatch.Content, data map[string]string, logger *slog.Logger) error {
	devices, err := n.tokens.Fetch(ctx, userID)
	if err != nil {
		logger.Error("Failed to fetch device tokens", "err", err)
		return fmt.Errorf("failed to fetch tokens for %s: %w", userID, err)
	}
	if devices == nil {
		devices = &dispatch.DeviceTokens{UserID: userID}
	}

	buckets := []struct {
		platform string
		tokens   []string
	}{
		{wire.PlatformIOS, devices.IOS},
		{wire.PlatformAndroid, devices.Android},
	}

	var errs []error
	delivered := false
	for _, b := range buckets {
		if len(b.tokens) == 0 {
			continue
		}
		d, ok := n.dispatchers[b.platform]
		if !ok {
			logger.Debug("No dispatcher configured, skipping platform", "platform", b.platform, "tokens", len(b.tokens))
			continue
		}
		delivered = true

		receipt, invalid, err := d.Dispatch(ctx, b.tokens, content, data)
		if len(invalid) > 0 {
			logger.Info("Cleaning up invalid tokens", "platform", b.platform, "count", len(invalid))
			for _, t := range invalid {
				if err := n.tokens.UnregisterDevice(ctx, userID, t); err != nil {
					logger.Warn("Failed to delete token", "platform", b.platform, "err", err)
				}
			}
		}
		if err != nil {
			logger.Error("Dispatch failed", "platform", b.platform, "err", err)
			errs = append(errs, fmt.Errorf("%s dispatch for %s: %w", b.platform, userID, err))
			continue
		}
		logger.Info("Dispatched", "platform", b.platform, "receipt", receipt)
	}

	if !delivered {
		logger.Info("No deliverable devices for user; dropping push.")
	}
	return errors.Join(errs...)
}

func toAnyMap(in map[string]string) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
