// Package apns delivers NotifyLight push notifications to iOS devices
// through the Apple Push Notification service.
package apns

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"github.com/tinywideclouds/go-notifylight/pkg/dispatch"
)

// APNSClient is the subset of *apns2.Client used for sending.
type APNSClient interface {
	Push(n *apns2.Notification) (*apns2.Response, error)
}

type Dispatcher struct {
	client APNSClient
	topic  string
	logger *slog.Logger
}

// Config holds the token-auth credentials for APNs.
type Config struct {
	KeyID    string
	TeamID   string
	BundleID string
	// P8KeyContent is the raw content of the .p8 signing key.
	P8KeyContent string
	// Sandbox routes pushes to the development gateway.
	Sandbox bool
}

// NewDispatcher parses the signing key up front so bad credentials fail at
// startup rather than on the first push.
func NewDispatcher(cfg Config, logger *slog.Logger) (*Dispatcher, error) {
	if cfg.BundleID == "" {
		return nil, fmt.Errorf("apns bundle id is required")
	}
	authKey, err := token.AuthKeyFromBytes([]byte(cfg.P8KeyContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Sandbox {
		client = client.Development()
	} else {
		client = client.Production()
	}

	return NewDispatcherWithClient(client, cfg.BundleID, logger), nil
}

// NewDispatcherWithClient wires an existing client, typically a test double.
func NewDispatcherWithClient(client APNSClient, topic string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		topic:  topic,
		logger: logger.With("component", "APNSDispatcher"),
	}
}

// Dispatch pushes to each token in turn; APNs has no multicast endpoint.
// Dead tokens are returned as invalid. The call only fails as a whole when
// nothing was delivered and at least one push hit a transport error.
func (d *Dispatcher) Dispatch(ctx context.Context, tokens []string, content dispatch.Content, data map[string]string) (string, []string, error) {
	if len(tokens) == 0 {
		return "skipped: no tokens", nil, nil
	}

	builder := payload.NewPayload().
		AlertTitle(content.Title).
		AlertBody(content.Body).
		Sound(soundOrDefault(content.Sound))
	for k, v := range data {
		builder.Custom(k, v)
	}

	var invalidTokens []string
	sent, transportFailures, rejected := 0, 0, 0

	for _, deviceToken := range tokens {
		if err := ctx.Err(); err != nil {
			return "", invalidTokens, err
		}

		res, err := d.client.Push(&apns2.Notification{
			DeviceToken: deviceToken,
			Topic:       d.topic,
			Payload:     builder,
			Priority:    apns2.PriorityHigh,
		})
		if err != nil {
			d.logger.Error("APNs transport failed", "err", err)
			transportFailures++
			continue
		}

		if res.Sent() {
			sent++
			continue
		}

		switch res.Reason {
		case apns2.ReasonBadDeviceToken, apns2.ReasonUnregistered, apns2.ReasonDeviceTokenNotForTopic:
			invalidTokens = append(invalidTokens, deviceToken)
		default:
			// The token may be fine; our topic or payload is not.
			rejected++
			d.logger.Warn("APNs rejected notification", "reason", res.Reason, "status", res.StatusCode)
		}
	}

	if sent == 0 && transportFailures > 0 {
		return "", invalidTokens, fmt.Errorf("apns transport failed for %d of %d tokens", transportFailures, len(tokens))
	}

	receipt := fmt.Sprintf("success:%d invalid:%d rejected:%d transport_fail:%d",
		sent, len(invalidTokens), rejected, transportFailures)
	return receipt, invalidTokens, nil
}

func soundOrDefault(s string) string {
	if s == "" {
		return "default"
	}
	return s
}
