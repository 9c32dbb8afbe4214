// Package fcm delivers NotifyLight push notifications to Android devices
// through Firebase Cloud Messaging.
package fcm

import (
	"context"
	"fmt"
	"log/slog"

	"firebase.google.com/go/v4/messaging"

	"github.com/tinywideclouds/go-notifylight/pkg/dispatch"
)

// MessagingClient is the subset of *messaging.Client used for sending.
type MessagingClient interface {
	SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// maxMulticastTokens is the FCM limit for one multicast request.
const maxMulticastTokens = 500

type Dispatcher struct {
	client MessagingClient
	logger *slog.Logger
}

func NewDispatcher(client MessagingClient, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		logger: logger.With("component", "FCMDispatcher"),
	}
}

// Dispatch sends one notification to every token, chunked by the multicast
// limit. Tokens FCM reports as unregistered or malformed come back as
// invalid; any other per-token failure makes the whole call retryable.
func (d *Dispatcher) Dispatch(ctx context.Context, tokens []string, content dispatch.Content, data map[string]string) (string, []string, error) {
	if len(tokens) == 0 {
		return "skipped: no tokens", nil, nil
	}

	var invalidTokens []string
	success, retryable := 0, 0

	for start := 0; start < len(tokens); start += maxMulticastTokens {
		end := min(start+maxMulticastTokens, len(tokens))
		chunk := tokens[start:end]

		br, err := d.client.SendEachForMulticast(ctx, d.buildMessage(chunk, content, data))
		if err != nil {
			if messaging.IsInvalidArgument(err) {
				// The payload itself is bad; resending will not help.
				d.logger.Error("FCM rejected batch as InvalidArgument (dropping)", "err", err)
				return "skipped: invalid_argument", nil, nil
			}
			return "", nil, fmt.Errorf("fcm transport failed: %w", err)
		}

		success += br.SuccessCount
		for idx, resp := range br.Responses {
			if resp.Success {
				continue
			}
			if messaging.IsInvalidArgument(resp.Error) || messaging.IsRegistrationTokenNotRegistered(resp.Error) {
				invalidTokens = append(invalidTokens, chunk[idx])
				continue
			}
			retryable++
		}
	}

	if retryable > 0 {
		return "", invalidTokens, fmt.Errorf("fcm batch had %d retryable errors", retryable)
	}
	return fmt.Sprintf("success:%d invalid:%d", success, len(invalidTokens)), invalidTokens, nil
}

func (d *Dispatcher) buildMessage(tokens []string, content dispatch.Content, data map[string]string) *messaging.MulticastMessage {
	sound := content.Sound
	if sound == "" {
		sound = "default"
	}
	return &messaging.MulticastMessage{
		Tokens: tokens,
		Data:   data,
		Notification: &messaging.Notification{
			Title: content.Title,
			Body:  content.Body,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound: sound,
			},
		},
	}
}
