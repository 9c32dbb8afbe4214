// Package pipeline turns notify requests into stored in-app messages and
// platform push notifications.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-notifylight/pkg/wire"
)

// NotifyRequestTransformer is a dataflow Transformer that unmarshals and
// validates a raw payload into a wire.NotifyRequest. Any failure sets
// skip so the StreamingService routes the message to the dead-letter path.
func NotifyRequestTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*wire.NotifyRequest, bool, error) {
	var req wire.NotifyRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal notify request from message %s: %w", msg.ID, err)
	}
	if err := NormalizeNotifyRequest(&req); err != nil {
		return nil, true, fmt.Errorf("message %s: %w", msg.ID, err)
	}
	return &req, false, nil
}
