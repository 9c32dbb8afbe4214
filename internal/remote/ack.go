package remote

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/tinywideclouds/go-notifylight/pkg/inapp"
	"github.com/tinywideclouds/go-notifylight/pkg/wire"
)

// MarkRead tells the server that messageID has been shown.
// A response body that cannot be decoded after a 2xx status still counts as
// success: the server has accepted the call.
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	res, err := c.do(ctx, http.MethodPost, []string{"messages", messageID, "read"}, nil, nil)
	if err != nil {
		return &inapp.AckError{Kind: inapp.KindNetwork, MessageID: messageID, Err: err}
	}
	if !res.ok() {
		return &inapp.AckError{Kind: inapp.KindServer, MessageID: messageID, StatusCode: res.status, Message: res.serverMessage()}
	}

	var payload wire.StatusResponse
	if err := json.Unmarshal(res.body, &payload); err == nil && !payload.Success {
		return &inapp.AckError{Kind: inapp.KindServer, MessageID: messageID, StatusCode: res.status, Message: payload.Message}
	}
	return nil
}
