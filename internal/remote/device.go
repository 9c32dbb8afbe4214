package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tinywideclouds/go-notifylight/pkg/wire"
)

// ServerError is returned by the non-messaging calls when the server
// answered with a failure.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

// RegisterDevice registers a push token for userID on the given platform.
func (c *Client) RegisterDevice(ctx context.Context, req wire.RegisterDeviceRequest) error {
	if req.Token == "" {
		return fmt.Errorf("device token is required")
	}
	res, err := c.do(ctx, http.MethodPost, []string{"register-device"}, nil, req)
	if err != nil {
		return fmt.Errorf("register device: %w", err)
	}
	if !res.ok() {
		return &ServerError{StatusCode: res.status, Message: res.serverMessage()}
	}

	var payload wire.StatusResponse
	if err := json.Unmarshal(res.body, &payload); err != nil {
		return fmt.Errorf("register device: failed to decode response: %w", err)
	}
	if !payload.Success {
		return &ServerError{StatusCode: res.status, Message: payload.Message}
	}
	return nil
}

// Health queries the unauthenticated health endpoint.
func (c *Client) Health(ctx context.Context) (*wire.HealthResponse, error) {
	res, err := c.do(ctx, http.MethodGet, []string{"health"}, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	if !res.ok() {
		return nil, &ServerError{StatusCode: res.status, Message: res.serverMessage()}
	}

	var payload wire.HealthResponse
	if err := json.Unmarshal(res.body, &payload); err != nil {
		return nil, fmt.Errorf("health check: failed to decode response: %w", err)
	}
	return &payload, nil
}
