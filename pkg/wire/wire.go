// --- File: pkg/wire/wire.go ---
// Package wire holds the JSON contract spoken between the SDK and a
// NotifyLight server.
package wire

// APIKeyHeader carries the API key on every authenticated request.
const APIKeyHeader = "X-API-Key"

// Platforms accepted by /register-device.
const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
)

// Notify delivery types.
const (
	NotifyTypePush  = "push"
	NotifyTypeInApp = "in-app"
	NotifyTypeBoth  = "both"
)

type Action struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Style string `json:"style,omitempty"`
}

// Message is the raw server representation of an in-app message.
// CreatedAt is ISO-8601, optionally with fractional seconds.
type Message struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Actions   []Action       `json:"actions"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt string         `json:"created_at"`
	IsRead    bool           `json:"is_read"`
}

// MessagesResponse answers GET /messages/{userId}.
type MessagesResponse struct {
	Success  bool      `json:"success"`
	Messages []Message `json:"messages"`
	Count    int       `json:"count"`
}

// StatusResponse is the generic {success, message} envelope used by
// mark-read, register-device and every error response.
type StatusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// RegisterDeviceRequest is the body of POST /register-device.
type RegisterDeviceRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
	UserID   string `json:"user_id,omitempty"`
}

// HealthResponse answers GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp,omitempty"`
	Version   string `json:"version,omitempty"`
}

// NotifyRequest is the body of POST /notify and the payload of the
// ingestion topic.
type NotifyRequest struct {
	Title   string            `json:"title"`
	Message string            `json:"message"`
	UserIDs []string          `json:"user_ids"`
	Type    string            `json:"type,omitempty"`
	Actions []Action          `json:"actions,omitempty"`
	Data    map[string]string `json:"data,omitempty"`
}

// NotifyResponse answers POST /notify.
type NotifyResponse struct {
	Success    bool     `json:"success"`
	MessageIDs []string `json:"message_ids,omitempty"`
	Message    string   `json:"message,omitempty"`
}
