// Package dispatch holds the server-side contracts: message and device
// storage, and the platform push dispatchers.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/tinywideclouds/go-notifylight/pkg/wire"
)

var (
	// ErrNotFound is returned when a message id is unknown.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned by CreateMessage for a reused id.
	ErrAlreadyExists = errors.New("already exists")
)

// StoredMessage is an in-app message as the server persists it.
type StoredMessage struct {
	ID        string         `json:"id" firestore:"id"`
	UserID    string         `json:"user_id" firestore:"user_id"`
	Title     string         `json:"title" firestore:"title"`
	Body      string         `json:"message" firestore:"message"`
	Actions   []wire.Action  `json:"actions,omitempty" firestore:"actions"`
	Data      map[string]any `json:"data,omitempty" firestore:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at" firestore:"created_at"`
	IsRead    bool           `json:"is_read" firestore:"is_read"`
}

// ToWire renders the message in the client JSON contract.
func (m StoredMessage) ToWire() wire.Message {
	actions := m.Actions
	if actions == nil {
		actions = []wire.Action{}
	}
	return wire.Message{
		ID:        m.ID,
		Title:     m.Title,
		Message:   m.Body,
		Actions:   actions,
		Data:      m.Data,
		CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339Nano),
		IsRead:    m.IsRead,
	}
}

// MessageStore persists in-app messages.
type MessageStore interface {
	// CreateMessage stores a new message. Reusing an id yields
	// ErrAlreadyExists and leaves the stored message untouched.
	CreateMessage(ctx context.Context, msg StoredMessage) error
	// ListMessages returns a user's messages, newest first.
	ListMessages(ctx context.Context, userID string, unreadOnly bool) ([]StoredMessage, error)
	// MarkRead flags a message as read and returns it. Unknown ids yield
	// ErrNotFound.
	MarkRead(ctx context.Context, messageID string) (*StoredMessage, error)
}

// Device is one registered push endpoint.
type Device struct {
	Token    string
	Platform string
}

// DeviceTokens buckets a user's tokens by platform.
type DeviceTokens struct {
	UserID  string   `json:"user_id"`
	IOS     []string `json:"ios"`
	Android []string `json:"android"`
}

// TokenStore defines the contract for managing user device tokens.
type TokenStore interface {
	// RegisterDevice adds or updates a device token for a user (upsert).
	RegisterDevice(ctx context.Context, userID string, device Device) error
	// UnregisterDevice removes a token. Removing an unknown token is not an error.
	UnregisterDevice(ctx context.Context, userID, token string) error
	// Fetch returns all tokens for a user.
	Fetch(ctx context.Context, userID string) (*DeviceTokens, error)
}

// Content is the visible part of a push notification.
type Content struct {
	Title string
	Body  string
	Sound string
}

// Dispatcher sends a notification to a batch of tokens of one platform.
// It returns a short receipt and the tokens the platform reported as dead.
type Dispatcher interface {
	Dispatch(ctx context.Context, tokens []string, content Content, data map[string]string) (receipt string, invalidTokens []string, err error)
}
