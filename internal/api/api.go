// Package api serves the NotifyLight HTTP contract: message listing,
// mark-read, device registration, health and notify.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tinywideclouds/go-notifylight/internal/pipeline"
	"github.com/tinywideclouds/go-notifylight/pkg/dispatch"
	"github.com/tinywideclouds/go-notifylight/pkg/wire"
)

// Notifier delivers a notify request and returns the in-app message ids.
type Notifier interface {
	Notify(ctx context.Context, req *wire.NotifyRequest) ([]string, error)
}

// Router is satisfied by *http.ServeMux.
type Router interface {
	Handle(pattern string, handler http.Handler)
}

type API struct {
	Messages dispatch.MessageStore
	Tokens   dispatch.TokenStore
	Notifier Notifier
	Version  string
	Logger   *slog.Logger
	Now      func() time.Time
}

func NewAPI(messages dispatch.MessageStore, tokens dispatch.TokenStore, notifier Notifier, version string, logger *slog.Logger) *API {
	return &API{
		Messages: messages,
		Tokens:   tokens,
		Notifier: notifier,
		Version:  version,
		Logger:   logger.With("component", "API"),
		Now:      time.Now,
	}
}

// Register mounts every route on mux. auth wraps all routes except health.
func (api *API) Register(mux Router, auth func(http.Handler) http.Handler) {
	mux.Handle("GET /health", http.HandlerFunc(api.Health))
	mux.Handle("GET /messages/{userId}", auth(http.HandlerFunc(api.ListMessages)))
	mux.Handle("POST /messages/{messageId}/read", auth(http.HandlerFunc(api.MarkRead)))
	mux.Handle("POST /register-device", auth(http.HandlerFunc(api.RegisterDevice)))
	mux.Handle("POST /notify", auth(http.HandlerFunc(api.Notify)))
}

func (api *API) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, wire.HealthResponse{
		Status:    "ok",
		Timestamp: api.Now().UTC().Format(time.RFC3339),
		Version:   api.Version,
	})
}

// ListMessages answers GET /messages/{userId}; active=true limits the
// result to unread messages.
func (api *API) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if strings.TrimSpace(userID) == "" {
		writeStatus(w, http.StatusBadRequest, "user id is required")
		return
	}
	unreadOnly := r.URL.Query().Get("active") == "true"

	stored, err := api.Messages.ListMessages(r.Context(), userID, unreadOnly)
	if err != nil {
		api.Logger.Error("Failed to list messages", "user_id", userID, "err", err)
		writeStatus(w, http.StatusInternalServerError, "storage failed")
		return
	}

	msgs := make([]wire.Message, 0, len(stored))
	for _, m := range stored {
		msgs = append(msgs, m.ToWire())
	}
	writeJSON(w, http.StatusOK, wire.MessagesResponse{Success: true, Messages: msgs, Count: len(msgs)})
}

func (api *API) MarkRead(w http.ResponseWriter, r *http.Request) {
	messageID := r.PathValue("messageId")

	msg, err := api.Messages.MarkRead(r.Context(), messageID)
	if errors.Is(err, dispatch.ErrNotFound) {
		writeStatus(w, http.StatusNotFound, "Message not found")
		return
	}
	if err != nil {
		api.Logger.Error("Failed to mark message read", "message_id", messageID, "err", err)
		writeStatus(w, http.StatusInternalServerError, "storage failed")
		return
	}
	api.Logger.Debug("Message marked read", "message_id", messageID, "user_id", msg.UserID)
	writeStatus(w, http.StatusOK, "Message marked as read")
}

func (api *API) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req wire.RegisterDeviceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeStatus(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Token == "" || req.UserID == "" {
		writeStatus(w, http.StatusBadRequest, "token and user_id are required")
		return
	}
	if req.Platform != wire.PlatformIOS && req.Platform != wire.PlatformAndroid {
		writeStatus(w, http.StatusBadRequest, "platform must be ios or android")
		return
	}

	device := dispatch.Device{Token: req.Token, Platform: req.Platform}
	if err := api.Tokens.RegisterDevice(r.Context(), req.UserID, device); err != nil {
		api.Logger.Error("Failed to register device", "user_id", req.UserID, "platform", req.Platform, "err", err)
		writeStatus(w, http.StatusInternalServerError, "storage failed")
		return
	}
	api.Logger.Info("Device registered", "user_id", req.UserID, "platform", req.Platform)
	writeStatus(w, http.StatusOK, "Device registered")
}

func (api *API) Notify(w http.ResponseWriter, r *http.Request) {
	var req wire.NotifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeStatus(w, http.StatusBadRequest, "invalid json")
		return
	}

	ids, err := api.Notifier.Notify(r.Context(), &req)
	switch {
	case errors.Is(err, pipeline.ErrInvalidRequest):
		writeStatus(w, http.StatusBadRequest, err.Error())
	case err != nil:
		api.Logger.Error("Notify failed", "users", len(req.UserIDs), "stored", len(ids), "err", err)
		writeJSON(w, http.StatusBadGateway, wire.NotifyResponse{
			Success:    false,
			MessageIDs: ids,
			Message:    "delivery failed",
		})
	default:
		writeJSON(w, http.StatusOK, wire.NotifyResponse{Success: true, MessageIDs: ids})
	}
}
