package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-notifylight/internal/api"
	"github.com/tinywideclouds/go-notifylight/internal/pipeline"
	"github.com/tinywideclouds/go-notifylight/internal/storage/memory"
	"github.com/tinywideclouds/go-notifylight/pkg/dispatch"
	"github.com/tinywideclouds/go-notifylight/pkg/wire"
)

const testKey = "test-key"

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, req *wire.NotifyRequest) ([]string, error) {
	args := m.Called(ctx, req)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

type harness struct {
	messages *memory.MessageStore
	tokens   *memory.TokenStore
	notifier *MockNotifier
	mux      *http.ServeMux
}

func setupAPI(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		messages: memory.NewMessageStore(),
		tokens:   memory.NewTokenStore(),
		notifier: new(MockNotifier),
		mux:      http.NewServeMux(),
	}
	a := api.NewAPI(h.messages, h.tokens, h.notifier, "1.2.3", logger)
	a.Now = func() time.Time { return time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC) }
	auth := api.NewAPIKeyAuth([]string{testKey}, api.RateLimit{}, logger)
	a.Register(h.mux, auth.Middleware)
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		buf = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		buf = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set(wire.APIKeyHeader, testKey)
	w := httptest.NewRecorder()
	h.mux.ServeHTTP(w, req)
	return w
}

func decodeStatus(t *testing.T, w *httptest.ResponseRecorder) wire.StatusResponse {
	t.Helper()
	var resp wire.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	h := setupAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	h.mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp wire.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, wire.HealthResponse{Status: "ok", Timestamp: "2025-05-01T12:00:00Z", Version: "1.2.3"}, resp)
}

func TestListMessages(t *testing.T) {
	h := setupAPI(t)
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, h.messages.CreateMessage(ctx, dispatch.StoredMessage{ID: "old", UserID: "alice", Title: "Old", CreatedAt: base}))
	require.NoError(t, h.messages.CreateMessage(ctx, dispatch.StoredMessage{ID: "new", UserID: "alice", Title: "New", CreatedAt: base.Add(time.Hour)}))
	_, err := h.messages.MarkRead(ctx, "old")
	require.NoError(t, err)

	t.Run("Active only", func(t *testing.T) {
		w := h.do(t, http.MethodGet, "/messages/alice?active=true", nil)

		require.Equal(t, http.StatusOK, w.Code)
		var resp wire.MessagesResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, 1, resp.Count)
		require.Len(t, resp.Messages, 1)
		assert.Equal(t, "new", resp.Messages[0].ID)
		assert.Equal(t, "2025-05-01T10:00:00Z", resp.Messages[0].CreatedAt)
		assert.NotNil(t, resp.Messages[0].Actions)
	})

	t.Run("All, newest first", func(t *testing.T) {
		w := h.do(t, http.MethodGet, "/messages/alice", nil)

		var resp wire.MessagesResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Messages, 2)
		assert.Equal(t, "new", resp.Messages[0].ID)
		assert.True(t, resp.Messages[1].IsRead)
	})

	t.Run("Unknown user is an empty list", func(t *testing.T) {
		w := h.do(t, http.MethodGet, "/messages/nobody?active=true", nil)

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"success":true,"messages":[],"count":0}`, w.Body.String())
	})
}

func TestMarkRead(t *testing.T) {
	h := setupAPI(t)
	require.NoError(t, h.messages.CreateMessage(context.Background(), dispatch.StoredMessage{ID: "m-1", UserID: "alice"}))

	t.Run("Success", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "/messages/m-1/read", nil)

		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, decodeStatus(t, w).Success)
	})

	t.Run("Unknown id is 404", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "/messages/ghost/read", nil)

		require.Equal(t, http.StatusNotFound, w.Code)
		resp := decodeStatus(t, w)
		assert.False(t, resp.Success)
		assert.NotEmpty(t, resp.Message)
	})
}

func TestRegisterDevice(t *testing.T) {
	h := setupAPI(t)

	t.Run("Success", func(t *testing.T) {
		w := h.do(t, http.MethodPost, "/register-device", wire.RegisterDeviceRequest{Token: "tok", Platform: wire.PlatformIOS, UserID: "alice"})

		require.Equal(t, http.StatusOK, w.Code)
		tokens, err := h.tokens.Fetch(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, []string{"tok"}, tokens.IOS)
	})

	badCases := []struct {
		name string
		body any
	}{
		{"Malformed JSON", `{"token":`},
		{"Missing token", wire.RegisterDeviceRequest{Platform: wire.PlatformIOS, UserID: "alice"}},
		{"Missing user", wire.RegisterDeviceRequest{Token: "tok", Platform: wire.PlatformIOS}},
		{"Unknown platform", wire.RegisterDeviceRequest{Token: "tok", Platform: "web", UserID: "alice"}},
	}
	for _, tc := range badCases {
		t.Run(tc.name, func(t *testing.T) {
			w := h.do(t, http.MethodPost, "/register-device", tc.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.False(t, decodeStatus(t, w).Success)
		})
	}
}

func TestNotify(t *testing.T) {
	body := wire.NotifyRequest{Title: "Hi", Message: "There", UserIDs: []string{"alice"}}

	t.Run("Success", func(t *testing.T) {
		h := setupAPI(t)
		h.notifier.On("Notify", mock.Anything, mock.MatchedBy(func(r *wire.NotifyRequest) bool {
			return r.Title == "Hi" && r.UserIDs[0] == "alice"
		})).Return([]string{"m-1"}, nil)

		w := h.do(t, http.MethodPost, "/notify", body)

		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"success":true,"message_ids":["m-1"]}`, w.Body.String())
	})

	t.Run("Invalid request is 400", func(t *testing.T) {
		h := setupAPI(t)
		h.notifier.On("Notify", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("%w: user_ids is required", pipeline.ErrInvalidRequest))

		w := h.do(t, http.MethodPost, "/notify", body)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Delivery failure keeps stored ids", func(t *testing.T) {
		h := setupAPI(t)
		h.notifier.On("Notify", mock.Anything, mock.Anything).Return([]string{"m-1"}, errors.New("fcm down"))

		w := h.do(t, http.MethodPost, "/notify", body)

		require.Equal(t, http.StatusBadGateway, w.Code)
		var resp wire.NotifyResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.Equal(t, []string{"m-1"}, resp.MessageIDs)
	})
}
