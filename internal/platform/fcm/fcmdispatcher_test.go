package fcm_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-notifylight/internal/platform/fcm"
	"github.com/tinywideclouds/go-notifylight/pkg/dispatch"
)

type MockClient struct {
	mock.Mock
}

func (m *MockClient) SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*messaging.BatchResponse), args.Error(1)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func allSent(n int) *messaging.BatchResponse {
	br := &messaging.BatchResponse{SuccessCount: n}
	for i := 0; i < n; i++ {
		br.Responses = append(br.Responses, &messaging.SendResponse{Success: true, MessageID: fmt.Sprintf("msg-%d", i)})
	}
	return br
}

func TestFCMDispatch_Lifecycle(t *testing.T) {
	logger := newTestLogger()
	ctx := context.Background()
	content := dispatch.Content{Title: "Welcome", Body: "Thanks for installing"}
	data := map[string]string{"message_id": "m-1"}

	t.Run("Happy Path - All Success", func(t *testing.T) {
		mockClient := new(MockClient)
		dispatcher := fcm.NewDispatcher(mockClient, logger)
		tokens := []string{"token-1", "token-2"}

		mockClient.On("SendEachForMulticast", ctx, mock.MatchedBy(func(m *messaging.MulticastMessage) bool {
			return m.Notification.Title == "Welcome" &&
				m.Notification.Body == "Thanks for installing" &&
				m.Data["message_id"] == "m-1" &&
				m.Android.Priority == "high" &&
				m.Android.Notification.Sound == "default"
		})).Return(allSent(2), nil)

		receipt, invalid, err := dispatcher.Dispatch(ctx, tokens, content, data)

		require.NoError(t, err)
		assert.Empty(t, invalid)
		assert.Equal(t, "success:2 invalid:0", receipt)
		mockClient.AssertExpectations(t)
	})

	t.Run("No tokens is a no-op", func(t *testing.T) {
		mockClient := new(MockClient)
		dispatcher := fcm.NewDispatcher(mockClient, logger)

		receipt, _, err := dispatcher.Dispatch(ctx, nil, content, data)

		require.NoError(t, err)
		assert.Contains(t, receipt, "skipped")
		mockClient.AssertNotCalled(t, "SendEachForMulticast", mock.Anything, mock.Anything)
	})

	t.Run("Large token lists are chunked", func(t *testing.T) {
		mockClient := new(MockClient)
		dispatcher := fcm.NewDispatcher(mockClient, logger)
		tokens := make([]string, 501)
		for i := range tokens {
			tokens[i] = fmt.Sprintf("token-%d", i)
		}

		mockClient.On("SendEachForMulticast", ctx, mock.MatchedBy(func(m *messaging.MulticastMessage) bool {
			return len(m.Tokens) == 500
		})).Return(allSent(500), nil).Once()
		mockClient.On("SendEachForMulticast", ctx, mock.MatchedBy(func(m *messaging.MulticastMessage) bool {
			return len(m.Tokens) == 1 && m.Tokens[0] == "token-500"
		})).Return(allSent(1), nil).Once()

		receipt, _, err := dispatcher.Dispatch(ctx, tokens, content, data)

		require.NoError(t, err)
		assert.Equal(t, "success:501 invalid:0", receipt)
		mockClient.AssertExpectations(t)
	})

	t.Run("Transport Failure (Retryable)", func(t *testing.T) {
		mockClient := new(MockClient)
		dispatcher := fcm.NewDispatcher(mockClient, logger)

		mockClient.On("SendEachForMulticast", ctx, mock.Anything).Return(nil, errors.New("network down"))

		_, _, err := dispatcher.Dispatch(ctx, []string{"token-1"}, content, data)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "transport failed")
	})

	t.Run("Unclassified per-token failure is retryable", func(t *testing.T) {
		mockClient := new(MockClient)
		dispatcher := fcm.NewDispatcher(mockClient, logger)

		mockClient.On("SendEachForMulticast", ctx, mock.Anything).Return(&messaging.BatchResponse{
			SuccessCount: 1,
			FailureCount: 1,
			Responses: []*messaging.SendResponse{
				{Success: true},
				{Success: false, Error: errors.New("unavailable")},
			},
		}, nil)

		_, invalid, err := dispatcher.Dispatch(ctx, []string{"token-1", "token-2"}, content, data)

		require.Error(t, err)
		assert.Empty(t, invalid)
	})

	// Classification of registration-token errors depends on Firebase's
	// internal error types and is left to live testing.
}
