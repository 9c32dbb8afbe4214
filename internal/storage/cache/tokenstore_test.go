package cache_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-notifylight/internal/storage/cache"
	"github.com/tinywideclouds/go-notifylight/pkg/dispatch"
	"github.com/tinywideclouds/go-notifylight/pkg/wire"
)

// --- Mocks ---
type MockCache struct {
	mock.Mock
}

func (m *MockCache) Get(ctx context.Context, key string, dest interface{}) error {
	args := m.Called(ctx, key, dest)
	return args.Error(0)
}
func (m *MockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}
func (m *MockCache) Del(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) RegisterDevice(ctx context.Context, userID string, device dispatch.Device) error {
	return m.Called(ctx, userID, device).Error(0)
}
func (m *MockTokenStore) UnregisterDevice(ctx context.Context, userID, token string) error {
	return m.Called(ctx, userID, token).Error(0)
}
func (m *MockTokenStore) Fetch(ctx context.Context, userID string) (*dispatch.DeviceTokens, error) {
	args := m.Called(ctx, userID)
	tokens, _ := args.Get(0).(*dispatch.DeviceTokens)
	return tokens, args.Error(1)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCachedTokenStore_ImmediateInvalidation(t *testing.T) {
	ctx := context.Background()
	mockCache := new(MockCache)
	mockDB := new(MockTokenStore)
	store := cache.NewCachedTokenStore(mockDB, mockCache, time.Hour)

	mockDB.On("UnregisterDevice", ctx, "annoyed-user", "dead-token").Return(nil)
	mockCache.On("Del", ctx, "notifylight:tokens:annoyed-user").Return(nil)

	require.NoError(t, store.UnregisterDevice(ctx, "annoyed-user", "dead-token"))

	mockDB.AssertExpectations(t)
	mockCache.AssertExpectations(t)
}

func TestCachedTokenStore_RegisterInvalidates(t *testing.T) {
	ctx := context.Background()
	mockCache := new(MockCache)
	mockDB := new(MockTokenStore)
	store := cache.NewCachedTokenStore(mockDB, mockCache, time.Hour)
	device := dispatch.Device{Token: "tok", Platform: wire.PlatformIOS}

	mockDB.On("RegisterDevice", ctx, "user-1", device).Return(nil)
	mockCache.On("Del", ctx, "notifylight:tokens:user-1").Return(nil)

	require.NoError(t, store.RegisterDevice(ctx, "user-1", device))
	mockCache.AssertExpectations(t)
}

func TestCachedTokenStore_FailedWriteKeepsCache(t *testing.T) {
	ctx := context.Background()
	mockCache := new(MockCache)
	mockDB := new(MockTokenStore)
	store := cache.NewCachedTokenStore(mockDB, mockCache, time.Hour)

	mockDB.On("UnregisterDevice", ctx, "user-1", "tok").Return(errors.New("db down"))

	err := store.UnregisterDevice(ctx, "user-1", "tok")
	assert.Error(t, err)
	mockCache.AssertNotCalled(t, "Del", mock.Anything, mock.Anything)
}

func TestCachedTokenStore_Fetch(t *testing.T) {
	ctx := context.Background()

	t.Run("Hit skips the store", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockTokenStore)
		store := cache.NewCachedTokenStore(mockDB, mockCache, time.Hour)

		mockCache.On("Get", ctx, "notifylight:tokens:user-1", mock.AnythingOfType("*dispatch.DeviceTokens")).
			Run(func(args mock.Arguments) {
				dest := args.Get(2).(*dispatch.DeviceTokens)
				dest.UserID = "user-1"
				dest.IOS = []string{"cached-ios"}
			}).Return(nil)

		tokens, err := store.Fetch(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"cached-ios"}, tokens.IOS)
		mockDB.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
	})

	t.Run("Miss populates the cache", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockTokenStore)
		store := cache.NewCachedTokenStore(mockDB, mockCache, time.Hour)
		fresh := &dispatch.DeviceTokens{UserID: "user-1", Android: []string{"fresh-android"}}

		mockCache.On("Get", ctx, "notifylight:tokens:user-1", mock.Anything).Return(cache.ErrCacheMiss)
		mockDB.On("Fetch", ctx, "user-1").Return(fresh, nil)
		mockCache.On("Set", ctx, "notifylight:tokens:user-1", fresh, time.Hour).Return(nil)

		tokens, err := store.Fetch(ctx, "user-1")
		require.NoError(t, err)
		assert.Same(t, fresh, tokens)
		mockCache.AssertExpectations(t)
	})

	t.Run("Cache write failure still serves", func(t *testing.T) {
		mockCache := new(MockCache)
		mockDB := new(MockTokenStore)
		store := cache.NewCachedTokenStore(mockDB, mockCache, time.Hour)
		fresh := &dispatch.DeviceTokens{UserID: "user-1"}

		mockCache.On("Get", ctx, mock.Anything, mock.Anything).Return(errors.New("redis down"))
		mockDB.On("Fetch", ctx, "user-1").Return(fresh, nil)
		mockCache.On("Set", ctx, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down"))

		tokens, err := store.Fetch(ctx, "user-1")
		require.NoError(t, err)
		assert.Same(t, fresh, tokens)
	})
}
