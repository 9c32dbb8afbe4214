package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/tinywideclouds/go-notifylight/pkg/dispatch"
)

// CacheClient defines the subset of Redis commands we need.
type CacheClient interface {
	// Get decodes the value into dest or returns an error on a miss.
	Get(ctx context.Context, key string, dest interface{}) error
	// Set stores the value with a TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// Del removes the key.
	Del(ctx context.Context, key string) error
}

// CachedTokenStore is a Decorator that adds Read-Aside caching to any TokenStore.
type CachedTokenStore struct {
	realStore dispatch.TokenStore
	cache     CacheClient
	ttl       time.Duration
}

// NewCachedTokenStore creates the decorator.
func NewCachedTokenStore(realStore dispatch.TokenStore, cache CacheClient, ttl time.Duration) *CachedTokenStore {
	return &CachedTokenStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
	}
}

// --- READ PATH (Read-Aside) ---

func (s *CachedTokenStore) Fetch(ctx context.Context, userID string) (*dispatch.DeviceTokens, error) {
	key := tokensKey(userID)

	var cached dispatch.DeviceTokens
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	fresh, err := s.realStore.Fetch(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Caching is an optimization: if Redis is down we serve from the store.
	_ = s.cache.Set(ctx, key, fresh, s.ttl)
	return fresh, nil
}

// --- WRITE PATHS (Invalidate-on-Write) ---

func (s *CachedTokenStore) RegisterDevice(ctx context.Context, userID string, device dispatch.Device) error {
	if err := s.realStore.RegisterDevice(ctx, userID, device); err != nil {
		return err
	}
	return s.cache.Del(ctx, tokensKey(userID))
}

// UnregisterDevice must clear the cache even though the write succeeded, so
// that dead tokens stop receiving pushes immediately.
func (s *CachedTokenStore) UnregisterDevice(ctx context.Context, userID, token string) error {
	if err := s.realStore.UnregisterDevice(ctx, userID, token); err != nil {
		return err
	}
	return s.cache.Del(ctx, tokensKey(userID))
}

func tokensKey(userID string) string {
	return fmt.Sprintf("notifylight:tokens:%s", userID)
}
