package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-notifylight/pkg/dispatch"
)

// CachedMessageStore adds Read-Aside caching of each user's unread list to
// any MessageStore. Full listings bypass the cache.
type CachedMessageStore struct {
	realStore dispatch.MessageStore
	cache     CacheClient
	ttl       time.Duration
	logger    *slog.Logger
}

func NewCachedMessageStore(realStore dispatch.MessageStore, cache CacheClient, ttl time.Duration, logger *slog.Logger) *CachedMessageStore {
	return &CachedMessageStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
		logger:    logger.With("component", "CachedMessageStore"),
	}
}

func (s *CachedMessageStore) ListMessages(ctx context.Context, userID string, unreadOnly bool) ([]dispatch.StoredMessage, error) {
	if !unreadOnly {
		return s.realStore.ListMessages(ctx, userID, false)
	}

	key := unreadKey(userID)
	var cached []dispatch.StoredMessage
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	fresh, err := s.realStore.ListMessages(ctx, userID, true)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, fresh, s.ttl); err != nil {
		s.logger.Warn("Failed to populate unread cache", "user_id", userID, "err", err)
	}
	return fresh, nil
}

func (s *CachedMessageStore) CreateMessage(ctx context.Context, msg dispatch.StoredMessage) error {
	if err := s.realStore.CreateMessage(ctx, msg); err != nil {
		return err
	}
	return s.cache.Del(ctx, unreadKey(msg.UserID))
}

func (s *CachedMessageStore) MarkRead(ctx context.Context, messageID string) (*dispatch.StoredMessage, error) {
	msg, err := s.realStore.MarkRead(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Del(ctx, unreadKey(msg.UserID)); err != nil {
		// A stale list only re-sends a message the client already dedups.
		s.logger.Warn("Failed to invalidate unread cache", "user_id", msg.UserID, "err", err)
	}
	return msg, nil
}

func unreadKey(userID string) string {
	return fmt.Sprintf("notifylight:unread:%s", userID)
}
