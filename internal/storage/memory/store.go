// Package memory provides in-process MessageStore and TokenStore
// implementations for local runs and tests.
package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/tinywideclouds/go-notifylight/pkg/dispatch"
	"github.com/tinywideclouds/go-notifylight/pkg/wire"
)

// MessageStore keeps messages in a map guarded by a mutex.
type MessageStore struct {
	mu       sync.RWMutex
	messages map[string]dispatch.StoredMessage
}

func NewMessageStore() *MessageStore {
	return &MessageStore{messages: make(map[string]dispatch.StoredMessage)}
}

func (s *MessageStore) CreateMessage(_ context.Context, msg dispatch.StoredMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.messages[msg.ID]; exists {
		return dispatch.ErrAlreadyExists
	}
	msg.Actions = slices.Clone(msg.Actions)
	msg.Data = maps.Clone(msg.Data)
	s.messages[msg.ID] = msg
	return nil
}

func (s *MessageStore) ListMessages(_ context.Context, userID string, unreadOnly bool) ([]dispatch.StoredMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]dispatch.StoredMessage, 0)
	for _, m := range s.messages {
		if m.UserID != userID || (unreadOnly && m.IsRead) {
			continue
		}
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b dispatch.StoredMessage) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return out, nil
}

func (s *MessageStore) MarkRead(_ context.Context, messageID string) (*dispatch.StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok {
		return nil, dispatch.ErrNotFound
	}
	m.IsRead = true
	s.messages[messageID] = m
	return &m, nil
}

// TokenStore keeps device tokens per user.
type TokenStore struct {
	mu      sync.RWMutex
	devices map[string]map[string]string // user -> token -> platform
}

func NewTokenStore() *TokenStore {
	return &TokenStore{devices: make(map[string]map[string]string)}
}

func (s *TokenStore) RegisterDevice(_ context.Context, userID string, device dispatch.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byToken, ok := s.devices[userID]
	if !ok {
		byToken = make(map[string]string)
		s.devices[userID] = byToken
	}
	byToken[device.Token] = device.Platform
	return nil
}

func (s *TokenStore) UnregisterDevice(_ context.Context, userID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.devices[userID], token)
	return nil
}

func (s *TokenStore) Fetch(_ context.Context, userID string) (*dispatch.DeviceTokens, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tokens := &dispatch.DeviceTokens{UserID: userID, IOS: []string{}, Android: []string{}}
	for token, platform := range s.devices[userID] {
		switch platform {
		case wire.PlatformIOS:
			tokens.IOS = append(tokens.IOS, token)
		case wire.PlatformAndroid:
			tokens.Android = append(tokens.Android, token)
		}
	}
	slices.Sort(tokens.IOS)
	slices.Sort(tokens.Android)
	return tokens, nil
}
