package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/tinywideclouds/go-notifylight/pkg/dispatch"
	"github.com/tinywideclouds/go-notifylight/pkg/wire"
)

// TokenStore implements dispatch.TokenStore using Google Cloud Firestore.
type TokenStore struct {
	client *firestore.Client
}

func NewTokenStore(client *firestore.Client) *TokenStore {
	return &TokenStore{client: client}
}

// deviceRecord is the internal DB representation.
type deviceRecord struct {
	Platform  string    `firestore:"platform"`
	Token     string    `firestore:"token"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

func (s *TokenStore) RegisterDevice(ctx context.Context, userID string, device dispatch.Device) error {
	// Hash of the token as doc id prevents duplicates and hot-spotting.
	record := deviceRecord{
		Platform:  device.Platform,
		Token:     device.Token,
		UpdatedAt: time.Now().UTC(),
	}
	if _, err := s.deviceRef(userID, hashToken(device.Token)).Set(ctx, record); err != nil {
		return fmt.Errorf("failed to register device: %w", err)
	}
	return nil
}

func (s *TokenStore) UnregisterDevice(ctx context.Context, userID, token string) error {
	// Deleting a missing document succeeds in Firestore.
	if _, err := s.deviceRef(userID, hashToken(token)).Delete(ctx); err != nil {
		return fmt.Errorf("failed to unregister device: %w", err)
	}
	return nil
}

// Fetch buckets every device of the user by platform.
func (s *TokenStore) Fetch(ctx context.Context, userID string) (*dispatch.DeviceTokens, error) {
	iter := s.devicesCollection(userID).Documents(ctx)
	defer iter.Stop()

	tokens := &dispatch.DeviceTokens{
		UserID:  userID,
		IOS:     make([]string, 0),
		Android: make([]string, 0),
	}

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}

		var record deviceRecord
		if err := doc.DataTo(&record); err != nil || record.Token == "" {
			// Corrupt rows are skipped.
			continue
		}

		switch record.Platform {
		case wire.PlatformIOS:
			tokens.IOS = append(tokens.IOS, record.Token)
		case wire.PlatformAndroid:
			tokens.Android = append(tokens.Android, record.Token)
		}
	}

	return tokens, nil
}

// deviceRef: users/{userID}/devices/{tokenHash}
func (s *TokenStore) deviceRef(userID, docID string) *firestore.DocumentRef {
	return s.devicesCollection(userID).Doc(docID)
}

func (s *TokenStore) devicesCollection(userID string) *firestore.CollectionRef {
	return s.client.Collection("users").Doc(userID).Collection("devices")
}

func hashToken(t string) string {
	sum := sha256.Sum256([]byte(t))
	return hex.EncodeToString(sum[:])
}
