// Package firestore persists NotifyLight messages and device tokens in
// Google Cloud Firestore.
package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-notifylight/pkg/dispatch"
)

const messagesCollection = "messages"

// MessageStore implements dispatch.MessageStore using a flat "messages"
// collection keyed by message id.
type MessageStore struct {
	client *firestore.Client
}

func NewMessageStore(client *firestore.Client) *MessageStore {
	return &MessageStore{client: client}
}

func (s *MessageStore) CreateMessage(ctx context.Context, msg dispatch.StoredMessage) error {
	if _, err := s.client.Collection(messagesCollection).Doc(msg.ID).Create(ctx, msg); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return dispatch.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create message %s: %w", msg.ID, err)
	}
	return nil
}

// ListMessages queries by user, newest first. The unread filter needs a
// composite index on (user_id, is_read, created_at desc).
func (s *MessageStore) ListMessages(ctx context.Context, userID string, unreadOnly bool) ([]dispatch.StoredMessage, error) {
	q := s.client.Collection(messagesCollection).Where("user_id", "==", userID)
	if unreadOnly {
		q = q.Where("is_read", "==", false)
	}
	iter := q.OrderBy("created_at", firestore.Desc).Documents(ctx)
	defer iter.Stop()

	msgs := make([]dispatch.StoredMessage, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}
		var m dispatch.StoredMessage
		if err := doc.DataTo(&m); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (s *MessageStore) MarkRead(ctx context.Context, messageID string) (*dispatch.StoredMessage, error) {
	ref := s.client.Collection(messagesCollection).Doc(messageID)

	var updated dispatch.StoredMessage
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}
		if err := doc.DataTo(&updated); err != nil {
			return err
		}
		updated.IsRead = true
		return tx.Update(ref, []firestore.Update{{Path: "is_read", Value: true}})
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, dispatch.ErrNotFound
		}
		return nil, fmt.Errorf("failed to mark message %s read: %w", messageID, err)
	}
	return &updated, nil
}
