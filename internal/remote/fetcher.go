package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tinywideclouds/go-notifylight/pkg/inapp"
	"github.com/tinywideclouds/go-notifylight/pkg/wire"
)

// timestampLayouts are tried in order when parsing created_at.
// RFC3339 parsing accepts an optional fractional second.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// FetchMessages returns the unread messages for userID in the order the
// server sent them. Messages already marked read are dropped.
func (c *Client) FetchMessages(ctx context.Context, userID string) ([]inapp.Message, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	res, err := c.do(ctx, http.MethodGet, []string{"messages", userID}, url.Values{"active": {"true"}}, nil)
	if err != nil {
		return nil, &inapp.FetchError{Kind: inapp.KindNetwork, Err: err}
	}
	if !res.ok() {
		return nil, &inapp.FetchError{Kind: inapp.KindServer, StatusCode: res.status, Message: res.serverMessage()}
	}

	var payload wire.MessagesResponse
	if err := json.Unmarshal(res.body, &payload); err != nil {
		return nil, &inapp.FetchError{Kind: inapp.KindDecode, StatusCode: res.status, Err: err}
	}
	if !payload.Success {
		return nil, &inapp.FetchError{Kind: inapp.KindServer, StatusCode: res.status, Message: "server reported success=false"}
	}

	messages := make([]inapp.Message, 0, len(payload.Messages))
	for _, raw := range payload.Messages {
		if raw.IsRead {
			continue
		}
		msg, err := toMessage(raw)
		if err != nil {
			return nil, &inapp.FetchError{Kind: inapp.KindDecode, StatusCode: res.status, Err: err}
		}
		messages = append(messages, msg)
	}

	c.logger.Debug("Fetched messages", "user_id", userID, "received", len(payload.Messages), "unread", len(messages))
	return messages, nil
}

// toMessage maps a raw server message onto the domain model.
func toMessage(raw wire.Message) (inapp.Message, error) {
	if raw.ID == "" {
		return inapp.Message{}, fmt.Errorf("message without id")
	}
	createdAt, err := ParseTimestamp(raw.CreatedAt)
	if err != nil {
		return inapp.Message{}, fmt.Errorf("message %s: %w", raw.ID, err)
	}

	actions := make([]inapp.Action, 0, len(raw.Actions))
	for _, a := range raw.Actions {
		style := inapp.ActionStyleSecondary
		if a.Style == string(inapp.ActionStylePrimary) {
			style = inapp.ActionStylePrimary
		}
		actions = append(actions, inapp.Action{ID: a.ID, Title: a.Title, Style: style})
	}

	return inapp.Message{
		ID:        raw.ID,
		Title:     raw.Title,
		Body:      raw.Message,
		Actions:   actions,
		Data:      raw.Data,
		CreatedAt: createdAt,
		IsRead:    raw.IsRead,
	}, nil
}

// ParseTimestamp parses an ISO-8601 timestamp with optional fractional
// seconds. Values without a zone are read as UTC. An empty value yields the
// zero time.
func ParseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", value)
}
