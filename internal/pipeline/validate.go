package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tinywideclouds/go-notifylight/pkg/wire"
)

// ErrInvalidRequest marks a notify request that can never be delivered.
var ErrInvalidRequest = errors.New("invalid notify request")

// NormalizeNotifyRequest validates req in place: the type defaults to
// "both", blank and repeated user ids are dropped, and actions need an id
// and a title.
func NormalizeNotifyRequest(req *wire.NotifyRequest) error {
	if req == nil {
		return fmt.Errorf("%w: empty request", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Message) == "" {
		return fmt.Errorf("%w: title or message is required", ErrInvalidRequest)
	}

	switch req.Type {
	case "":
		req.Type = wire.NotifyTypeBoth
	case wire.NotifyTypePush, wire.NotifyTypeInApp, wire.NotifyTypeBoth:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidRequest, req.Type)
	}

	seen := make(map[string]struct{}, len(req.UserIDs))
	users := make([]string, 0, len(req.UserIDs))
	for _, id := range req.UserIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		users = append(users, id)
	}
	if len(users) == 0 {
		return fmt.Errorf("%w: user_ids is required", ErrInvalidRequest)
	}
	req.UserIDs = users

	for i, a := range req.Actions {
		if a.ID == "" || a.Title == "" {
			return fmt.Errorf("%w: action %d needs an id and a title", ErrInvalidRequest, i)
		}
	}
	return nil
}

func wantsInApp(t string) bool { return t == wire.NotifyTypeInApp || t == wire.NotifyTypeBoth }
func wantsPush(t string) bool  { return t == wire.NotifyTypePush || t == wire.NotifyTypeBoth }
