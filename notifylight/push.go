package notifylight

import (
	"errors"
	"maps"
	"strconv"
	"time"
)

// ErrNoToken is returned by SDK.Token before the platform delivered a push
// token.
var ErrNoToken = errors.New("no device token received yet")

// PushNotification is a platform push notification handed to the SDK by
// the host's push integration.
type PushNotification struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Body       string            `json:"body"`
	Message    string            `json:"message"`
	Data       map[string]string `json:"data,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
}

// normalize fills the fields hosts commonly leave out. A missing id becomes
// the receive time in milliseconds; body and message mirror each other.
func (n PushNotification) normalize(now time.Time) PushNotification {
	if n.ReceivedAt.IsZero() {
		n.ReceivedAt = now
	}
	if n.ID == "" {
		n.ID = strconv.FormatInt(n.ReceivedAt.UnixMilli(), 10)
	}
	switch {
	case n.Body == "" && n.Message != "":
		n.Body = n.Message
	case n.Message == "" && n.Body != "":
		n.Message = n.Body
	}
	n.Data = maps.Clone(n.Data)
	return n
}
