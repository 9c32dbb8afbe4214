// --- File: notifylight/events.go ---
package notifylight

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/tinywideclouds/go-notifylight/pkg/inapp"
)

// EventKind names an SDK event.
type EventKind string

const (
	EventTokenReceived        EventKind = "token_received"
	EventTokenRefresh         EventKind = "token_refresh"
	EventRegistrationError    EventKind = "registration_error"
	EventNotificationReceived EventKind = "notification_received"
	EventNotificationOpened   EventKind = "notification_opened"
	EventMessageShown         EventKind = "message_shown"
	EventMessageAction        EventKind = "message_action"
	EventMessageDismissed     EventKind = "message_dismissed"
	EventMessagesFetched      EventKind = "messages_fetched"
)

// Event is delivered to subscribers. Only the fields relevant to Kind are set.
type Event struct {
	Kind EventKind

	// In-app message events.
	Message   *inapp.Message
	ActionID  string
	ViaAction bool
	Count     int

	// Push and token events.
	Token        string
	Notification *PushNotification
	Err          error
}

// Handler processes one event. A returned error is logged and does not stop
// other handlers.
type Handler func(Event) error

type subscription struct {
	id      uint64
	handler Handler
}

// EventBus is a registry of event handlers. Handlers for a kind run in
// subscription order and are isolated from each other: an error or a panic
// in one handler is logged and the rest still run.
type EventBus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[EventKind][]subscription
	logger *slog.Logger
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		subs:   make(map[EventKind][]subscription),
		logger: logger.With("component", "EventBus"),
	}
}

// Subscribe registers h for kind and returns a function that removes it.
// Calling the returned function more than once is safe.
func (b *EventBus) Subscribe(kind EventKind, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[kind] = append(b.subs[kind], subscription{id: id, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(kind, id) })
	}
}

func (b *EventBus) remove(kind EventKind, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[kind]
	for i, s := range subs {
		if s.id == id {
			// Copy so that a Publish iterating the old slice is unaffected.
			next := make([]subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			b.subs[kind] = next
			return
		}
	}
}

// HandlerCount returns the number of handlers registered for kind.
func (b *EventBus) HandlerCount(kind EventKind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[kind])
}

// Publish delivers e synchronously to every handler registered for e.Kind.
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	subs := b.subs[e.Kind]
	b.mu.RUnlock()

	for _, s := range subs {
		if err := b.invoke(s.handler, e); err != nil {
			b.logger.Warn("Event handler failed", "event", e.Kind, "err", err)
		}
	}
}

func (b *EventBus) invoke(h Handler, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h(e)
}
