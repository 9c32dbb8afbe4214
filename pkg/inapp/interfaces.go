// --- File: pkg/inapp/interfaces.go ---
package inapp

import "context"

// Fetcher retrieves the unread messages for a user.
// Implementations return *FetchError on failure and keep the server's order.
type Fetcher interface {
	FetchMessages(ctx context.Context, userID string) ([]Message, error)
}

// Acknowledger informs the remote source that a message has been shown.
// Implementations return *AckError on failure.
type Acknowledger interface {
	MarkRead(ctx context.Context, messageID string) error
}

// MessageSource is the full remote contract the SDK depends on.
type MessageSource interface {
	Fetcher
	Acknowledger
}

// Responder receives the outcome of exactly one presentation.
// Only the first call to either method has any effect.
type Responder interface {
	// OnAction reports that the user chose the action with the given id.
	OnAction(actionID string)
	// OnDismiss reports that the message was closed without an action.
	OnDismiss()
}

// Presenter renders a message to the user.
// Present must return promptly; the outcome is reported later through r.
type Presenter interface {
	Present(msg Message, r Responder)
}

// PresenterFunc adapts a plain function to a Presenter.
type PresenterFunc func(msg Message, r Responder)

func (f PresenterFunc) Present(msg Message, r Responder) { f(msg, r) }
