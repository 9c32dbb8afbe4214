// --- File: pkg/inapp/message.go ---
// Package inapp contains the public domain model and ports for server-driven
// in-app messages.
package inapp

import "time"

// ActionStyle controls how an Action is rendered.
type ActionStyle string

const (
	ActionStylePrimary   ActionStyle = "primary"
	ActionStyleSecondary ActionStyle = "secondary"
)

// Action is one interactive choice offered on a Message.
type Action struct {
	ID    string      `json:"id"`
	Title string      `json:"title"`
	Style ActionStyle `json:"style"`
}

// Message is a single server-authored in-app communication.
// ID is the identity key used for deduplication.
type Message struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Body      string         `json:"message"`
	Actions   []Action       `json:"actions,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	IsRead    bool           `json:"is_read"`
}

// PrimaryAction returns the action that should be emphasised. When no action
// is explicitly primary the first one is used. It reports false for a message
// without actions.
func (m Message) PrimaryAction() (Action, bool) {
	if len(m.Actions) == 0 {
		return Action{}, false
	}
	for _, a := range m.Actions {
		if a.Style == ActionStylePrimary {
			return a, true
		}
	}
	return m.Actions[0], true
}

// HasAction reports whether actionID belongs to the message.
func (m Message) HasAction(actionID string) bool {
	for _, a := range m.Actions {
		if a.ID == actionID {
			return true
		}
	}
	return false
}
