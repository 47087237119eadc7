package service

import "github.com/joeblew999/plat-olmap/internal/pubsub"

// Event represents a view lifecycle change.
type Event struct {
	Resource string // "views"
	Action   string // "created", "deleted", "evicted"
	ID       string // view ID
}

// Lifecycle actions.
const (
	ActionCreated = "created"
	ActionDeleted = "deleted"
	ActionEvicted = "evicted"
)

// EventBus fans lifecycle events out to observers such as the server log.
type EventBus = pubsub.Bus[Event]

// NewEventBus creates a lifecycle event bus.
func NewEventBus() *EventBus {
	return pubsub.New[Event](16)
}
