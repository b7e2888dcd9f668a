// Package events is the in-process event bus: modules publish domain events
// and subscribe to each other's without importing each other.
package events

import (
	"context"
	"time"
)

// Event is implemented by every domain event.
type Event interface {
	// EventName identifies the event type; subscriptions key on it.
	EventName() string
	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time
}

// BaseEvent carries the fields shared by all events.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// OccurredAt returns when the event occurred.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps a base event with the current time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// Handler processes events of a specific type.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls the underlying function.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus publishes events to subscribed handlers.
type Bus interface {
	// Publish delivers the event to all handlers subscribed to its name.
	// Handlers run asynchronously.
	Publish(ctx context.Context, event Event)

	// PublishSync delivers the event and waits for every handler.
	PublishSync(ctx context.Context, event Event) error

	// Subscribe registers a handler for the given event name, as returned
	// by Event.EventName.
	Subscribe(eventName string, handler Handler)
}
