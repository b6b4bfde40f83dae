// Package pubsub provides a generic publish/subscribe event system used to
// fan out catalog changes and log entries to interested listeners.
package pubsub

import (
	"context"
	"time"
)

// EventType represents the type of event being published.
type EventType string

const (
	// LoadedEvent announces a snapshot read from persistent storage.
	LoadedEvent EventType = "loaded"
	// ChangedEvent announces a snapshot replaced by an in-memory change.
	ChangedEvent EventType = "changed"
	// SavedEvent announces a snapshot written to persistent storage.
	SavedEvent EventType = "saved"
	// LoggedEvent carries one formatted log entry.
	LoggedEvent EventType = "logged"
)

// Event represents a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}

// Next waits for the next event on ch. It returns false when ctx is done or
// the channel has been closed by its broker.
func Next[T any](ctx context.Context, ch <-chan Event[T]) (Event[T], bool) {
	select {
	case <-ctx.Done():
		return Event[T]{}, false
	case event, ok := <-ch:
		return event, ok
	}
}
