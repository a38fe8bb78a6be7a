// Package pubsub provides a generic publish/subscribe event system used to
// fan registry events and log entries out to channel-based consumers.
package pubsub

import (
	"context"
	"time"
)

// EventType represents the type of event being published.
type EventType string

const (
	AddedEvent    EventType = "added"
	ModifiedEvent EventType = "modified"
	RemovedEvent  EventType = "removed"
	CreatedEvent  EventType = "created" // log entries and other append-only streams
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
