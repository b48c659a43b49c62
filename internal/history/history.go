// Package history exports node lifecycle events to external analytics
// systems. The node core owns no on-disk state; sinks are optional
// collaborators configured at launch.
package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart   EventType = "start"
	EventStop    EventType = "stop"
	EventTimeout EventType = "timeout"
)

// Event represents a node lifecycle event to be exported.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	// Node is the node type ("Worker", "Scheduler").
	Node string `json:"node"`
	// Address is the node's primary listen address, if any.
	Address string `json:"address,omitempty"`
	// Detail carries the error text for failed transitions.
	Detail string `json:"detail,omitempty"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
