package core

import "context"

// EventNotifier mirrors fleet events to an external bus.
type EventNotifier interface {
	// Notify publishes an already encoded event of the given type.
	Notify(ctx context.Context, eventType string, payload []byte) error
}
