package mqtt

import (
	"context"
)

// MessageHandler processes one received message. It runs on its own goroutine.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Publisher is the outbound half of Client.
type Publisher interface {
	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error
}

// Client wraps autopaho with handler routing and automatic re-subscription.
type Client interface {
	Publisher

	// Start begins connecting in the background. Use AwaitConnection to wait.
	Start(ctx context.Context) error

	// Disconnect cleanly closes the connection.
	Disconnect(ctx context.Context)

	// Subscribe registers handler for filter and sends SUBSCRIBE.
	// Subscriptions are replayed after every reconnect.
	Subscribe(ctx context.Context, filter string, qos int, handler MessageHandler) error

	// Unsubscribe removes the handler and sends UNSUBSCRIBE.
	Unsubscribe(ctx context.Context, filter string) error

	// AwaitConnection blocks until the client is connected to the broker.
	AwaitConnection(ctx context.Context) error

	IsConnected() bool
}
