package session

import (
	"context"

	"github.com/autopeer-io/otahub/internal/otahub/protocol"
)

// Handle is one live peer connection, device or observer.
type Handle interface {
	// ID is unique per connection, not per device.
	ID() string

	RemoteAddr() string

	// Send queues data for delivery, blocking while the queue is full.
	// It fails once the connection is closed or ctx is done.
	Send(ctx context.Context, data []byte) error

	// TrySend queues data without blocking and reports whether it was queued.
	TrySend(data []byte) bool

	// Open reports whether the connection can still deliver frames.
	Open() bool

	// Done is closed when the connection is closed.
	Done() <-chan struct{}

	// Close terminates the connection. It is safe to call more than once.
	Close() error
}

// Send marshals m and queues it on h.
func Send(ctx context.Context, h Handle, m protocol.Message) error {
	data, err := protocol.Marshal(m)
	if err != nil {
		return err
	}
	return h.Send(ctx, data)
}
