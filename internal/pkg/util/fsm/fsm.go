package fsm

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// WrapEvent adapts an error-returning callback to fsm.Callback. A non-nil
// error is stored on the event and returned by fsm.Event.
func WrapEvent(fn func(ctx context.Context, event *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, event *fsm.Event) {
		if err := fn(ctx, event); err != nil {
			event.Err = err
		}
	}
}

// IsInvalidEvent reports whether err means the event is not allowed from the current state.
func IsInvalidEvent(err error) bool {
	var invalid fsm.InvalidEventError
	return errors.As(err, &invalid)
}

// StringArg returns the i-th event argument as a string, or "".
func StringArg(e *fsm.Event, i int) string {
	if i < len(e.Args) {
		if s, ok := e.Args[i].(string); ok {
			return s
		}
	}
	return ""
}
