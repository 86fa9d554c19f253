// Package sessiontest provides an in-memory session.Handle for tests.
package sessiontest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/autopeer-io/otahub/internal/otahub/protocol"
)

// ErrClosed is returned by Send on a closed Handle.
var ErrClosed = errors.New("sessiontest: handle closed")

var ids atomic.Uint64

// Handle records every frame it is given.
type Handle struct {
	id   string
	addr string

	// OnSend, when set, runs after a frame is recorded by Send. Returning an
	// error makes Send fail with it.
	OnSend func(data []byte) error

	mu     sync.Mutex
	frames [][]byte
	full   bool

	closeOnce sync.Once
	done      chan struct{}
	closed    atomic.Bool
	closes    atomic.Int32
}

// NewHandle returns an open Handle with the given remote address.
func NewHandle(addr string) *Handle {
	return &Handle{
		id:   fmt.Sprintf("test-%d", ids.Add(1)),
		addr: addr,
		done: make(chan struct{}),
	}
}

func (h *Handle) ID() string         { return h.id }
func (h *Handle) RemoteAddr() string { return h.addr }
func (h *Handle) Open() bool         { return !h.closed.Load() }
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !h.Open() {
		return ErrClosed
	}
	h.record(data)
	if h.OnSend != nil {
		return h.OnSend(data)
	}
	return nil
}

func (h *Handle) TrySend(data []byte) bool {
	if !h.Open() {
		return false
	}
	h.mu.Lock()
	full := h.full
	h.mu.Unlock()
	if full {
		return false
	}
	h.record(data)
	return true
}

func (h *Handle) Close() error {
	h.closes.Add(1)
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		close(h.done)
	})
	return nil
}

// Closes reports how many times Close was called.
func (h *Handle) Closes() int { return int(h.closes.Load()) }

// SetFull makes TrySend drop frames while full is true.
func (h *Handle) SetFull(full bool) {
	h.mu.Lock()
	h.full = full
	h.mu.Unlock()
}

func (h *Handle) record(data []byte) {
	frame := append([]byte(nil), data...)
	h.mu.Lock()
	h.frames = append(h.frames, frame)
	h.mu.Unlock()
}

// Frames returns a copy of the recorded frames.
func (h *Handle) Frames() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][]byte(nil), h.frames...)
}

// Reset forgets the recorded frames.
func (h *Handle) Reset() {
	h.mu.Lock()
	h.frames = nil
	h.mu.Unlock()
}

// Types returns the type discriminator of every recorded frame.
func (h *Handle) Types() []string {
	frames := h.Frames()
	types := make([]string, 0, len(frames))
	for _, f := range frames {
		typ, err := protocol.Peek(f)
		if err != nil {
			typ = "<invalid>"
		}
		types = append(types, typ)
	}
	return types
}

// Count returns how many recorded frames have type typ.
func (h *Handle) Count(typ string) int {
	n := 0
	for _, t := range h.Types() {
		if t == typ {
			n++
		}
	}
	return n
}

// Decode unmarshals every recorded frame of type typ into T.
func Decode[T any](t testing.TB, h *Handle, typ string) []T {
	t.Helper()

	var out []T
	for _, f := range h.Frames() {
		got, err := protocol.Peek(f)
		if err != nil || got != typ {
			continue
		}
		var v T
		if err := json.Unmarshal(f, &v); err != nil {
			t.Fatalf("decode %s frame %s: %v", typ, f, err)
		}
		out = append(out, v)
	}
	return out
}
