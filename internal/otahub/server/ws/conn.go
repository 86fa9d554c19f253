package ws

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/autopeer-io/otahub/internal/otahub/session"
	"github.com/autopeer-io/otahub/pkg/log"
	"github.com/autopeer-io/otahub/pkg/options"
)

// ErrConnClosed is returned by Send once the connection is closed.
var ErrConnClosed = errors.New("websocket connection closed")

var _ session.Handle = (*Conn)(nil)

// Conn is one websocket peer. Frames are queued on send and written by
// writePump, the only goroutine writing to ws.
type Conn struct {
	id     string
	remote string
	ws     *websocket.Conn
	opts   *options.WebSocketOptions
	log    log.Logger

	send chan []byte
	done chan struct{}

	closeOnce sync.Once
	closed    atomic.Bool
}

func newConn(ws *websocket.Conn, remote string, opts *options.WebSocketOptions) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:     id,
		remote: remote,
		ws:     ws,
		opts:   opts,
		log:    log.WithName("ws").WithValues("conn", id, "remote", remote),
		send:   make(chan []byte, opts.SendQueue),
		done:   make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) RemoteAddr() string { return c.remote }

func (c *Conn) Open() bool { return !c.closed.Load() }

func (c *Conn) Done() <-chan struct{} { return c.done }

// Send blocks while the queue is full.
func (c *Conn) Send(ctx context.Context, data []byte) error {
	if !c.Open() {
		return ErrConnClosed
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend drops data when the queue is full.
func (c *Conn) TrySend(data []byte) bool {
	if !c.Open() {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close stops writePump, which sends a close frame and closes the socket.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
	})
	return nil
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.opts.PingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.Close()
		_ = c.ws.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug("Write failed", "err", err.Error())
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.opts.WriteWait))
			return
		}
	}
}

// readLoop hands every text frame to handle until the peer goes away or
// the connection is closed.
func (c *Conn) readLoop(handle func(data []byte)) {
	defer func() { _ = c.Close() }()

	c.ws.SetReadLimit(c.opts.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})
	c.ws.SetPingHandler(func(appData string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		err := c.ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.opts.WriteWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) && c.Open() {
				c.log.Info("Connection lost", "err", err.Error())
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))

		if msgType != websocket.TextMessage {
			c.log.Debug("Ignoring non-text frame", "frameType", msgType)
			continue
		}
		handle(data)
	}
}
