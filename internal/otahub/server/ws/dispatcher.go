package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/autopeer-io/otahub/internal/otahub/core"
	"github.com/autopeer-io/otahub/internal/otahub/protocol"
	"github.com/autopeer-io/otahub/internal/otahub/session"
	"github.com/autopeer-io/otahub/pkg/log"
)

// DeviceService is what the websocket layer needs from the core service.
type DeviceService interface {
	RegisterDevice(ctx context.Context, deviceID string, h session.Handle) error
	DisconnectDevice(deviceID string, h session.Handle) bool
	Heartbeat(ctx context.Context, deviceID string, h session.Handle) error
	RequestTransfer(ctx context.Context, deviceID string, h session.Handle, url string) error
	ReportProgress(deviceID string, h session.Handle, progress float64) error
	CompleteTransfer(ctx context.Context, deviceID string, h session.Handle) error
	FailTransfer(deviceID string, h session.Handle, message string) error

	AddObserver(ctx context.Context, h session.Handle) error
	RemoveObserver(h session.Handle)
}

// peer is the dispatcher state of one device connection. It is only
// touched by the connection's read goroutine.
type peer struct {
	conn session.Handle

	// deviceID is empty until the first valid register.
	deviceID string
}

func (p *peer) registered() bool { return p.deviceID != "" }

// HandlerFunc handles one raw envelope.
type HandlerFunc func(ctx context.Context, p *peer, payload []byte) error

// Payload is an inbound envelope body.
type Payload interface {
	Validate() error
}

// TypedHandlerFunc handles a decoded and validated envelope.
type TypedHandlerFunc[T any, P interface {
	*T
	Payload
}] func(ctx context.Context, p *peer, msg P) error

// Typed adapts h to a HandlerFunc that decodes and validates the payload first.
func Typed[T any, P interface {
	*T
	Payload
}](h TypedHandlerFunc[T, P]) HandlerFunc {
	return func(ctx context.Context, p *peer, payload []byte) error {
		var msg P = new(T)
		if err := json.Unmarshal(payload, msg); err != nil {
			return fmt.Errorf("%w: decode %T: %v", core.ErrProtocol, msg, err)
		}
		if err := msg.Validate(); err != nil {
			return err
		}
		return h(ctx, p, msg)
	}
}

// Dispatcher routes device envelopes to the service.
type Dispatcher struct {
	svc    DeviceService
	routes map[string]HandlerFunc
	log    log.Logger
}

func NewDispatcher(svc DeviceService) *Dispatcher {
	d := &Dispatcher{svc: svc, log: log.WithName("dispatcher")}
	d.routes = map[string]HandlerFunc{
		protocol.TypeRegister:    Typed(d.handleRegister),
		protocol.TypeHeartbeat:   Typed(d.handleHeartbeat),
		protocol.TypeOTARequest:  Typed(d.handleOTARequest),
		protocol.TypeOTAProgress: Typed(d.handleProgress),
		protocol.TypeOTAComplete: Typed(d.handleComplete),
		protocol.TypeOTAError:    Typed(d.handleFailure),
	}
	return d
}

// Dispatch handles one frame. Failures are logged and never close the connection.
func (d *Dispatcher) Dispatch(ctx context.Context, p *peer, data []byte) {
	typ, err := protocol.Peek(data)
	if err != nil {
		d.log.Warn("Ignoring malformed envelope", "conn", p.conn.ID(), "err", err.Error())
		return
	}

	route, ok := d.routes[typ]
	if !ok {
		d.log.Warn("Ignoring unknown envelope", "conn", p.conn.ID(), "type", typ)
		return
	}
	if !p.registered() && typ != protocol.TypeRegister && typ != protocol.TypeHeartbeat {
		d.log.Warn("Ignoring envelope from unregistered connection", "conn", p.conn.ID(), "type", typ)
		return
	}

	if err := route(ctx, p, data); err != nil {
		kv := []any{"conn", p.conn.ID(), "deviceID", p.deviceID, "type", typ}
		switch {
		case errors.Is(err, core.ErrValidation),
			errors.Is(err, core.ErrProtocol),
			errors.Is(err, core.ErrTransferInProgress):
			d.log.Warn("Envelope rejected", append(kv, "err", err.Error())...)
		case errors.Is(err, ErrConnClosed), errors.Is(err, context.Canceled):
			d.log.Debug("Reply not sent, connection closing", kv...)
		default:
			d.log.Error(err, "Envelope handling failed", kv...)
		}
	}
}

// Close releases the device session bound to p, if any.
func (d *Dispatcher) Close(p *peer) {
	if p.registered() {
		d.svc.DisconnectDevice(p.deviceID, p.conn)
	}
}

func (d *Dispatcher) handleRegister(ctx context.Context, p *peer, msg *protocol.Register) error {
	if p.registered() && p.deviceID != msg.DeviceID {
		d.log.Info("Connection re-registering", "conn", p.conn.ID(), "from", p.deviceID, "to", msg.DeviceID)
		d.svc.DisconnectDevice(p.deviceID, p.conn)
	}
	p.deviceID = msg.DeviceID
	return d.svc.RegisterDevice(ctx, msg.DeviceID, p.conn)
}

func (d *Dispatcher) handleHeartbeat(ctx context.Context, p *peer, _ *protocol.Heartbeat) error {
	return d.svc.Heartbeat(ctx, p.deviceID, p.conn)
}

func (d *Dispatcher) handleOTARequest(ctx context.Context, p *peer, msg *protocol.OTARequest) error {
	d.log.Info("Device requested firmware", "deviceID", p.deviceID, "url", msg.FirmwareURL)
	return d.svc.RequestTransfer(ctx, p.deviceID, p.conn, msg.FirmwareURL)
}

func (d *Dispatcher) handleProgress(_ context.Context, p *peer, msg *protocol.OTAProgress) error {
	d.log.Debug("Device progress", "deviceID", p.deviceID, "progress", *msg.Progress)
	return d.svc.ReportProgress(p.deviceID, p.conn, *msg.Progress)
}

func (d *Dispatcher) handleComplete(ctx context.Context, p *peer, _ *protocol.OTAComplete) error {
	return d.svc.CompleteTransfer(ctx, p.deviceID, p.conn)
}

func (d *Dispatcher) handleFailure(_ context.Context, p *peer, msg *protocol.OTAFailure) error {
	return d.svc.FailTransfer(p.deviceID, p.conn, msg.Message)
}
