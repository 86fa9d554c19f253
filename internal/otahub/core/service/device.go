package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/autopeer-io/otahub/internal/otahub/core"
	"github.com/autopeer-io/otahub/internal/otahub/core/model"
	"github.com/autopeer-io/otahub/internal/otahub/protocol"
	"github.com/autopeer-io/otahub/internal/otahub/session"
	"github.com/autopeer-io/otahub/pkg/log"
)

// RegisterDevice binds deviceID to h, replacing any previous session, and
// acknowledges with registered.
func (s *Service) RegisterDevice(ctx context.Context, deviceID string, h session.Handle) error {
	s.registry.Register(deviceID, h)
	log.Info("Device registered", "deviceID", deviceID, "remote", h.RemoteAddr())

	return session.Send(ctx, h, protocol.NewRegistered())
}

// DisconnectDevice drops the session of deviceID if it is still bound to h.
func (s *Service) DisconnectDevice(deviceID string, h session.Handle) bool {
	removed := s.registry.RemoveIf(deviceID, h)
	if removed {
		log.Info("Device disconnected", "deviceID", deviceID)
	}
	return removed
}

// Heartbeat records liveness for a registered device and always acknowledges.
func (s *Service) Heartbeat(ctx context.Context, deviceID string, h session.Handle) error {
	if sess, err := s.owned(deviceID, h); err == nil {
		sess.Heartbeat(s.clock.Now())
	}
	return session.Send(ctx, h, protocol.NewHeartbeatAck())
}

// AddObserver subscribes h to fleet events and sends it the current device list.
func (s *Service) AddObserver(ctx context.Context, h session.Handle) error {
	s.fanout.AddObserver(h)
	log.Info("Observer connected", "conn", h.ID(), "remote", h.RemoteAddr())

	return session.Send(ctx, h, protocol.NewDeviceList(s.registry.Snapshot()))
}

func (s *Service) RemoveObserver(h session.Handle) {
	s.fanout.RemoveObserver(h)
	log.Info("Observer disconnected", "conn", h.ID())
}

// Devices lists the registered devices ordered by id.
func (s *Service) Devices() []model.DeviceInfo {
	return s.registry.Snapshot()
}

// DeviceState returns the persisted firmware state of deviceID.
func (s *Service) DeviceState(ctx context.Context, deviceID string) (*model.Device, error) {
	d, err := s.device.Get(ctx, deviceID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.NewError(core.ErrNotFound, "device not found")
		}
		return nil, fmt.Errorf("load device %q: %w", deviceID, err)
	}
	return d, nil
}

// online returns the session of deviceID if its connection is still open.
func (s *Service) online(deviceID string) (*session.Session, error) {
	sess, ok := s.registry.Lookup(deviceID)
	if !ok || !sess.Handle.Open() {
		return nil, fmt.Errorf("device %q: %w", deviceID, core.ErrOffline)
	}
	return sess, nil
}

// owned returns the session of deviceID while it is bound to h.
func (s *Service) owned(deviceID string, h session.Handle) (*session.Session, error) {
	sess, ok := s.registry.Lookup(deviceID)
	if !ok || sess.Handle != h {
		return nil, fmt.Errorf("%w: device %q is not registered on this connection", core.ErrProtocol, deviceID)
	}
	return sess, nil
}
