package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/autopeer-io/otahub/internal/otahub/core"
	"github.com/autopeer-io/otahub/internal/otahub/core/model"
	"github.com/autopeer-io/otahub/internal/otahub/protocol"
	"github.com/autopeer-io/otahub/internal/otahub/session"
	"github.com/autopeer-io/otahub/internal/otahub/stream"
	"github.com/autopeer-io/otahub/internal/pkg/metrics"
	"github.com/autopeer-io/otahub/pkg/log"
)

// RequestTransfer starts a device-initiated transfer of url. No version is
// recorded when it completes.
func (s *Service) RequestTransfer(_ context.Context, deviceID string, h session.Handle, url string) error {
	sess, err := s.owned(deviceID, h)
	if err != nil {
		return err
	}

	t, err := sess.BeginUpdate(s.ctx, "")
	if err != nil {
		return err
	}
	s.run(sess, t, url)
	return nil
}

// StartBatch starts versionID on every listed device that is online and
// idle, then announces the outcome to observers with ota_batch_start.
func (s *Service) StartBatch(ctx context.Context, versionID string, deviceIDs []string) ([]model.BatchTarget, error) {
	if versionID == "" || len(deviceIDs) == 0 {
		return nil, core.NewError(core.ErrValidation, "versionId and devices[] required")
	}

	fw, err := s.firmware.FindByVersionID(ctx, versionID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.NewError(core.ErrNotFound, "version not found")
		}
		return nil, fmt.Errorf("find firmware %q: %w", versionID, err)
	}

	type pending struct {
		sess *session.Session
		t    *session.Transfer
	}

	var (
		targets []model.BatchTarget
		started []pending
		seen    = make(map[string]struct{}, len(deviceIDs))
	)
	for _, id := range deviceIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		target := model.BatchTarget{DeviceID: id, Status: model.TargetOffline}
		sess, err := s.online(id)
		if err == nil {
			var t *session.Transfer
			if t, err = sess.BeginUpdate(s.ctx, versionID); err == nil {
				started = append(started, pending{sess, t})
			}
		}
		switch {
		case err == nil:
			target.Status = model.TargetStarted
		case errors.Is(err, core.ErrTransferInProgress):
			target.Status = model.TargetBusy
		case errors.Is(err, core.ErrOffline), errors.Is(err, core.ErrSessionClosed):
			// Reported offline.
		default:
			log.Warn("Batch target not started", "deviceID", id, "err", err.Error())
		}
		targets = append(targets, target)
	}

	log.Info("Batch update triggered", "versionID", versionID, "requested", len(seen), "started", len(started))
	s.fanout.Broadcast(protocol.NewBatchStart(versionID, targets))

	for _, p := range started {
		s.run(p.sess, p.t, fw.StreamURL())
	}
	return targets, nil
}

// ReportProgress relays a device progress report to observers.
func (s *Service) ReportProgress(deviceID string, h session.Handle, progress float64) error {
	sess, err := s.owned(deviceID, h)
	if err != nil {
		return err
	}
	if sess.State() != session.StateUpdating {
		return fmt.Errorf("%w: ota_progress: %w", core.ErrProtocol, core.ErrNotUpdating)
	}

	s.fanout.Broadcast(protocol.NewProgressEvent(deviceID, progress))
	return nil
}

// CompleteTransfer ends the transfer of deviceID successfully and records the
// delivered version, if any.
func (s *Service) CompleteTransfer(ctx context.Context, deviceID string, h session.Handle) error {
	sess, err := s.owned(deviceID, h)
	if err != nil {
		return err
	}

	versionID, err := sess.FinishUpdate(true)
	if err != nil {
		return fmt.Errorf("%w: ota_complete: %w", core.ErrProtocol, err)
	}

	if versionID != "" {
		if err := s.device.UpdateLastVersion(ctx, deviceID, versionID); err != nil {
			log.Error(err, "Failed to record device version", "deviceID", deviceID, "versionID", versionID)
		}
	}

	log.Info("Firmware update completed", "deviceID", deviceID, "versionID", versionID)
	s.fanout.Broadcast(protocol.NewOTAResult(deviceID, protocol.ResultSuccess, "", versionID))
	return nil
}

// FailTransfer ends the transfer of deviceID with the failure the device reported.
func (s *Service) FailTransfer(deviceID string, h session.Handle, message string) error {
	sess, err := s.owned(deviceID, h)
	if err != nil {
		return err
	}

	versionID, err := sess.FinishUpdate(false)
	if err != nil {
		return fmt.Errorf("%w: ota_error: %w", core.ErrProtocol, err)
	}

	log.Warn("Device reported firmware update failure", "deviceID", deviceID, "versionID", versionID, "message", message)
	s.fanout.Broadcast(protocol.NewOTAResult(deviceID, protocol.ResultFail, message, versionID))
	return nil
}

// run streams url for t in a new goroutine.
func (s *Service) run(sess *session.Session, t *session.Transfer, url string) {
	s.transfers.Add(1)
	go func() {
		defer s.transfers.Done()
		defer sess.EndTransfer(t)

		start := s.clock.Now()
		err := s.streamer.Stream(t.Context(), sess.Handle, sess.DeviceID, url)

		var failure *stream.FailureError
		switch {
		case err == nil:
			metrics.TransfersTotal.WithLabelValues(metrics.ResultDelivered).Inc()
			metrics.TransferDuration.Observe(s.clock.Since(start).Seconds())

		case errors.As(err, &failure):
			metrics.TransfersTotal.WithLabelValues(metrics.ResultFailed).Inc()
			log.Error(err, "Firmware transfer failed", "deviceID", sess.DeviceID, "url", url)
			if sess.AbortTransfer(t) {
				s.fanout.Broadcast(protocol.NewOTAResult(sess.DeviceID, protocol.ResultFail, failure.Message, t.VersionID))
			}

		default:
			metrics.TransfersTotal.WithLabelValues(metrics.ResultAborted).Inc()
			log.Info("Firmware transfer stopped", "deviceID", sess.DeviceID, "reason", err.Error())
		}
	}()
}
