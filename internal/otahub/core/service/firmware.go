package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/autopeer-io/otahub/internal/otahub/core"
	"github.com/autopeer-io/otahub/internal/otahub/core/model"
	"github.com/autopeer-io/otahub/pkg/log"
)

const firmwareContentType = "application/octet-stream"

// UploadRequest is one firmware image submitted for a new version.
type UploadRequest struct {
	VersionID   string
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UploadFirmware stores the image and creates its version record.
func (s *Service) UploadFirmware(ctx context.Context, req UploadRequest) (*model.Firmware, error) {
	if req.VersionID == "" {
		return nil, core.NewError(core.ErrValidation, "Version Id required")
	}
	if req.Body == nil || req.FileName == "" {
		return nil, core.NewError(core.ErrValidation, "OTA .bin file required")
	}
	if !strings.HasSuffix(strings.ToLower(req.FileName), ".bin") && req.ContentType != firmwareContentType {
		return nil, core.NewError(core.ErrValidation, "Only .bin files are allowed")
	}

	switch _, err := s.firmware.FindByVersionID(ctx, req.VersionID); {
	case err == nil:
		return nil, core.NewError(core.ErrConflict, "versionId already exists")
	case !errors.Is(err, core.ErrNotFound):
		return nil, fmt.Errorf("find firmware %q: %w", req.VersionID, err)
	}

	now := s.clock.Now()
	name := path.Base(req.FileName)
	key := fmt.Sprintf("ota/%d-%s", now.UnixMilli(), name)

	if err := s.storage.PutObject(ctx, key, req.Body, req.Size, firmwareContentType); err != nil {
		return nil, fmt.Errorf("store firmware: %w", err)
	}

	url, err := s.storage.GeneratePresignedURL(ctx, key, s.urlExpiry)
	if err != nil {
		s.discard(key)
		return nil, fmt.Errorf("presign firmware: %w", err)
	}

	fw := &model.Firmware{
		ID:         uuid.NewString(),
		VersionID:  req.VersionID,
		FileName:   name,
		ObjectKey:  key,
		URL:        url,
		SourceURL:  s.storage.ObjectURL(key),
		FileSize:   req.Size,
		UploadDate: now,
	}
	if err := s.firmware.Create(ctx, fw); err != nil {
		s.discard(key)
		if errors.Is(err, core.ErrConflict) {
			return nil, core.NewError(core.ErrConflict, "versionId already exists")
		}
		return nil, fmt.Errorf("create firmware record: %w", err)
	}

	log.Info("Firmware uploaded", "versionID", fw.VersionID, "key", key, "size", fw.FileSize)
	return fw, nil
}

// ListFirmware returns every version, newest upload first.
func (s *Service) ListFirmware(ctx context.Context) ([]*model.Firmware, error) {
	return s.firmware.List(ctx)
}

// DeleteFirmware removes the image and then the record of id.
func (s *Service) DeleteFirmware(ctx context.Context, id string) error {
	fw, err := s.firmware.Get(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.NewError(core.ErrNotFound, "OTA not found")
		}
		return fmt.Errorf("get firmware %q: %w", id, err)
	}

	if fw.ObjectKey != "" {
		if err := s.storage.RemoveObject(ctx, fw.ObjectKey); err != nil {
			return fmt.Errorf("remove firmware object: %w", err)
		}
	}
	if err := s.firmware.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete firmware record: %w", err)
	}

	log.Info("Firmware deleted", "versionID", fw.VersionID, "key", fw.ObjectKey)
	return nil
}

// discard removes an object left behind by a failed upload.
func (s *Service) discard(key string) {
	if err := s.storage.RemoveObject(context.WithoutCancel(s.ctx), key); err != nil {
		log.Error(err, "Failed to remove orphaned firmware object", "key", key)
	}
}
