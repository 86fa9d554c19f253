package core

import (
	"context"

	"github.com/autopeer-io/otahub/internal/otahub/core/model"
)

// Repository groups the metadata stores.
type Repository interface {
	Firmware() FirmwareRepository
	Device() DeviceRepository
}

// FirmwareRepository persists firmware version records.
type FirmwareRepository interface {
	// Create stores fw. A duplicate VersionID returns ErrConflict.
	Create(ctx context.Context, fw *model.Firmware) error

	// FindByVersionID returns ErrNotFound for an unknown version.
	FindByVersionID(ctx context.Context, versionID string) (*model.Firmware, error)

	// Get returns ErrNotFound for an unknown record id.
	Get(ctx context.Context, id string) (*model.Firmware, error)

	// List returns every record, newest upload first.
	List(ctx context.Context) ([]*model.Firmware, error)

	// Delete returns ErrNotFound for an unknown record id.
	Delete(ctx context.Context, id string) error
}

// DeviceRepository persists per-device firmware state.
type DeviceRepository interface {
	// UpdateLastVersion records versionID as applied on deviceID, creating the record if needed.
	UpdateLastVersion(ctx context.Context, deviceID, versionID string) error

	// Get returns ErrNotFound for a device that never completed an update.
	Get(ctx context.Context, deviceID string) (*model.Device, error)

	List(ctx context.Context) ([]*model.Device, error)
}
