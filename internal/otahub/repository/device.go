package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/autopeer-io/otahub/internal/otahub/core"
	"github.com/autopeer-io/otahub/internal/otahub/core/model"
)

type deviceRepo struct {
	s *Store
}

func (r *deviceRepo) UpdateLastVersion(_ context.Context, deviceID, versionID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	prev := r.s.devices[deviceID]
	r.s.devices[deviceID] = &model.Device{
		DeviceID:  deviceID,
		VersionID: versionID,
		UpdatedAt: time.Now().UTC(),
	}
	if err := r.s.save(); err != nil {
		if prev != nil {
			r.s.devices[deviceID] = prev
		} else {
			delete(r.s.devices, deviceID)
		}
		return err
	}
	return nil
}

func (r *deviceRepo) Get(_ context.Context, deviceID string) (*model.Device, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	d, ok := r.s.devices[deviceID]
	if !ok {
		return nil, fmt.Errorf("device %q: %w", deviceID, core.ErrNotFound)
	}
	cp := *d
	return &cp, nil
}

func (r *deviceRepo) List(_ context.Context) ([]*model.Device, error) {
	r.s.mu.RLock()
	out := make([]*model.Device, 0, len(r.s.devices))
	for _, d := range r.s.devices {
		cp := *d
		out = append(out, &cp)
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}
