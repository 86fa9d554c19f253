package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/autopeer-io/otahub/internal/otahub/core"
	"github.com/autopeer-io/otahub/internal/otahub/core/model"
)

type firmwareRepo struct {
	s *Store
}

func (r *firmwareRepo) Create(_ context.Context, fw *model.Firmware) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, existing := range r.s.firmware {
		if existing.VersionID == fw.VersionID {
			return fmt.Errorf("firmware version %q: %w", fw.VersionID, core.ErrConflict)
		}
	}
	if _, ok := r.s.firmware[fw.ID]; ok {
		return fmt.Errorf("firmware record %q: %w", fw.ID, core.ErrConflict)
	}

	cp := *fw
	r.s.firmware[fw.ID] = &cp
	if err := r.s.save(); err != nil {
		delete(r.s.firmware, fw.ID)
		return err
	}
	return nil
}

func (r *firmwareRepo) FindByVersionID(_ context.Context, versionID string) (*model.Firmware, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, fw := range r.s.firmware {
		if fw.VersionID == versionID {
			cp := *fw
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("firmware version %q: %w", versionID, core.ErrNotFound)
}

func (r *firmwareRepo) Get(_ context.Context, id string) (*model.Firmware, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	fw, ok := r.s.firmware[id]
	if !ok {
		return nil, fmt.Errorf("firmware record %q: %w", id, core.ErrNotFound)
	}
	cp := *fw
	return &cp, nil
}

func (r *firmwareRepo) List(_ context.Context) ([]*model.Firmware, error) {
	r.s.mu.RLock()
	out := make([]*model.Firmware, 0, len(r.s.firmware))
	for _, fw := range r.s.firmware {
		cp := *fw
		out = append(out, &cp)
	}
	r.s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadDate.Equal(out[j].UploadDate) {
			return out[i].UploadDate.After(out[j].UploadDate)
		}
		return out[i].VersionID < out[j].VersionID
	})
	return out, nil
}

func (r *firmwareRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	fw, ok := r.s.firmware[id]
	if !ok {
		return fmt.Errorf("firmware record %q: %w", id, core.ErrNotFound)
	}
	delete(r.s.firmware, id)
	if err := r.s.save(); err != nil {
		r.s.firmware[id] = fw
		return err
	}
	return nil
}
