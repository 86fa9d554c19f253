// Package repository keeps firmware and device metadata in memory, with
// optional persistence to a JSON file.
package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/autopeer-io/otahub/internal/otahub/core"
	"github.com/autopeer-io/otahub/internal/otahub/core/model"
)

const stateFile = "otahub.json"

var _ core.Repository = (*Store)(nil)

// state is the on-disk layout.
type state struct {
	Firmware []*model.Firmware `json:"firmware"`
	Devices  []*model.Device   `json:"devices"`
}

// Store implements core.Repository.
type Store struct {
	mu       sync.RWMutex
	path     string
	firmware map[string]*model.Firmware
	devices  map[string]*model.Device
}

// NewMemory returns a Store that is never persisted.
func NewMemory() *Store {
	return &Store{
		firmware: make(map[string]*model.Firmware),
		devices:  make(map[string]*model.Device),
	}
}

// Open loads the Store persisted in dir, creating dir when missing. An empty
// dir returns NewMemory().
func Open(dir string) (*Store, error) {
	s := NewMemory()
	if dir == "" {
		return s, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s.path = filepath.Join(dir, stateFile)

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Firmware() core.FirmwareRepository { return &firmwareRepo{s} }

func (s *Store) Device() core.DeviceRepository { return &deviceRepo{s} }

func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", s.path, err)
	}

	var st state
	if err := json.Unmarshal(b, &st); err != nil {
		return fmt.Errorf("decode %s: %w", s.path, err)
	}
	for _, fw := range st.Firmware {
		s.firmware[fw.ID] = fw
	}
	for _, d := range st.Devices {
		s.devices[d.DeviceID] = d
	}
	return nil
}

// save writes the current state. Callers hold s.mu.
func (s *Store) save() error {
	if s.path == "" {
		return nil
	}

	st := state{
		Firmware: make([]*model.Firmware, 0, len(s.firmware)),
		Devices:  make([]*model.Device, 0, len(s.devices)),
	}
	for _, fw := range s.firmware {
		st.Firmware = append(st.Firmware, fw)
	}
	for _, d := range s.devices {
		st.Devices = append(st.Devices, d)
	}

	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	return os.Rename(tmp, s.path)
}
