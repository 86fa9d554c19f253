package session

import (
	"sort"
	"sync"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/otahub/internal/otahub/core/model"
	"github.com/autopeer-io/otahub/internal/otahub/protocol"
	"github.com/autopeer-io/otahub/internal/pkg/metrics"
	"github.com/autopeer-io/otahub/pkg/log"
)

// Broadcaster delivers an event to every observer.
type Broadcaster interface {
	Broadcast(m protocol.Message) int
}

// Registry maps device ids to their live session. At most one session
// exists per device id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	clock  clock.PassiveClock
	events Broadcaster
	log    log.Logger
}

// NewRegistry returns an empty Registry announcing changes through events.
func NewRegistry(clk clock.PassiveClock, events Broadcaster) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		clock:    clk,
		events:   events,
		log:      log.WithName("registry"),
	}
}

// Register creates the session for deviceID, replacing any previous one.
// A replaced session is closed, and so is its connection when it differs from h.
func (r *Registry) Register(deviceID string, h Handle) *Session {
	now := r.clock.Now()
	s := newSession(deviceID, h, now)

	r.mu.Lock()
	old := r.sessions[deviceID]
	r.sessions[deviceID] = s
	n := len(r.sessions)
	r.mu.Unlock()

	metrics.ConnectedDevices.Set(float64(n))

	if old != nil {
		old.Close()
		if old.Handle != h {
			r.log.Info("Closing superseded connection", "deviceID", deviceID, "conn", old.Handle.ID(), "replacedBy", h.ID())
			_ = old.Handle.Close()
		}
	}

	r.events.Broadcast(protocol.NewDeviceConnected(deviceID, h.RemoteAddr(), now))
	return s
}

// Lookup returns the session registered for deviceID.
func (r *Registry) Lookup(deviceID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[deviceID]
	return s, ok
}

// RemoveIf drops the session for deviceID only while it is bound to h, so
// that a superseded connection closing late cannot evict its replacement.
func (r *Registry) RemoveIf(deviceID string, h Handle) bool {
	r.mu.Lock()
	s, ok := r.sessions[deviceID]
	if !ok || s.Handle != h {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, deviceID)
	n := len(r.sessions)
	r.mu.Unlock()

	metrics.ConnectedDevices.Set(float64(n))
	s.Close()
	r.events.Broadcast(protocol.NewDeviceDisconnected(deviceID))
	return true
}

// Snapshot lists every session ordered by device id.
func (r *Registry) Snapshot() []model.DeviceInfo {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	infos := make([]model.DeviceInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].DeviceID < infos[j].DeviceID })
	return infos
}
