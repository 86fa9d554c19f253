package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/autopeer-io/otahub/internal/otahub/core"
	"github.com/autopeer-io/otahub/internal/otahub/core/model"
	fsmutil "github.com/autopeer-io/otahub/internal/pkg/util/fsm"
)

// Session states.
const (
	StateIdle     = "idle"
	StateUpdating = "updating"
	StateClosed   = "closed"
)

// Session events.
const (
	EventStart    = "start"
	EventComplete = "complete"
	EventFail     = "fail"
	EventClose    = "close"
)

// Transfer identifies one streamer run started by BeginUpdate.
type Transfer struct {
	ID        uint64
	VersionID string

	ctx    context.Context
	cancel context.CancelFunc
}

// Context is cancelled when the transfer is finished, failed or the session closes.
func (t *Transfer) Context() context.Context {
	return t.ctx
}

// Session is the registry entry of one registered device.
type Session struct {
	DeviceID    string
	Handle      Handle
	ConnectedAt time.Time

	mu            sync.Mutex
	machine       *fsm.FSM
	lastHeartbeat time.Time
	versionID     string
	transfer      *Transfer
	streaming     bool
	nextID        uint64
}

func newSession(deviceID string, h Handle, now time.Time) *Session {
	s := &Session{
		DeviceID:    deviceID,
		Handle:      h,
		ConnectedAt: now,
	}

	events := fsm.Events{
		{Name: EventStart, Src: []string{StateIdle}, Dst: StateUpdating},
		{Name: EventComplete, Src: []string{StateUpdating}, Dst: StateIdle},
		{Name: EventFail, Src: []string{StateUpdating}, Dst: StateIdle},
		{Name: EventClose, Src: []string{StateIdle, StateUpdating}, Dst: StateClosed},
	}

	callbacks := fsm.Callbacks{
		"enter_" + StateUpdating: fsmutil.WrapEvent(s.enterUpdating),
		"leave_" + StateUpdating: fsmutil.WrapEvent(s.leaveUpdating),
	}

	s.machine = fsm.NewFSM(StateIdle, events, callbacks)
	return s
}

// enterUpdating records the version being delivered. Runs with s.mu held.
func (s *Session) enterUpdating(_ context.Context, e *fsm.Event) error {
	s.versionID = fsmutil.StringArg(e, 0)
	return nil
}

// leaveUpdating stops the streamer of the current transfer. Runs with s.mu held.
func (s *Session) leaveUpdating(_ context.Context, _ *fsm.Event) error {
	if s.transfer != nil {
		s.transfer.cancel()
	}
	return nil
}

// BeginUpdate moves an idle session to updating and returns the transfer
// handle for the streamer. The transfer context derives from parent.
func (s *Session) BeginUpdate(parent context.Context, versionID string) (*Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.machine.Is(StateClosed):
		return nil, core.ErrSessionClosed
	case s.streaming:
		// The previous streamer has not returned yet.
		return nil, core.ErrTransferInProgress
	}

	if err := s.machine.Event(context.Background(), EventStart, versionID); err != nil {
		if fsmutil.IsInvalidEvent(err) {
			return nil, core.ErrTransferInProgress
		}
		return nil, fmt.Errorf("start transfer: %w", err)
	}

	ctx, cancel := context.WithCancel(parent)
	s.nextID++
	t := &Transfer{ID: s.nextID, VersionID: versionID, ctx: ctx, cancel: cancel}
	s.transfer = t
	s.streaming = true
	return t, nil
}

// FinishUpdate applies a device-reported outcome and returns the version
// captured by BeginUpdate. Any running streamer is stopped.
func (s *Session) FinishUpdate(ok bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.machine.Is(StateClosed) {
		return "", core.ErrSessionClosed
	}

	event := EventFail
	if ok {
		event = EventComplete
	}

	versionID := s.versionID
	if err := s.machine.Event(context.Background(), event); err != nil {
		if fsmutil.IsInvalidEvent(err) {
			return "", core.ErrNotUpdating
		}
		return "", fmt.Errorf("finish transfer: %w", err)
	}
	s.versionID = ""
	return versionID, nil
}

// AbortTransfer fails t if it is still the session's current transfer and
// the device has not reported an outcome. It reports whether it did.
func (s *Session) AbortTransfer(t *Transfer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.transfer != t || !s.machine.Is(StateUpdating) {
		return false
	}
	if err := s.machine.Event(context.Background(), EventFail); err != nil {
		return false
	}
	s.versionID = ""
	return true
}

// EndTransfer marks the streamer of t as returned.
func (s *Session) EndTransfer(t *Transfer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.cancel()
	if s.transfer == t {
		s.streaming = false
	}
}

// Close moves the session to its terminal state and stops any transfer.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.machine.Is(StateClosed) {
		return
	}
	_ = s.machine.Event(context.Background(), EventClose)
	if s.transfer != nil {
		s.transfer.cancel()
	}
}

// Heartbeat records a heartbeat received at now.
func (s *Session) Heartbeat(now time.Time) {
	s.mu.Lock()
	s.lastHeartbeat = now
	s.mu.Unlock()
}

// State returns the fsm state.
func (s *Session) State() string {
	return s.machine.Current()
}

// Status maps the fsm state to the status shown to observers.
func (s *Session) Status() model.SessionStatus {
	if s.machine.Is(StateUpdating) {
		return model.StatusUpdating
	}
	return model.StatusConnected
}

// VersionID returns the version of the transfer in progress, if any.
func (s *Session) VersionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versionID
}

// Info returns a point-in-time view for observers.
func (s *Session) Info() model.DeviceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := model.DeviceInfo{
		DeviceID:    s.DeviceID,
		IP:          s.Handle.RemoteAddr(),
		Status:      s.Status(),
		ConnectedAt: s.ConnectedAt,
		VersionID:   s.versionID,
	}
	if !s.lastHeartbeat.IsZero() {
		hb := s.lastHeartbeat
		info.LastHeartbeat = &hb
	}
	return info
}
