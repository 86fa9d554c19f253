package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/autopeer-io/otahub/internal/otahub/core"
	"github.com/autopeer-io/otahub/internal/otahub/core/model"
	"github.com/autopeer-io/otahub/internal/otahub/session/sessiontest"
)

func newTestSession() *Session {
	return newSession("esp-1", sessiontest.NewHandle("10.0.0.1:5000"), time.Unix(1700000000, 0))
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestSession()
	if s.State() != StateIdle || s.Status() != model.StatusConnected {
		t.Fatalf("new session state = %s/%s", s.State(), s.Status())
	}

	tr, err := s.BeginUpdate(context.Background(), "v2")
	if err != nil {
		t.Fatalf("BeginUpdate: %v", err)
	}
	if s.Status() != model.StatusUpdating || s.VersionID() != "v2" {
		t.Fatalf("after start: %s version %q", s.Status(), s.VersionID())
	}

	if _, err := s.BeginUpdate(context.Background(), "v3"); !errors.Is(err, core.ErrTransferInProgress) {
		t.Fatalf("second BeginUpdate = %v, want ErrTransferInProgress", err)
	}

	version, err := s.FinishUpdate(true)
	if err != nil || version != "v2" {
		t.Fatalf("FinishUpdate = %q, %v", version, err)
	}
	if tr.Context().Err() == nil {
		t.Fatal("transfer context should be cancelled when the device reports an outcome")
	}

	// The streamer has not returned yet.
	if _, err := s.BeginUpdate(context.Background(), "v3"); !errors.Is(err, core.ErrTransferInProgress) {
		t.Fatalf("BeginUpdate before EndTransfer = %v", err)
	}
	s.EndTransfer(tr)
	if _, err := s.BeginUpdate(context.Background(), "v3"); err != nil {
		t.Fatalf("BeginUpdate after EndTransfer: %v", err)
	}
}

func TestSessionFinishWithoutTransfer(t *testing.T) {
	s := newTestSession()
	if _, err := s.FinishUpdate(false); !errors.Is(err, core.ErrNotUpdating) {
		t.Fatalf("FinishUpdate on idle = %v, want ErrNotUpdating", err)
	}
}

func TestSessionAbortTransfer(t *testing.T) {
	s := newTestSession()

	first, _ := s.BeginUpdate(context.Background(), "v1")
	if !s.AbortTransfer(first) {
		t.Fatal("AbortTransfer of current transfer should succeed")
	}
	if s.State() != StateIdle {
		t.Fatalf("state after abort = %s", s.State())
	}
	if s.AbortTransfer(first) {
		t.Fatal("second AbortTransfer should be a no-op")
	}
	s.EndTransfer(first)

	second, _ := s.BeginUpdate(context.Background(), "v2")
	if s.AbortTransfer(first) {
		t.Fatal("stale transfer must not abort its successor")
	}
	if _, err := s.FinishUpdate(false); err != nil {
		t.Fatalf("FinishUpdate: %v", err)
	}
	if s.AbortTransfer(second) {
		t.Fatal("abort after device outcome should be a no-op")
	}
}

func TestSessionClose(t *testing.T) {
	s := newTestSession()
	tr, _ := s.BeginUpdate(context.Background(), "v1")

	s.Close()
	s.Close()

	if s.State() != StateClosed {
		t.Fatalf("state = %s, want closed", s.State())
	}
	if tr.Context().Err() == nil {
		t.Fatal("close should cancel the running transfer")
	}
	if _, err := s.BeginUpdate(context.Background(), "v2"); !errors.Is(err, core.ErrSessionClosed) {
		t.Fatalf("BeginUpdate on closed = %v", err)
	}
	if _, err := s.FinishUpdate(true); !errors.Is(err, core.ErrSessionClosed) {
		t.Fatalf("FinishUpdate on closed = %v", err)
	}
}

func TestSessionTransferFollowsParent(t *testing.T) {
	s := newTestSession()
	parent, cancel := context.WithCancel(context.Background())

	tr, _ := s.BeginUpdate(parent, "v1")
	cancel()

	select {
	case <-tr.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("transfer context did not follow its parent")
	}
}

func TestSessionInfo(t *testing.T) {
	s := newTestSession()
	if s.Info().LastHeartbeat != nil {
		t.Fatal("no heartbeat yet")
	}

	hb := time.Unix(1700000100, 0)
	s.Heartbeat(hb)
	_, _ = s.BeginUpdate(context.Background(), "v9")

	info := s.Info()
	if info.DeviceID != "esp-1" || info.IP != "10.0.0.1:5000" {
		t.Errorf("identity = %+v", info)
	}
	if info.LastHeartbeat == nil || !info.LastHeartbeat.Equal(hb) {
		t.Errorf("LastHeartbeat = %v, want %v", info.LastHeartbeat, hb)
	}
	if info.Status != model.StatusUpdating || info.VersionID != "v9" {
		t.Errorf("status = %s version %q", info.Status, info.VersionID)
	}
}
