package ws

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/autopeer-io/otahub/internal/otahub/session"
	"github.com/autopeer-io/otahub/internal/otahub/session/sessiontest"
)

type recordingService struct {
	calls []string
}

func (r *recordingService) record(format string, args ...any) {
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *recordingService) RegisterDevice(_ context.Context, id string, _ session.Handle) error {
	r.record("register %s", id)
	return nil
}

func (r *recordingService) DisconnectDevice(id string, _ session.Handle) bool {
	r.record("disconnect %s", id)
	return true
}

func (r *recordingService) Heartbeat(_ context.Context, id string, _ session.Handle) error {
	r.record("heartbeat %s", id)
	return nil
}

func (r *recordingService) RequestTransfer(_ context.Context, id string, _ session.Handle, url string) error {
	r.record("request %s %s", id, url)
	return nil
}

func (r *recordingService) ReportProgress(id string, _ session.Handle, p float64) error {
	r.record("progress %s %v", id, p)
	return nil
}

func (r *recordingService) CompleteTransfer(_ context.Context, id string, _ session.Handle) error {
	r.record("complete %s", id)
	return nil
}

func (r *recordingService) FailTransfer(id string, _ session.Handle, msg string) error {
	r.record("fail %s %s", id, msg)
	return nil
}

func (r *recordingService) AddObserver(context.Context, session.Handle) error { return nil }
func (r *recordingService) RemoveObserver(session.Handle)                     {}

func TestDispatcher(t *testing.T) {
	tests := []struct {
		name   string
		frames []string
		want   []string
	}{
		{
			name: "unregistered gate",
			frames: []string{
				`{"type":"ota_request","firmwareUrl":"http://fw/a.bin"}`,
				`{"type":"ota_progress","progress":5}`,
				`{"type":"heartbeat"}`,
			},
			want: []string{"heartbeat "},
		},
		{
			name: "validation before state",
			frames: []string{
				`{"type":"register","deviceId":"esp-1"}`,
				`{"type":"ota_request","firmwareUrl":"ftp://fw/a.bin"}`,
				`{"type":"ota_progress","progress":140}`,
				`{"type":"ota_progress"}`,
				`{"type":"ota_request","firmwareUrl":"s3://firmware/ota/a.bin"}`,
				`{"type":"ota_progress","progress":12.5}`,
				`{"type":"ota_error","message":"flash write failed"}`,
			},
			want: []string{
				"register esp-1",
				"request esp-1 s3://firmware/ota/a.bin",
				"progress esp-1 12.5",
				"fail esp-1 flash write failed",
			},
		},
		{
			name: "re-register under a new id",
			frames: []string{
				`{"type":"register","deviceId":"esp-1"}`,
				`{"type":"register","deviceId":"esp-2"}`,
				`{"type":"ota_complete"}`,
			},
			want: []string{"register esp-1", "disconnect esp-1", "register esp-2", "complete esp-2"},
		},
		{
			name: "garbage ignored",
			frames: []string{
				`{"type":`,
				`{"deviceId":"esp-1"}`,
				`{"type":"reboot"}`,
				`{"type":"register","deviceId":"bad id"}`,
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &recordingService{}
			d := NewDispatcher(svc)
			p := &peer{conn: sessiontest.NewHandle("dev")}

			for _, f := range tt.frames {
				d.Dispatch(context.Background(), p, []byte(f))
			}
			if strings.Join(svc.calls, "|") != strings.Join(tt.want, "|") {
				t.Fatalf("calls = %q, want %q", svc.calls, tt.want)
			}
		})
	}
}

func TestDispatcherCloseReleasesSession(t *testing.T) {
	svc := &recordingService{}
	d := NewDispatcher(svc)

	anon := &peer{conn: sessiontest.NewHandle("a")}
	d.Close(anon)
	if len(svc.calls) != 0 {
		t.Fatalf("closing an unregistered peer called %v", svc.calls)
	}

	p := &peer{conn: sessiontest.NewHandle("b")}
	d.Dispatch(context.Background(), p, []byte(`{"type":"register","deviceId":"esp-9"}`))
	d.Close(p)
	if got := svc.calls[len(svc.calls)-1]; got != "disconnect esp-9" {
		t.Fatalf("last call = %q", got)
	}
}
