package stream

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/autopeer-io/otahub/internal/otahub/core"
	"github.com/autopeer-io/otahub/internal/otahub/protocol"
	"github.com/autopeer-io/otahub/internal/otahub/session/sessiontest"
)

type fakeFetcher struct {
	data        []byte
	unknownSize bool
	err         error
	// short truncates the body while still announcing len(data).
	short int
}

func (f *fakeFetcher) Open(_ context.Context, _ string) (io.ReadCloser, int64, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	body := f.data
	if f.short > 0 {
		body = body[:f.short]
	}
	size := int64(len(f.data))
	if f.unknownSize {
		size = -1
	}
	return io.NopCloser(bytes.NewReader(body)), size, nil
}

func image(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	if n > 0 {
		b[0] = imageMagic
	}
	return b
}

func testConfig() Config {
	return Config{ChunkSize: 512, MaxFirmwareSize: 1 << 20}
}

func TestChunks(t *testing.T) {
	tests := []struct {
		size  int64
		chunk int
		want  int64
	}{
		{0, 512, 0},
		{1, 512, 1},
		{512, 512, 1},
		{513, 512, 2},
		{1300, 512, 3},
	}
	for _, tt := range tests {
		if got := Chunks(tt.size, tt.chunk); got != tt.want {
			t.Errorf("Chunks(%d, %d) = %d, want %d", tt.size, tt.chunk, got, tt.want)
		}
	}
}

func TestStreamDeliversImage(t *testing.T) {
	tests := []struct {
		name        string
		size        int
		unknownSize bool
	}{
		{"multiple chunks", 1300, false},
		{"exact chunk", 1024, false},
		{"unknown size", 1300, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := image(tt.size)
			h := sessiontest.NewHandle("dev")
			s := New(&fakeFetcher{data: img, unknownSize: tt.unknownSize}, testConfig())

			if err := s.Stream(context.Background(), h, "esp-1", "http://fw/app.bin"); err != nil {
				t.Fatalf("Stream: %v", err)
			}

			types := h.Types()
			want := int(Chunks(int64(tt.size), 512))
			if len(types) != want+2 || types[0] != protocol.TypeOTAStart || types[len(types)-1] != protocol.TypeOTAEnd {
				t.Fatalf("frames = %v", types)
			}

			start := sessiontest.Decode[protocol.OTAStart](t, h, protocol.TypeOTAStart)[0]
			if start.Size != int64(tt.size) || start.Chunks != int64(want) {
				t.Errorf("ota_start = %+v", start)
			}

			var got []byte
			for i, c := range sessiontest.Decode[protocol.OTAChunk](t, h, protocol.TypeOTAChunk) {
				if c.Offset != int64(i*512) || c.TotalSize != int64(tt.size) {
					t.Errorf("chunk %d = offset %d total %d", i, c.Offset, c.TotalSize)
				}
				data, err := base64.StdEncoding.DecodeString(c.Data)
				if err != nil {
					t.Fatalf("chunk %d: %v", i, err)
				}
				got = append(got, data...)
			}
			if !bytes.Equal(got, img) {
				t.Fatal("reassembled image differs from source")
			}
		})
	}
}

func TestStreamRejectsBadHeader(t *testing.T) {
	img := image(600)
	img[0] = 0x00
	h := sessiontest.NewHandle("dev")

	err := New(&fakeFetcher{data: img}, testConfig()).Stream(context.Background(), h, "esp-1", "http://fw/app.bin")
	if !errors.Is(err, core.ErrTransfer) {
		t.Fatalf("err = %v, want ErrTransfer", err)
	}

	types := h.Types()
	if len(types) != 1 || types[0] != protocol.TypeOTAError {
		t.Fatalf("frames = %v, want a single ota_error", types)
	}
	msg := sessiontest.Decode[protocol.OTAError](t, h, protocol.TypeOTAError)[0].Message
	if msg != BadImageMessage {
		t.Errorf("message = %q", msg)
	}
}

func TestStreamFetchFailure(t *testing.T) {
	h := sessiontest.NewHandle("dev")

	err := New(&fakeFetcher{err: errors.New("unexpected status 404")}, testConfig()).
		Stream(context.Background(), h, "esp-1", "http://fw/missing.bin")
	if !errors.Is(err, core.ErrTransfer) {
		t.Fatalf("err = %v, want ErrTransfer", err)
	}
	if got := h.Types(); len(got) != 1 || got[0] != protocol.TypeOTAError {
		t.Fatalf("frames = %v", got)
	}
	if msg := sessiontest.Decode[protocol.OTAError](t, h, protocol.TypeOTAError)[0].Message; !strings.Contains(msg, "404") {
		t.Errorf("message = %q", msg)
	}
}

func TestStreamEmptyImage(t *testing.T) {
	h := sessiontest.NewHandle("dev")

	if err := New(&fakeFetcher{data: []byte{}}, testConfig()).Stream(context.Background(), h, "esp-1", "http://fw/empty.bin"); err != nil {
		t.Fatalf("Stream: %v", err)
	}

	types := h.Types()
	if len(types) != 2 || types[0] != protocol.TypeOTAStart || types[1] != protocol.TypeOTAEnd {
		t.Fatalf("frames = %v", types)
	}
	start := sessiontest.Decode[protocol.OTAStart](t, h, protocol.TypeOTAStart)[0]
	if start.Size != 0 || start.Chunks != 0 {
		t.Errorf("ota_start = %+v", start)
	}
}

func TestStreamUnknownSizeTooLarge(t *testing.T) {
	h := sessiontest.NewHandle("dev")
	cfg := testConfig()
	cfg.MaxFirmwareSize = 1000

	err := New(&fakeFetcher{data: image(1001), unknownSize: true}, cfg).Stream(context.Background(), h, "esp-1", "http://fw/big.bin")
	if !errors.Is(err, core.ErrTransfer) {
		t.Fatalf("err = %v, want ErrTransfer", err)
	}
	if got := h.Types(); len(got) != 1 || got[0] != protocol.TypeOTAError {
		t.Fatalf("frames = %v", got)
	}
}

func TestStreamShortRead(t *testing.T) {
	h := sessiontest.NewHandle("dev")

	err := New(&fakeFetcher{data: image(1300), short: 700}, testConfig()).Stream(context.Background(), h, "esp-1", "http://fw/app.bin")
	if !errors.Is(err, core.ErrTransfer) {
		t.Fatalf("err = %v, want ErrTransfer", err)
	}

	types := h.Types()
	want := []string{protocol.TypeOTAStart, protocol.TypeOTAChunk, protocol.TypeOTAError}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Fatalf("frames = %v, want %v", types, want)
	}
}

func TestStreamStopsWhenConnectionCloses(t *testing.T) {
	h := sessiontest.NewHandle("dev")
	chunks := 0
	h.OnSend = func(data []byte) error {
		if typ, _ := protocol.Peek(data); typ == protocol.TypeOTAChunk {
			chunks++
			if chunks == 2 {
				_ = h.Close()
			}
		}
		return nil
	}

	err := New(&fakeFetcher{data: image(5000)}, testConfig()).Stream(context.Background(), h, "esp-1", "http://fw/app.bin")
	if !errors.Is(err, core.ErrTransferAborted) {
		t.Fatalf("err = %v, want ErrTransferAborted", err)
	}
	if h.Count(protocol.TypeOTAEnd) != 0 || h.Count(protocol.TypeOTAError) != 0 {
		t.Fatalf("no terminal envelope expected after close, got %v", h.Types())
	}
	if h.Count(protocol.TypeOTAChunk) != 2 {
		t.Fatalf("chunks = %d, want 2", h.Count(protocol.TypeOTAChunk))
	}
}

func TestStreamCancelled(t *testing.T) {
	h := sessiontest.NewHandle("dev")
	ctx, cancel := context.WithCancel(context.Background())
	h.OnSend = func(data []byte) error {
		if typ, _ := protocol.Peek(data); typ == protocol.TypeOTAChunk {
			cancel()
		}
		return nil
	}

	err := New(&fakeFetcher{data: image(5000)}, testConfig()).Stream(ctx, h, "esp-1", "http://fw/app.bin")
	if !errors.Is(err, core.ErrTransferAborted) {
		t.Fatalf("err = %v, want ErrTransferAborted", err)
	}
	if h.Count(protocol.TypeOTAEnd) != 0 {
		t.Fatal("cancelled transfer must not send ota_end")
	}
}

func TestFailureErrorMessage(t *testing.T) {
	img := image(10)
	img[0] = 0x01

	err := New(&fakeFetcher{data: img}, testConfig()).Stream(context.Background(), sessiontest.NewHandle("dev"), "esp-1", "http://fw/app.bin")
	var fe *FailureError
	if !errors.As(err, &fe) || fe.Message != BadImageMessage {
		t.Fatalf("err = %#v, want FailureError with header message", err)
	}
}

type blockingFetcher struct {
	opened chan struct{}
}

func (f *blockingFetcher) Open(ctx context.Context, _ string) (io.ReadCloser, int64, error) {
	close(f.opened)
	<-ctx.Done()
	return nil, 0, ctx.Err()
}

func TestStreamCloseInterruptsPacing(t *testing.T) {
	h := sessiontest.NewHandle("dev")
	h.OnSend = func(data []byte) error {
		if typ, _ := protocol.Peek(data); typ == protocol.TypeOTAChunk {
			go func() { _ = h.Close() }()
		}
		return nil
	}

	cfg := testConfig()
	cfg.ChunkInterval = time.Hour

	done := make(chan error, 1)
	go func() {
		done <- New(&fakeFetcher{data: image(5000)}, cfg).Stream(context.Background(), h, "esp-1", "http://fw/app.bin")
	}()

	select {
	case err := <-done:
		if !errors.Is(err, core.ErrTransferAborted) {
			t.Fatalf("err = %v, want ErrTransferAborted", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream kept waiting for the next chunk after the connection closed")
	}
	if n := h.Count(protocol.TypeOTAChunk); n != 1 {
		t.Fatalf("chunks = %d, want 1", n)
	}
}

func TestStreamCloseInterruptsFetch(t *testing.T) {
	h := sessiontest.NewHandle("dev")
	f := &blockingFetcher{opened: make(chan struct{})}

	done := make(chan error, 1)
	go func() {
		done <- New(f, testConfig()).Stream(context.Background(), h, "esp-1", "http://fw/app.bin")
	}()
	<-f.opened
	_ = h.Close()

	select {
	case err := <-done:
		if !errors.Is(err, core.ErrTransferAborted) {
			t.Fatalf("err = %v, want ErrTransferAborted", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream kept fetching after the connection closed")
	}
	if len(h.Frames()) != 0 {
		t.Fatalf("frames = %v, want none", h.Types())
	}
}
