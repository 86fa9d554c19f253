// Package stream delivers a firmware image to one device as a sequence of
// ota_start, ota_chunk and ota_end envelopes.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"golang.org/x/time/rate"

	"github.com/autopeer-io/otahub/internal/otahub/core"
	"github.com/autopeer-io/otahub/internal/otahub/protocol"
	"github.com/autopeer-io/otahub/internal/pkg/metrics"
	"github.com/autopeer-io/otahub/pkg/log"
)

// ESP32 application images start with this byte.
const imageMagic = 0xE9

// BadImageMessage is sent to a device for an image without the ESP32 header.
const BadImageMessage = "Invalid ESP32 firmware (missing 0xE9 header)"

// FailureError is a transfer stopped by the server. Message is what the
// device was told in ota_error.
type FailureError struct {
	Message string
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("%v: %s", core.ErrTransfer, e.Message)
}

func (e *FailureError) Unwrap() error { return core.ErrTransfer }

// Target is the device connection a transfer writes to.
type Target interface {
	Send(ctx context.Context, data []byte) error
	Open() bool

	// Done is closed when the connection goes away.
	Done() <-chan struct{}
}

// Config tunes chunking and pacing.
type Config struct {
	// ChunkSize is the number of image bytes per ota_chunk.
	ChunkSize int

	// ChunkInterval is the minimum gap between chunks. Zero disables pacing.
	ChunkInterval time.Duration

	// StartDelay is the pause between ota_start and the first chunk.
	StartDelay time.Duration

	// MaxFirmwareSize bounds images whose size is not known up front.
	MaxFirmwareSize int64
}

// Streamer fetches images and writes them to devices.
type Streamer struct {
	fetcher core.BlobFetcher
	cfg     Config
}

// New returns a Streamer reading images through fetcher.
func New(fetcher core.BlobFetcher, cfg Config) *Streamer {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 512
	}
	return &Streamer{fetcher: fetcher, cfg: cfg}
}

// Chunks returns the number of chunks needed for size bytes.
func Chunks(size int64, chunkSize int) int64 {
	if size <= 0 {
		return 0
	}
	c := int64(chunkSize)
	return (size + c - 1) / c
}

// Stream fetches url and delivers it to target. It returns nil once ota_end
// was queued, a *FailureError after telling the device why with ota_error,
// or ErrTransferAborted when the connection or ctx went away.
func (s *Streamer) Stream(ctx context.Context, target Target, deviceID, url string) error {
	logger := log.WithName("stream").WithValues("deviceID", deviceID)

	// A closed connection also interrupts a pending fetch or pacing wait.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-target.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	body, size, err := s.open(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", core.ErrTransferAborted, ctx.Err())
		}
		return s.fail(ctx, target, err.Error())
	}
	defer body.Close()

	r := bufio.NewReaderSize(body, s.cfg.ChunkSize)
	if size > 0 {
		head, err := r.Peek(1)
		if err != nil {
			return s.fail(ctx, target, fmt.Sprintf("read firmware header: %v", err))
		}
		if head[0] != imageMagic {
			return s.fail(ctx, target, BadImageMessage)
		}
	}

	chunks := Chunks(size, s.cfg.ChunkSize)
	logger.Info("Starting firmware transfer", "url", url, "size", size, "chunks", chunks)

	if err := s.send(ctx, target, protocol.NewOTAStart(size, chunks)); err != nil {
		return err
	}
	if err := sleep(ctx, s.cfg.StartDelay); err != nil {
		return aborted(err)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if s.cfg.ChunkInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(s.cfg.ChunkInterval), 1)
	}

	buf := make([]byte, s.cfg.ChunkSize)
	var offset int64
	for {
		if !target.Open() {
			logger.Info("Connection closed mid-transfer", "offset", offset)
			return core.ErrTransferAborted
		}
		if offset >= size {
			if err := s.send(ctx, target, protocol.NewOTAEnd()); err != nil {
				return err
			}
			logger.Info("Firmware transfer delivered", "size", size)
			return nil
		}

		if err := limiter.Wait(ctx); err != nil {
			return aborted(err)
		}

		n := int64(len(buf))
		if remaining := size - offset; remaining < n {
			n = remaining
		}
		if _, err := io.ReadFull(r, buf[:n]); err != nil {
			return s.fail(ctx, target, fmt.Sprintf("read firmware at offset %d: %v", offset, err))
		}

		chunk := protocol.NewOTAChunk(offset, base64.StdEncoding.EncodeToString(buf[:n]), size)
		if err := s.send(ctx, target, chunk); err != nil {
			return err
		}
		metrics.ChunksSent.Inc()
		offset += n
	}
}

// open resolves the image and its size. Bodies of unknown length are
// buffered so the size can be announced in ota_start.
func (s *Streamer) open(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	body, size, err := s.fetcher.Open(ctx, url)
	if err != nil {
		return nil, 0, err
	}
	if size >= 0 {
		return body, size, nil
	}
	defer body.Close()

	limit := s.cfg.MaxFirmwareSize
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, 0, fmt.Errorf("read firmware: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, 0, fmt.Errorf("firmware exceeds %d bytes", limit)
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

// fail tells the device why the transfer stopped.
func (s *Streamer) fail(ctx context.Context, target Target, msg string) error {
	if target.Open() {
		_ = s.send(ctx, target, protocol.NewOTAError(msg))
	}
	return &FailureError{Message: msg}
}

func (s *Streamer) send(ctx context.Context, target Target, m protocol.Message) error {
	data, err := protocol.Marshal(m)
	if err != nil {
		return err
	}
	if err := target.Send(ctx, data); err != nil {
		return aborted(err)
	}
	return nil
}

func aborted(err error) error {
	return fmt.Errorf("%w: %v", core.ErrTransferAborted, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
