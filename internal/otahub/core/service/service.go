package service

import (
	"context"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/otahub/internal/otahub/core"
	"github.com/autopeer-io/otahub/internal/otahub/session"
	"github.com/autopeer-io/otahub/internal/otahub/stream"
)

const defaultURLExpiry = 7 * 24 * time.Hour

// Streamer delivers one firmware image to one device.
type Streamer interface {
	Stream(ctx context.Context, target stream.Target, deviceID, url string) error
}

// Service implements the otahub use cases on top of the session registry,
// the observer fan-out and the metadata and blob ports.
type Service struct {
	firmware core.FirmwareRepository
	device   core.DeviceRepository
	storage  core.Storage
	streamer Streamer

	registry *session.Registry
	fanout   *session.Fanout

	clock     clock.PassiveClock
	urlExpiry time.Duration

	// Transfers run under ctx, not the request that started them.
	ctx       context.Context
	cancel    context.CancelFunc
	transfers sync.WaitGroup
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source. Defaults to the real clock.
func WithClock(c clock.PassiveClock) Option {
	return func(s *Service) { s.clock = c }
}

// WithURLExpiry sets the lifetime of presigned firmware URLs.
func WithURLExpiry(d time.Duration) Option {
	return func(s *Service) { s.urlExpiry = d }
}

// New creates the service. notifier may be nil when no event mirror is configured.
func New(
	repo core.Repository,
	storage core.Storage,
	streamer Streamer,
	notifier core.EventNotifier,
	opts ...Option,
) *Service {
	s := &Service{
		firmware:  repo.Firmware(),
		device:    repo.Device(),
		storage:   storage,
		streamer:  streamer,
		clock:     clock.RealClock{},
		urlExpiry: defaultURLExpiry,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.fanout = session.NewFanout(notifier)
	s.registry = session.NewRegistry(s.clock, s.fanout)
	return s
}

// Shutdown stops every running transfer. It does not wait for them.
func (s *Service) Shutdown() {
	s.cancel()
}

// Wait blocks until every transfer goroutine has returned.
func (s *Service) Wait() {
	s.transfers.Wait()
}
