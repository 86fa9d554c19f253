package session

import (
	"context"
	"sync"
	"time"

	"github.com/autopeer-io/otahub/internal/otahub/core"
	"github.com/autopeer-io/otahub/internal/otahub/protocol"
	"github.com/autopeer-io/otahub/internal/pkg/metrics"
	"github.com/autopeer-io/otahub/pkg/log"
)

const (
	notifyTimeout = 5 * time.Second

	// maxPendingNotify bounds the mirror calls in flight at once.
	maxPendingNotify = 16
)

var _ Broadcaster = (*Fanout)(nil)

// Fanout is the set of observer connections. Broadcast is best effort:
// a closed or saturated observer misses the event and nothing is retried.
type Fanout struct {
	mu        sync.RWMutex
	observers map[Handle]struct{}

	// mirror is optional.
	mirror core.EventNotifier
	slots  chan struct{}
	log    log.Logger
}

// NewFanout returns an empty Fanout. Events are also handed to mirror when it is non-nil.
func NewFanout(mirror core.EventNotifier) *Fanout {
	return &Fanout{
		observers: make(map[Handle]struct{}),
		mirror:    mirror,
		slots:     make(chan struct{}, maxPendingNotify),
		log:       log.WithName("fanout"),
	}
}

// AddObserver subscribes h to every later Broadcast.
func (f *Fanout) AddObserver(h Handle) {
	f.mu.Lock()
	f.observers[h] = struct{}{}
	n := len(f.observers)
	f.mu.Unlock()

	metrics.ConnectedObservers.Set(float64(n))
}

// RemoveObserver unsubscribes h. Unknown handles are ignored.
func (f *Fanout) RemoveObserver(h Handle) {
	f.mu.Lock()
	delete(f.observers, h)
	n := len(f.observers)
	f.mu.Unlock()

	metrics.ConnectedObservers.Set(float64(n))
}

// Broadcast encodes m once and queues it on every open observer.
// It returns the number of observers the frame was queued on.
func (f *Fanout) Broadcast(m protocol.Message) int {
	data, err := protocol.Marshal(m)
	if err != nil {
		f.log.Error(err, "Dropping unencodable event", "type", m.MessageType())
		return 0
	}

	f.mu.RLock()
	targets := make([]Handle, 0, len(f.observers))
	for h := range f.observers {
		targets = append(targets, h)
	}
	f.mu.RUnlock()

	delivered := 0
	for _, h := range targets {
		if !h.Open() {
			continue
		}
		if h.TrySend(data) {
			delivered++
		} else {
			metrics.BroadcastDropped.Inc()
			f.log.Debug("Observer queue full, event dropped", "conn", h.ID(), "type", m.MessageType())
		}
	}

	if f.mirror != nil {
		select {
		case f.slots <- struct{}{}:
			go func() {
				defer func() { <-f.slots }()
				f.notify(m.MessageType(), data)
			}()
		default:
			metrics.MirrorDropped.Inc()
			f.log.Debug("Notifier busy, event not mirrored", "type", m.MessageType())
		}
	}

	return delivered
}

func (f *Fanout) notify(eventType string, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	if err := f.mirror.Notify(ctx, eventType, data); err != nil {
		f.log.Error(err, "Failed to mirror fleet event", "type", eventType)
	}
}
