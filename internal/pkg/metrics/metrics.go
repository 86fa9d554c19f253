package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "otahub"

// Transfer results recorded by TransfersTotal.
const (
	ResultDelivered = "delivered"
	ResultFailed    = "failed"
	ResultAborted   = "aborted"
)

var (
	// ConnectedDevices is the number of registered device sessions.
	ConnectedDevices = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_devices",
			Help:      "Number of devices with a registered session.",
		},
	)

	// ConnectedObservers is the number of dashboard connections.
	ConnectedObservers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_observers",
			Help:      "Number of observer connections receiving fleet events.",
		},
	)

	// TransfersTotal counts finished streamer runs by result.
	TransfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Firmware transfers by result (delivered, failed, aborted).",
		},
		[]string{"result"},
	)

	// TransferDuration observes streamer runs that delivered every chunk.
	TransferDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transfer_duration_seconds",
			Help:      "Time from fetch to ota_end for delivered transfers.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	// ChunksSent counts ota_chunk envelopes handed to device connections.
	ChunksSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_sent_total",
			Help:      "Firmware chunks sent to devices.",
		},
	)

	// BroadcastDropped counts observer frames dropped on a full send queue.
	BroadcastDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_dropped_total",
			Help:      "Observer frames dropped because the connection queue was full.",
		},
	)

	// MirrorDropped counts fleet events not mirrored because every notify slot was busy.
	MirrorDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_dropped_total",
			Help:      "Fleet events skipped by the notifier mirror while it was saturated.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ConnectedDevices,
		ConnectedObservers,
		TransfersTotal,
		TransferDuration,
		ChunksSent,
		BroadcastDropped,
		MirrorDropped,
	)
}
