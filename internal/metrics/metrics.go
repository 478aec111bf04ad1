// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CaptureFramesTotal counts frames read from capture files by format
	CaptureFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktkit_capture_frames_total",
			Help: "Total number of frames read from capture files",
		},
		[]string{"format"},
	)

	// CaptureBytesTotal counts captured bytes read
	CaptureBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktkit_capture_bytes_total",
			Help: "Total number of captured bytes read",
		},
		[]string{"format"},
	)

	// FramesFilteredTotal counts frames rejected by the frame filter, by the
	// filter that rejected them
	FramesFilteredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktkit_frames_filtered_total",
			Help: "Total number of frames skipped by the filter",
		},
		[]string{"filter"},
	)

	// FramesDissectedTotal counts dissected frames by terminal state
	FramesDissectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktkit_frames_dissected_total",
			Help: "Total number of dissected frames by terminal state",
		},
		[]string{"state"},
	)

	// LayersTotal counts decoded layers by protocol
	LayersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktkit_layers_total",
			Help: "Total number of decoded layers by protocol",
		},
		[]string{"protocol"},
	)

	// AbortsTotal counts aborted chains by error tag and the protocol that failed
	AbortsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pktkit_aborts_total",
			Help: "Total number of aborted layer chains",
		},
		[]string{"tag", "protocol"},
	)

	// DissectLatencySeconds measures per-frame dissection latency
	DissectLatencySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pktkit_dissect_latency_seconds",
			Help:    "Latency of dissecting one frame in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0000001, 2, 20), // 100ns to ~50ms
		},
	)

	// QueueLength tracks frames buffered between the reader and the workers
	QueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pktkit_pipeline_queue_length",
			Help: "Number of frames waiting for a dissection worker",
		},
	)
)
