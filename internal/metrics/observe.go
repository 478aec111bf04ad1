package metrics

import (
	"errors"
	"time"

	"firestige.xyz/pktkit/internal/core"
)

// ObserveCapture records one frame read from a capture file.
func ObserveCapture(format core.Format, f *core.Frame) {
	CaptureFramesTotal.WithLabelValues(format.String()).Inc()
	CaptureBytesTotal.WithLabelValues(format.String()).Add(float64(len(f.Data)))
}

// ObservePacket records the outcome of dissecting one frame.
func ObservePacket(pkt *core.Packet, elapsed time.Duration) {
	DissectLatencySeconds.Observe(elapsed.Seconds())
	FramesDissectedTotal.WithLabelValues(pkt.State.String()).Inc()
	for i := range pkt.Layers {
		LayersTotal.WithLabelValues(pkt.Layers[i].Protocol).Inc()
	}
	if pkt.State != core.StateAborted {
		return
	}

	protocol := ""
	var de *core.DissectError
	if errors.As(pkt.Err, &de) {
		protocol = de.Protocol
	}
	AbortsTotal.WithLabelValues(core.ErrorTag(pkt.Err), protocol).Inc()
}
