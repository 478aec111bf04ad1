package pipeline

import (
	"sync/atomic"

	"firestige.xyz/pktkit/internal/core"
)

// Metrics contains per-run counters.
type Metrics struct {
	Received        atomic.Uint64
	Filtered        atomic.Uint64
	Dissected       atomic.Uint64
	Complete        atomic.Uint64
	CompleteUnknown atomic.Uint64
	Aborted         atomic.Uint64
	Delivered       atomic.Uint64
	SinkErrors      atomic.Uint64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) observe(pkt *core.Packet) {
	m.Dissected.Add(1)
	switch pkt.State {
	case core.StateComplete:
		m.Complete.Add(1)
	case core.StateCompleteUnknown:
		m.CompleteUnknown.Add(1)
	case core.StateAborted:
		m.Aborted.Add(1)
	}
}

// Reset resets all counters to zero.
func (m *Metrics) Reset() {
	m.Received.Store(0)
	m.Filtered.Store(0)
	m.Dissected.Store(0)
	m.Complete.Store(0)
	m.CompleteUnknown.Store(0)
	m.Aborted.Store(0)
	m.Delivered.Store(0)
	m.SinkErrors.Store(0)
}

// Stats represents pipeline statistics.
type Stats struct {
	Received        uint64
	Filtered        uint64
	Dissected       uint64
	Complete        uint64
	CompleteUnknown uint64
	Aborted         uint64
	Delivered       uint64
	SinkErrors      uint64
	LogsSuppressed  int64
}
