package capture

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"firestige.xyz/pktkit/internal/core"
)

// Stats counts what a Reader produced. Counters are updated atomically so a
// monitor goroutine may read them while the reader runs.
type Stats struct {
	StartTime time.Time

	Frames    int64
	Bytes     int64 // captured bytes
	Truncated int64 // captured length below original length
	Oversize  int64 // captured length above the declared snaplen
}

func NewStats() *Stats {
	return &Stats{StartTime: time.Now()}
}

func (s *Stats) record(f *core.Frame, snapLen uint32) {
	atomic.AddInt64(&s.Frames, 1)
	atomic.AddInt64(&s.Bytes, int64(len(f.Data)))
	if f.Truncated() {
		atomic.AddInt64(&s.Truncated, 1)
	}
	if snapLen > 0 && f.CaptureLen > snapLen {
		atomic.AddInt64(&s.Oversize, 1)
	}
}

// Snapshot returns a consistent-enough copy for reporting.
func (s *Stats) Snapshot() Stats {
	return Stats{
		StartTime: s.StartTime,
		Frames:    atomic.LoadInt64(&s.Frames),
		Bytes:     atomic.LoadInt64(&s.Bytes),
		Truncated: atomic.LoadInt64(&s.Truncated),
		Oversize:  atomic.LoadInt64(&s.Oversize),
	}
}

// GetRuntime returns the time since the reader was opened.
func (s *Stats) GetRuntime() time.Duration {
	return time.Since(s.StartTime)
}

// GetTruncateRate returns the share of frames cut short by the snaplen, in percent.
func (s *Stats) GetTruncateRate() float64 {
	frames := atomic.LoadInt64(&s.Frames)
	if frames == 0 {
		return 0.0
	}
	return float64(atomic.LoadInt64(&s.Truncated)) / float64(frames) * 100
}

// PrintStats writes the reader statistics block to w.
func (s *Stats) PrintStats(w io.Writer) {
	snap := s.Snapshot()
	fmt.Fprintln(w, "[CAPTURE READER]")
	fmt.Fprintf(w, "  Runtime:           %v\n", s.GetRuntime().Truncate(time.Millisecond))
	fmt.Fprintf(w, "  Frames:            %d\n", snap.Frames)
	fmt.Fprintf(w, "  Bytes:             %d\n", snap.Bytes)
	fmt.Fprintf(w, "  Truncated Frames:  %d\n", snap.Truncated)
	fmt.Fprintf(w, "  Truncate Rate:     %.2f%%\n", s.GetTruncateRate())
	fmt.Fprintf(w, "  Oversize Frames:   %d\n", snap.Oversize)
}
