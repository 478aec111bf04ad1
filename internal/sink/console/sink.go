// Package console prints dissected frames.
package console

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"firestige.xyz/pktkit/internal/core"
)

const Name = "console"

// Sink writes one line per frame, e.g. "Frame 3: Ethernet:IPv4:UDP [complete]".
// Verbose adds one indented line per layer with its fields.
type Sink struct {
	w       io.Writer
	verbose bool
}

func NewSink(w io.Writer, verbose bool) *Sink {
	return &Sink{w: w, verbose: verbose}
}

func (s *Sink) Support(*core.Frame) bool { return true }

func (s *Sink) HandleFrame(f *core.Frame) error {
	pkt := f.Packet
	if pkt == nil {
		_, err := fmt.Fprintf(s.w, "Frame %d: not dissected\n", f.Number)
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Frame %d: %s [%s]\n", f.Number, pkt.Chain(), pkt.State)
	if pkt.Err != nil {
		fmt.Fprintf(&b, "  error: %v\n", pkt.Err)
	}
	if s.verbose {
		for i := range pkt.Layers {
			writeLayer(&b, &pkt.Layers[i])
		}
		if len(pkt.Remainder) > 0 {
			fmt.Fprintf(&b, "  %-10s %d bytes\n", "remainder", len(pkt.Remainder))
		}
	}
	_, err := io.WriteString(s.w, b.String())
	return err
}

func writeLayer(b *strings.Builder, l *core.Layer) {
	names := make([]string, 0, len(l.Fields))
	for name := range l.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%v", name, l.Fields[name]))
	}
	fmt.Fprintf(b, "  %-10s @%-4d %s\n", core.DisplayName(l.Protocol), l.Offset, strings.Join(parts, " "))
}
