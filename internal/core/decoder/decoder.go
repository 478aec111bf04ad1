// Package decoder implements the layer chain driver and the built-in
// protocol dissectors.
package decoder

import (
	"fmt"

	"firestige.xyz/pktkit/internal/core"
	"firestige.xyz/pktkit/pkg/plugin"
)

// DefaultMaxDepth bounds the number of dispatches per frame.
const DefaultMaxDepth = 32

// Decoder dissects one frame into its layer chain.
type Decoder interface {
	Decode(data []byte, link core.LinkType) *core.Packet
	DecodeFrame(frame *core.Frame) *core.Packet
}

// Config configures a StandardDecoder.
type Config struct {
	MaxDepth int             // 0 = DefaultMaxDepth
	Registry plugin.Lookuper // nil = process-scoped registry
}

// StandardDecoder walks a frame from the link layer inward, one registry
// lookup per layer. It holds no per-frame state and is safe for concurrent use.
type StandardDecoder struct {
	maxDepth int
	registry plugin.Lookuper
}

// NewStandardDecoder creates a decoder with the given configuration.
func NewStandardDecoder(cfg Config) *StandardDecoder {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.Registry == nil {
		cfg.Registry = plugin.Default()
	}
	return &StandardDecoder{
		maxDepth: cfg.MaxDepth,
		registry: cfg.Registry,
	}
}

// MaxDepth returns the configured depth bound.
func (d *StandardDecoder) MaxDepth() int { return d.maxDepth }

// Decode dissects data captured on the given link type.
func (d *StandardDecoder) Decode(data []byte, link core.LinkType) *core.Packet {
	return d.decode(data, link, len(data))
}

// DecodeFrame dissects a frame and attaches the result to it.
func (d *StandardDecoder) DecodeFrame(frame *core.Frame) *core.Packet {
	pkt := d.decode(frame.Data, frame.LinkType, int(frame.OrigLen))
	frame.Packet = pkt
	return pkt
}

func (d *StandardDecoder) decode(data []byte, link core.LinkType, origLen int) *core.Packet {
	pkt := &core.Packet{Layers: make([]core.Layer, 0, 4)}

	pos, limit := 0, len(data)
	next := core.Next{Kind: core.KindLink, Code: core.Code(link)}
	depth, parentSpan := 0, 0
	parent := ""
	// bounded is set once limit comes from a declared span rather than
	// the captured length.
	bounded := false

	for {
		if depth > d.maxDepth {
			d.abort(pkt, data, pos, limit, fmt.Errorf("depth %d exceeds %d at %s: %w", depth, d.maxDepth, next, core.ErrMaxDepthExceeded))
			return pkt
		}

		dissector, ok := d.registry.Lookup(next.Kind, next.Code)
		if !ok {
			pkt.Layers = append(pkt.Layers, core.Layer{
				Protocol: core.ProtocolUnknown,
				Stratum:  core.StratumNone,
				Fields:   core.Fields{"kind": string(next.Kind), "code": uint32(next.Code)},
				Offset:   pos,
				Data:     data[pos:limit],
			})
			pkt.Remainder = data[limit:]
			pkt.State = core.StateCompleteUnknown
			return pkt
		}
		if n := len(pkt.Layers); n > 0 {
			nx := next
			pkt.Layers[n-1].Next = &nx
		}

		cur := core.NewCursor(data[pos:limit])
		ctx := &plugin.Context{
			LinkType:   link,
			FrameLen:   len(data),
			OrigLen:    origLen,
			Offset:     pos,
			Remaining:  limit - pos,
			ParentSpan: parentSpan,
			Depth:      depth,
			Parent:     parent,
			Registry:   d.registry,
		}

		res, err := invoke(dissector, &cur, ctx)
		if err == nil {
			err = checkResult(&res, &cur, limit-pos)
		}
		if err != nil {
			d.abort(pkt, data, pos, limit, &core.DissectError{Protocol: dissector.Name(), Offset: pos, Err: err})
			return pkt
		}

		protocol := res.Protocol
		if protocol == "" {
			protocol = dissector.Name()
		}
		pkt.Layers = append(pkt.Layers, core.Layer{
			Protocol: protocol,
			Stratum:  dissector.Stratum(),
			Fields:   res.Fields,
			Offset:   pos,
			Data:     data[pos : pos+res.Length],
		})
		pos += res.Length

		if res.Span > 0 && pos+res.Span > limit {
			d.abort(pkt, data, pos, limit, &core.DissectError{Protocol: dissector.Name(), Offset: pos, Err: spanError(protocol, res.Span, limit-pos, bounded)})
			return pkt
		}

		if res.Next == nil {
			// Bytes past the declared span (link padding, trailers) stay undissected.
			pkt.Remainder = data[pos:]
			pkt.State = core.StateComplete
			return pkt
		}

		parentSpan = 0
		if res.Span > 0 {
			parentSpan = res.Span
			limit = pos + res.Span
			bounded = true
		}
		next = *res.Next
		parent = protocol
		depth++
	}
}

// abort ends the chain with a raw layer over the bytes the failed layer could see.
func (d *StandardDecoder) abort(pkt *core.Packet, data []byte, pos, limit int, err error) {
	pkt.Layers = append(pkt.Layers, core.Layer{
		Protocol: core.ProtocolRaw,
		Stratum:  core.StratumNone,
		Fields:   core.Fields{"tag": core.ErrorTag(err)},
		Offset:   pos,
		Data:     data[pos:limit],
		Err:      err,
	})
	pkt.Remainder = data[limit:]
	pkt.State = core.StateAborted
	pkt.Err = err
}

// spanError reports a payload span that does not fit its window: past the
// captured bytes the frame was cut short, inside an enclosing span the
// lengths disagree.
func spanError(protocol string, span, window int, bounded bool) error {
	if bounded {
		return core.Structuralf("%s payload of %d bytes overruns enclosing span of %d", protocol, span, window)
	}
	return core.Truncatedf("%s declares %d payload bytes, %d captured", protocol, span, window)
}

// invoke runs a dissector, turning a panic into a structural error.
func invoke(d plugin.Dissector, cur *core.Cursor, ctx *plugin.Context) (res plugin.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = core.Structuralf("dissector %s panicked: %v", d.Name(), r)
		}
	}()
	return d.Dissect(cur, ctx)
}

// checkResult validates a dissector's claims against its window.
// A zero Length falls back to the cursor offset.
func checkResult(res *plugin.Result, cur *core.Cursor, window int) error {
	if res.Length == 0 {
		res.Length = cur.Offset()
	}
	if res.Length < 0 || res.Length > window {
		return core.Structuralf("consumed %d bytes of a %d byte window", res.Length, window)
	}
	if res.Length == 0 && res.Next != nil {
		return core.Structuralf("no progress before dispatching to %s", *res.Next)
	}
	if res.Span < 0 {
		return core.Structuralf("negative payload span %d", res.Span)
	}
	return nil
}
