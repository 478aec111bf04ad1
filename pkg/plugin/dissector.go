// Package plugin defines the dissector contract and the process-scoped
// protocol registry that dissectors are installed into.
package plugin

import "firestige.xyz/pktkit/internal/core"

// Dissector decodes one protocol header from the front of a cursor.
//
// Implementations must be stateless: the same bytes and context always
// produce the same result, and a dissector may be called concurrently from
// many goroutines.
type Dissector interface {
	// Name is the stable protocol identity reported on the layer.
	Name() string
	Stratum() core.Stratum
	// Dissect reads the header at the cursor position. The cursor is bounded
	// to the bytes this layer may inspect; it never extends past the span
	// declared by the enclosing layer.
	Dissect(cur *core.Cursor, ctx *Context) (Result, error)
}

// Lookuper resolves a (kind, code) pair to a dissector.
type Lookuper interface {
	Lookup(kind core.Kind, code core.Code) (Dissector, bool)
}

// Context is the read-only frame state handed to a dissector.
type Context struct {
	LinkType   core.LinkType
	FrameLen   int // captured length of the frame
	OrigLen    int // length of the frame on the wire
	Offset     int // frame offset of the cursor start
	Remaining  int // bytes visible to this layer
	ParentSpan int // payload length declared by the enclosing layer, 0 if unknown
	Depth      int
	Parent     string // protocol of the enclosing layer, "" at the link layer

	Registry Lookuper
}

// Has reports whether a dissector is registered for (kind, code).
// Transport dissectors use it to pick which port names the application.
func (c *Context) Has(kind core.Kind, code core.Code) bool {
	if c == nil || c.Registry == nil {
		return false
	}
	_, ok := c.Registry.Lookup(kind, code)
	return ok
}

// Result describes what a dissector decoded.
type Result struct {
	// Length is the number of header bytes consumed from the cursor start.
	Length int
	Fields core.Fields
	// Next names the decoder of the following layer. Nil ends the chain.
	Next *core.Next
	// Span is the payload length this layer declares for the next one.
	// Zero or less means the rest of the visible bytes.
	Span int
	// Protocol overrides Name() as the layer identity, e.g. "rarp" from the
	// ARP dissector.
	Protocol string
}

// NextOf is a convenience for building Result.Next.
func NextOf(kind core.Kind, code core.Code) *core.Next {
	return &core.Next{Kind: kind, Code: code}
}

// DissectFunc is the signature of a plain dissect function.
type DissectFunc func(cur *core.Cursor, ctx *Context) (Result, error)

type funcDissector struct {
	name    string
	stratum core.Stratum
	fn      DissectFunc
}

// NewDissector adapts a plain function to the Dissector interface.
func NewDissector(name string, stratum core.Stratum, fn DissectFunc) Dissector {
	return &funcDissector{name: name, stratum: stratum, fn: fn}
}

func (d *funcDissector) Name() string          { return d.name }
func (d *funcDissector) Stratum() core.Stratum { return d.stratum }

func (d *funcDissector) Dissect(cur *core.Cursor, ctx *Context) (Result, error) {
	return d.fn(cur, ctx)
}

// Alias wraps a dissector under a different protocol name.
func Alias(name string, d Dissector) Dissector {
	return &funcDissector{name: name, stratum: d.Stratum(), fn: func(cur *core.Cursor, ctx *Context) (Result, error) {
		res, err := d.Dissect(cur, ctx)
		if res.Protocol == "" || res.Protocol == d.Name() {
			res.Protocol = name
		}
		return res, err
	}}
}
