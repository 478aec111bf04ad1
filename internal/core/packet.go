package core

import (
	"encoding/binary"
	"strings"
	"time"
)

// CaptureHeader is the file-level description of a capture.
type CaptureHeader struct {
	Format       Format
	ByteOrder    binary.ByteOrder
	VersionMajor uint16
	VersionMinor uint16
	SnapLen      uint32
	LinkType     LinkType // PCAP: global header; PCAPNG: first interface
	Resolution   time.Duration
	Interfaces   []Interface
}

// Capture is a fully read capture file.
type Capture struct {
	Header CaptureHeader
	Frames []*Frame
}

// Frame is one captured record.
type Frame struct {
	Number         int // 1-based position in the capture
	Timestamp      time.Time
	Resolution     time.Duration
	CaptureLen     uint32 // as declared by the record header
	OrigLen        uint32
	LinkType       LinkType
	InterfaceIndex int
	Data           []byte // captured bytes, never longer than CaptureLen

	// Packet is set once the frame has been dissected.
	Packet *Packet
}

// Truncated reports whether the capture tool cut the frame short.
func (f *Frame) Truncated() bool {
	return f.CaptureLen < f.OrigLen
}

// Layer is one decoded protocol instance within a frame.
type Layer struct {
	Protocol string
	Stratum  Stratum
	Fields   Fields
	Offset   int    // offset of Data within the frame
	Data     []byte // bytes consumed by this layer
	Next     *Next  // set only when the driver dispatched to another decoder

	// Err is set on raw terminal layers produced by an aborted chain.
	Err error
}

// Len returns the number of bytes the layer consumed.
func (l *Layer) Len() int { return len(l.Data) }

// IsRaw reports whether the layer is a fallback layer holding undecoded bytes.
func (l *Layer) IsRaw() bool {
	return l.Protocol == ProtocolRaw || l.Protocol == ProtocolUnknown
}

// Tag explains why a raw layer ends the chain: "unknown", or the error tag.
func (l *Layer) Tag() string {
	if l.Protocol == ProtocolUnknown {
		return TagUnknown
	}
	return ErrorTag(l.Err)
}

// Fallback protocol names.
const (
	ProtocolRaw     = "raw"
	ProtocolUnknown = "unknown"
)

// Packet is the decode result for one frame.
//
// The concatenation of every layer's Data followed by Remainder is exactly the
// frame's captured bytes.
type Packet struct {
	Layers    []Layer
	Remainder []byte
	State     State
	Err       error // cause of an aborted chain
}

// Layer returns the first layer with the given protocol name, or nil.
func (p *Packet) Layer(protocol string) *Layer {
	for i := range p.Layers {
		if p.Layers[i].Protocol == protocol {
			return &p.Layers[i]
		}
	}
	return nil
}

// Terminal returns the last layer, or nil for an empty packet.
func (p *Packet) Terminal() *Layer {
	if len(p.Layers) == 0 {
		return nil
	}
	return &p.Layers[len(p.Layers)-1]
}

// Chain returns the protocol chain, e.g. "Ethernet:IPv4:UDP".
func (p *Packet) Chain() string {
	names := make([]string, 0, len(p.Layers))
	for i := range p.Layers {
		names = append(names, DisplayName(p.Layers[i].Protocol))
	}
	return strings.Join(names, ":")
}

// Bytes reassembles the frame from the layers and the remainder.
func (p *Packet) Bytes() []byte {
	n := len(p.Remainder)
	for i := range p.Layers {
		n += len(p.Layers[i].Data)
	}
	out := make([]byte, 0, n)
	for i := range p.Layers {
		out = append(out, p.Layers[i].Data...)
	}
	return append(out, p.Remainder...)
}

var displayNames = map[string]string{
	"ethernet": "Ethernet",
	"vlan":     "VLAN",
	"sll":      "SLL",
	"loopback": "Loopback",
	"arp":      "ARP",
	"rarp":     "RARP",
	"drarp":    "DRARP",
	"inarp":    "InARP",
	"ipv4":     "IPv4",
	"ipv6":     "IPv6",
	"icmp":     "ICMP",
	"icmpv6":   "ICMPv6",
	"tcp":      "TCP",
	"udp":      "UDP",
	"gre":      "GRE",
	"vxlan":    "VXLAN",
	"geneve":   "Geneve",
	"dns":      "DNS",
	"http":     "HTTP",
	"sip":      "SIP",
	"raw":      "Raw",
	"unknown":  "Unknown",
}

// DisplayName returns the conventional spelling of a protocol name.
func DisplayName(protocol string) string {
	if name, ok := displayNames[protocol]; ok {
		return name
	}
	return protocol
}
