// Package codec reduces a dissected frame to its flow tuple.
package codec

import (
	"net"
	"net/netip"

	"firestige.xyz/pktkit/internal/core"
	"firestige.xyz/pktkit/internal/core/decoder"
)

// Packet is the flow view of a frame: the innermost network and transport
// headers plus the application payload.
type Packet struct {
	Protocol  string // innermost non-raw layer
	Transport string
	IpVersion string
	SrcIP     net.IP
	DstIP     net.IP
	SrcPort   uint16
	DstPort   uint16
	Tsec      uint32
	Tmsec     uint32
	Payload   []byte
	Chain     string
	State     core.State
}

type Decoder interface {
	Decode(data []byte) (*Packet, error)
}

// FlowDecoder dissects frames of one link type and summarizes them.
type FlowDecoder struct {
	link core.LinkType
	dec  decoder.Decoder
}

func NewDecoder(link core.LinkType, cfg decoder.Config) *FlowDecoder {
	return &FlowDecoder{link: link, dec: decoder.NewStandardDecoder(cfg)}
}

// Decode dissects data and returns its flow summary. An aborted chain still
// yields the summary of the layers decoded before the failure, together
// with the error that stopped it.
func (d *FlowDecoder) Decode(data []byte) (*Packet, error) {
	pkt := d.dec.Decode(data, d.link)
	return Summarize(pkt), pkt.Err
}

// DecodeFrame is Decode for a captured frame, with its timestamp.
func (d *FlowDecoder) DecodeFrame(f *core.Frame) (*Packet, error) {
	pkt := f.Packet
	if pkt == nil {
		pkt = d.dec.DecodeFrame(f)
	}
	p := Summarize(pkt)
	p.Tsec = uint32(f.Timestamp.Unix())
	p.Tmsec = uint32(f.Timestamp.Nanosecond() / 1e6)
	return p, pkt.Err
}

// Summarize walks the layers outermost first, so tunneled frames report
// their inner addresses.
func Summarize(pkt *core.Packet) *Packet {
	p := &Packet{Chain: pkt.Chain(), State: pkt.State, Payload: pkt.Remainder}
	for i := range pkt.Layers {
		l := &pkt.Layers[i]
		switch l.Stratum {
		case core.StratumInternet:
			if l.Protocol == "ipv4" || l.Protocol == "ipv6" {
				p.IpVersion = l.Protocol
				p.SrcIP = addr(l.Fields[core.FieldSrc])
				p.DstIP = addr(l.Fields[core.FieldDst])
				p.Transport, p.SrcPort, p.DstPort = "", 0, 0
			}
		case core.StratumTransport:
			p.Transport = l.Protocol
			if v, ok := l.Fields.Uint(core.FieldSrcPort); ok {
				p.SrcPort = uint16(v)
			}
			if v, ok := l.Fields.Uint(core.FieldDstPort); ok {
				p.DstPort = uint16(v)
			}
		case core.StratumApplication:
			p.Payload = l.Data
		case core.StratumNone:
			if p.Transport != "" {
				p.Payload = l.Data
			}
		}
		if !l.IsRaw() {
			p.Protocol = l.Protocol
		}
	}
	if p.Protocol == "" && len(pkt.Layers) > 0 {
		p.Protocol = pkt.Layers[0].Protocol
	}
	return p
}

func addr(v any) net.IP {
	if a, ok := v.(netip.Addr); ok && a.IsValid() {
		return net.IP(a.AsSlice())
	}
	return nil
}
