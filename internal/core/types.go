// Package core defines the capture and dissection data model with zero external dependencies.
package core

import (
	"fmt"
	"time"
)

// Kind names a dispatch domain in the protocol registry.
// The set is open: embedders may register dissectors under kinds of their own.
type Kind string

const (
	KindLink      Kind = "link"      // code = LINKTYPE_* value of the capture/interface
	KindEtherType Kind = "ethertype" // code = EtherType
	KindIPProto   Kind = "ipproto"   // code = IP protocol / IPv6 next header
	KindTCPPort   Kind = "tcp.port"
	KindUDPPort   Kind = "udp.port"
)

// Code is the type-code value looked up within a Kind.
type Code uint32

// Next selects the decoder of the following layer.
type Next struct {
	Kind Kind
	Code Code
}

func (n Next) String() string {
	return fmt.Sprintf("%s/0x%x", n.Kind, uint32(n.Code))
}

// Stratum is the conventional protocol-stack layer a protocol belongs to.
type Stratum string

const (
	StratumLink        Stratum = "link"
	StratumInternet    Stratum = "internet"
	StratumTransport   Stratum = "transport"
	StratumApplication Stratum = "application"
	StratumNone        Stratum = ""
)

// LinkType is the LINKTYPE_* value declared by a capture file.
type LinkType uint32

// Link-layer types with built-in dissectors.
const (
	LinkTypeNull     LinkType = 0
	LinkTypeEthernet LinkType = 1
	LinkTypeRawAlt   LinkType = 12 // DLT_RAW on some BSDs
	LinkTypeRaw      LinkType = 101
	LinkTypeLoop     LinkType = 108
	LinkTypeLinuxSLL LinkType = 113
	LinkTypeIPv4     LinkType = 228
	LinkTypeIPv6     LinkType = 229
)

// Format is the capture file framing variant.
type Format uint8

const (
	FormatPCAP Format = iota + 1
	FormatPCAPNG
)

func (f Format) String() string {
	switch f {
	case FormatPCAP:
		return "PCAP"
	case FormatPCAPNG:
		return "PCAPNG"
	default:
		return "unknown"
	}
}

// State is the terminal state of a layer chain.
type State uint8

const (
	// StateComplete: the last decoder named no next layer.
	StateComplete State = iota
	// StateCompleteUnknown: a next layer was named but nothing is registered for it.
	StateCompleteUnknown
	// StateAborted: a decoder failed or a guard tripped; the rest is kept raw.
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateComplete:
		return "complete"
	case StateCompleteUnknown:
		return "complete-unknown"
	case StateAborted:
		return "aborted"
	default:
		return "invalid"
	}
}

// Interface is one capture interface of a PCAPNG section (or the single
// implicit interface of a PCAP file).
type Interface struct {
	Name       string
	LinkType   LinkType
	SnapLen    uint32
	Resolution time.Duration // timestamp unit
}
