package decoder

import (
	"encoding/binary"
	"net"
	"net/netip"

	"firestige.xyz/pktkit/internal/core"
	"firestige.xyz/pktkit/pkg/plugin"
)

const arpFixedLen = 8

var arpDissector = plugin.NewDissector("arp", core.StratumLink, dissectARP)

// arpVariant names the protocol by operation code (RFC 903, 1931, 2390).
func arpVariant(oper uint16) string {
	switch oper {
	case 3, 4:
		return "rarp"
	case 5, 6, 7:
		return "drarp"
	case 8, 9:
		return "inarp"
	default:
		return "arp"
	}
}

// dissectARP decodes an ARP-family packet of any hardware/protocol address size.
func dissectARP(cur *core.Cursor, _ *plugin.Context) (plugin.Result, error) {
	fixed, err := cur.Read(arpFixedLen)
	if err != nil {
		return plugin.Result{}, err
	}
	htype := binary.BigEndian.Uint16(fixed[0:2])
	ptype := binary.BigEndian.Uint16(fixed[2:4])
	hlen := int(fixed[4])
	plen := int(fixed[5])
	oper := binary.BigEndian.Uint16(fixed[6:8])

	sha, err := cur.Read(hlen)
	if err != nil {
		return plugin.Result{}, err
	}
	spa, err := cur.Read(plen)
	if err != nil {
		return plugin.Result{}, err
	}
	tha, err := cur.Read(hlen)
	if err != nil {
		return plugin.Result{}, err
	}
	tpa, err := cur.Read(plen)
	if err != nil {
		return plugin.Result{}, err
	}

	return plugin.Result{
		Length: arpFixedLen + 2*hlen + 2*plen,
		Fields: core.Fields{
			"htype": htype,
			"ptype": ptype,
			"hlen":  uint8(hlen),
			"plen":  uint8(plen),
			"oper":  oper,
			"sha":   arpHardwareAddr(sha),
			"spa":   arpProtocolAddr(spa),
			"tha":   arpHardwareAddr(tha),
			"tpa":   arpProtocolAddr(tpa),
		},
		Protocol: arpVariant(oper),
	}, nil
}

func arpHardwareAddr(b []byte) any {
	if len(b) == 6 {
		return net.HardwareAddr(b)
	}
	return b
}

func arpProtocolAddr(b []byte) any {
	if addr, ok := netip.AddrFromSlice(b); ok {
		return addr
	}
	return b
}
