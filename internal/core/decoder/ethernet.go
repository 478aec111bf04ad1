package decoder

import (
	"encoding/binary"

	"firestige.xyz/pktkit/internal/core"
	"firestige.xyz/pktkit/pkg/plugin"
)

const (
	// Ethernet constants
	ethernetHeaderLen = 14
	vlanHeaderLen     = 4
	sllHeaderLen      = 16
	loopbackHeaderLen = 4

	// EtherType values
	etherTypeIPv4 = 0x0800
	etherTypeARP  = 0x0806
	etherTypeTEB  = 0x6558 // transparent Ethernet bridging
	etherTypeRARP = 0x8035
	etherTypeVLAN = 0x8100
	etherTypeIPv6 = 0x86DD
	etherTypeQinQ = 0x88A8

	// Values up to this are an 802.3 length, not an EtherType.
	maxIEEE8023Length = 1500
)

// KindLoopbackFamily dispatches BSD loopback address families that have no
// EtherType equivalent.
const KindLoopbackFamily core.Kind = "loopback.family"

var (
	ethernetDissector = plugin.NewDissector("ethernet", core.StratumLink, dissectEthernet)
	vlanDissector     = plugin.NewDissector("vlan", core.StratumLink, dissectVLAN)
	sllDissector      = plugin.NewDissector("sll", core.StratumLink, dissectSLL)
	loopbackDissector = plugin.NewDissector("loopback", core.StratumLink, dissectLoopback)
)

// dissectEthernet decodes an Ethernet II header. An 802.3 frame (type field
// holding a length) ends the chain with the LLC payload left undissected.
func dissectEthernet(cur *core.Cursor, _ *plugin.Context) (plugin.Result, error) {
	dst, err := cur.MAC()
	if err != nil {
		return plugin.Result{}, err
	}
	src, err := cur.MAC()
	if err != nil {
		return plugin.Result{}, err
	}
	etherType, err := cur.Uint16(binary.BigEndian)
	if err != nil {
		return plugin.Result{}, err
	}

	fields := core.Fields{
		core.FieldDst: dst,
		core.FieldSrc: src,
	}
	if etherType <= maxIEEE8023Length {
		fields[core.FieldLength] = etherType
		return plugin.Result{Length: ethernetHeaderLen, Fields: fields}, nil
	}

	fields[core.FieldType] = etherType
	return plugin.Result{
		Length: ethernetHeaderLen,
		Fields: fields,
		Next:   plugin.NextOf(core.KindEtherType, core.Code(etherType)),
	}, nil
}

// dissectVLAN decodes one 802.1Q / 802.1ad tag. Stacked tags are separate layers.
func dissectVLAN(cur *core.Cursor, _ *plugin.Context) (plugin.Result, error) {
	tci, err := cur.Uint16(binary.BigEndian)
	if err != nil {
		return plugin.Result{}, err
	}
	etherType, err := cur.Uint16(binary.BigEndian)
	if err != nil {
		return plugin.Result{}, err
	}

	return plugin.Result{
		Length: vlanHeaderLen,
		Fields: core.Fields{
			"priority":     uint8(core.Bits(uint64(tci), 13, 3)),
			"dei":          core.Flag(uint64(tci), 12),
			"id":           uint16(core.Bits(uint64(tci), 0, 12)),
			core.FieldType: etherType,
		},
		Next: plugin.NextOf(core.KindEtherType, core.Code(etherType)),
	}, nil
}

// dissectSLL decodes a Linux cooked-capture (v1) header.
func dissectSLL(cur *core.Cursor, _ *plugin.Context) (plugin.Result, error) {
	hdr, err := cur.Read(sllHeaderLen)
	if err != nil {
		return plugin.Result{}, err
	}

	addrLen := binary.BigEndian.Uint16(hdr[4:6])
	addr := hdr[6:14]
	if addrLen < 8 {
		addr = addr[:addrLen]
	}
	protocol := binary.BigEndian.Uint16(hdr[14:16])

	return plugin.Result{
		Length: sllHeaderLen,
		Fields: core.Fields{
			"packet_type":  binary.BigEndian.Uint16(hdr[0:2]),
			"arphrd_type":  binary.BigEndian.Uint16(hdr[2:4]),
			"addr_len":     addrLen,
			core.FieldSrc:  addr,
			core.FieldType: protocol,
		},
		Next: plugin.NextOf(core.KindEtherType, core.Code(protocol)),
	}, nil
}

// dissectLoopback decodes the 4-byte BSD loopback family header. NULL captures
// store it in the capturing host's byte order, LOOP captures in network order.
func dissectLoopback(cur *core.Cursor, ctx *plugin.Context) (plugin.Result, error) {
	hdr, err := cur.Read(loopbackHeaderLen)
	if err != nil {
		return plugin.Result{}, err
	}

	var family uint32
	switch {
	case ctx.LinkType == core.LinkTypeLoop:
		family = binary.BigEndian.Uint32(hdr)
	case hdr[0] == 0 && hdr[1] == 0:
		family = binary.BigEndian.Uint32(hdr)
	default:
		family = binary.LittleEndian.Uint32(hdr)
	}

	res := plugin.Result{
		Length: loopbackHeaderLen,
		Fields: core.Fields{"family": family},
	}
	switch family {
	case 2:
		res.Next = plugin.NextOf(core.KindEtherType, etherTypeIPv4)
	case 10, 24, 28, 30:
		res.Next = plugin.NextOf(core.KindEtherType, etherTypeIPv6)
	default:
		res.Next = plugin.NextOf(KindLoopbackFamily, core.Code(family))
	}
	return res, nil
}
