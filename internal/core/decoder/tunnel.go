package decoder

import (
	"encoding/binary"

	"firestige.xyz/pktkit/internal/core"
	"firestige.xyz/pktkit/pkg/plugin"
)

const (
	// Well-known UDP ports
	vxlanPort  = 4789
	genevePort = 6081

	// Header lengths
	vxlanHeaderLen  = 8
	geneveHeaderLen = 8
	greHeaderMinLen = 4

	// GRE flag bits
	greChecksumBit = 15
	greKeyBit      = 13
	greSeqBit      = 12
	greAckBit      = 7
)

var (
	greDissector    = plugin.NewDissector("gre", core.StratumInternet, dissectGRE)
	vxlanDissector  = plugin.NewDissector("vxlan", core.StratumLink, dissectVXLAN)
	geneveDissector = plugin.NewDissector("geneve", core.StratumLink, dissectGeneve)
)

// dissectGRE decodes a GRE header (RFC 2784/2890, and the enhanced version 1
// used by PPTP). The protocol type selects the encapsulated layer.
func dissectGRE(cur *core.Cursor, _ *plugin.Context) (plugin.Result, error) {
	fixed, err := cur.Read(greHeaderMinLen)
	if err != nil {
		return plugin.Result{}, err
	}

	flags := uint64(binary.BigEndian.Uint16(fixed[0:2]))
	version := uint8(core.Bits(flags, 0, 3))
	protocol := binary.BigEndian.Uint16(fixed[2:4])

	fields := core.Fields{
		core.FieldFlags: uint16(flags),
		"version":       version,
		"protocol":      protocol,
	}

	switch version {
	case 0:
		if core.Flag(flags, greChecksumBit) {
			cs, err := cur.Uint32(binary.BigEndian)
			if err != nil {
				return plugin.Result{}, err
			}
			fields["checksum"] = uint16(cs >> 16)
		}
		if core.Flag(flags, greKeyBit) {
			key, err := cur.Uint32(binary.BigEndian)
			if err != nil {
				return plugin.Result{}, err
			}
			fields["key"] = key
		}
	case 1:
		// Enhanced GRE always carries payload length and call ID in the key field.
		payloadLen, err := cur.Uint16(binary.BigEndian)
		if err != nil {
			return plugin.Result{}, err
		}
		callID, err := cur.Uint16(binary.BigEndian)
		if err != nil {
			return plugin.Result{}, err
		}
		fields[core.FieldPayload] = payloadLen
		fields["call_id"] = callID
	default:
		return plugin.Result{}, core.Structuralf("GRE version %d", version)
	}

	if core.Flag(flags, greSeqBit) {
		seq, err := cur.Uint32(binary.BigEndian)
		if err != nil {
			return plugin.Result{}, err
		}
		fields["seq"] = seq
	}
	if version == 1 && core.Flag(flags, greAckBit) {
		ack, err := cur.Uint32(binary.BigEndian)
		if err != nil {
			return plugin.Result{}, err
		}
		fields["ack"] = ack
	}

	res := plugin.Result{Length: cur.Offset(), Fields: fields}
	if cur.Remaining() > 0 {
		res.Next = plugin.NextOf(core.KindEtherType, core.Code(protocol))
	}
	return res, nil
}

// dissectVXLAN decodes a VXLAN header; the payload is an inner Ethernet frame.
func dissectVXLAN(cur *core.Cursor, _ *plugin.Context) (plugin.Result, error) {
	hdr, err := cur.Read(vxlanHeaderLen)
	if err != nil {
		return plugin.Result{}, err
	}

	// The I flag must be set for the VNI to be valid
	flags := hdr[0]
	if flags&0x08 == 0 {
		return plugin.Result{}, core.Structuralf("VXLAN header without VNI flag (flags 0x%02x)", flags)
	}
	vni := uint32(hdr[4])<<16 | uint32(hdr[5])<<8 | uint32(hdr[6])

	res := plugin.Result{
		Length: vxlanHeaderLen,
		Fields: core.Fields{
			core.FieldFlags: flags,
			"vni":           vni,
		},
	}
	if cur.Remaining() > 0 {
		res.Next = plugin.NextOf(core.KindLink, core.Code(core.LinkTypeEthernet))
	}
	return res, nil
}

// dissectGeneve decodes a Geneve header with its variable-length options.
func dissectGeneve(cur *core.Cursor, _ *plugin.Context) (plugin.Result, error) {
	hdr, err := cur.Read(geneveHeaderLen)
	if err != nil {
		return plugin.Result{}, err
	}

	version := hdr[0] >> 6
	if version != 0 {
		return plugin.Result{}, core.Structuralf("Geneve version %d", version)
	}
	// option length is in 4-byte units
	optLen := int(hdr[0]&0x3F) * 4
	opts, err := cur.Read(optLen)
	if err != nil {
		return plugin.Result{}, err
	}
	protocol := binary.BigEndian.Uint16(hdr[2:4])

	fields := core.Fields{
		"version":  version,
		"oam":      hdr[1]&0x80 != 0,
		"critical": hdr[1]&0x40 != 0,
		"protocol": protocol,
		"vni":      uint32(hdr[4])<<16 | uint32(hdr[5])<<8 | uint32(hdr[6]),
	}
	if optLen > 0 {
		fields["options"] = opts
	}

	res := plugin.Result{Length: geneveHeaderLen + optLen, Fields: fields}
	if cur.Remaining() > 0 {
		res.Next = plugin.NextOf(core.KindEtherType, core.Code(protocol))
	}
	return res, nil
}
