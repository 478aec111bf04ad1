package decoder

import (
	"encoding/binary"

	"firestige.xyz/pktkit/internal/core"
	"firestige.xyz/pktkit/pkg/plugin"
)

const (
	udpHeaderLen    = 8
	tcpHeaderMinLen = 20
	icmpHeaderLen   = 8

	// TCP option kinds
	tcpOptEnd       = 0
	tcpOptNOP       = 1
	tcpOptMSS       = 2
	tcpOptWScale    = 3
	tcpOptSACKPerm  = 4
	tcpOptSACK      = 5
	tcpOptTimestamp = 8
)

var (
	udpDissector    = plugin.NewDissector("udp", core.StratumTransport, dissectUDP)
	tcpDissector    = plugin.NewDissector("tcp", core.StratumTransport, dissectTCP)
	icmpDissector   = plugin.NewDissector("icmp", core.StratumInternet, dissectICMP)
	icmpv6Dissector = plugin.NewDissector("icmpv6", core.StratumInternet, dissectICMP)
)

// applicationPort picks the port that names the application protocol:
// the destination if something is registered for it, else the source.
func applicationPort(ctx *plugin.Context, kind core.Kind, src, dst uint16) (*core.Next, bool) {
	for _, port := range [2]uint16{dst, src} {
		if ctx.Has(kind, core.Code(port)) {
			return plugin.NextOf(kind, core.Code(port)), true
		}
	}
	return nil, false
}

// dissectUDP decodes a UDP header. A zero length field (offloaded
// checksums, jumbograms) leaves the payload bound to the enclosing span.
func dissectUDP(cur *core.Cursor, ctx *plugin.Context) (plugin.Result, error) {
	hdr, err := cur.Read(udpHeaderLen)
	if err != nil {
		return plugin.Result{}, err
	}

	srcPort := binary.BigEndian.Uint16(hdr[0:2])
	dstPort := binary.BigEndian.Uint16(hdr[2:4])
	length := binary.BigEndian.Uint16(hdr[4:6])
	if length != 0 && length < udpHeaderLen {
		return plugin.Result{}, core.Structuralf("UDP length %d shorter than header", length)
	}

	res := plugin.Result{
		Length: udpHeaderLen,
		Fields: core.Fields{
			core.FieldSrcPort: srcPort,
			core.FieldDstPort: dstPort,
			core.FieldLength:  length,
			"checksum":        binary.BigEndian.Uint16(hdr[6:8]),
		},
	}

	payload := cur.Remaining()
	if length != 0 {
		res.Span = int(length) - udpHeaderLen
		payload = min(payload, res.Span)
	}
	res.Fields[core.FieldPayload] = payload
	if payload > 0 {
		res.Next, _ = applicationPort(ctx, core.KindUDPPort, srcPort, dstPort)
	}
	return res, nil
}

// dissectTCP decodes a TCP header and its options.
func dissectTCP(cur *core.Cursor, ctx *plugin.Context) (plugin.Result, error) {
	fixed, err := cur.Read(tcpHeaderMinLen)
	if err != nil {
		return plugin.Result{}, err
	}

	// Data offset is in 32-bit words
	headerLen := int(fixed[12]>>4) * 4
	if headerLen < tcpHeaderMinLen {
		return plugin.Result{}, core.Structuralf("TCP data offset %d below minimum", headerLen/4)
	}
	rawOpts, err := cur.Read(headerLen - tcpHeaderMinLen)
	if err != nil {
		return plugin.Result{}, err
	}

	srcPort := binary.BigEndian.Uint16(fixed[0:2])
	dstPort := binary.BigEndian.Uint16(fixed[2:4])
	flags := uint64(binary.BigEndian.Uint16(fixed[12:14])) & 0x01FF

	fields := core.Fields{
		core.FieldSrcPort: srcPort,
		core.FieldDstPort: dstPort,
		"seq":             binary.BigEndian.Uint32(fixed[4:8]),
		"ack":             binary.BigEndian.Uint32(fixed[8:12]),
		"data_offset":     uint8(headerLen / 4),
		core.FieldFlags:   uint16(flags),
		"ns":              core.Flag(flags, 8),
		"cwr":             core.Flag(flags, 7),
		"ece":             core.Flag(flags, 6),
		"urg":             core.Flag(flags, 5),
		"ack_flag":        core.Flag(flags, 4),
		"psh":             core.Flag(flags, 3),
		"rst":             core.Flag(flags, 2),
		"syn":             core.Flag(flags, 1),
		"fin":             core.Flag(flags, 0),
		"window":          binary.BigEndian.Uint16(fixed[14:16]),
		"checksum":        binary.BigEndian.Uint16(fixed[16:18]),
		"urgent":          binary.BigEndian.Uint16(fixed[18:20]),
	}
	if len(rawOpts) > 0 {
		opts, err := parseTCPOptions(rawOpts, fields)
		if err != nil {
			return plugin.Result{}, err
		}
		fields["options"] = opts
	}

	payload := cur.Remaining()
	fields[core.FieldPayload] = payload
	res := plugin.Result{Length: headerLen, Fields: fields}
	if payload > 0 {
		res.Next, _ = applicationPort(ctx, core.KindTCPPort, srcPort, dstPort)
	}
	return res, nil
}

// parseTCPOptions decodes the option list. Well-known options are also
// promoted to top-level fields (mss, wscale, sack_permitted, tsval, tsecr).
func parseTCPOptions(raw []byte, fields core.Fields) ([]core.Fields, error) {
	var opts []core.Fields
	cur := core.NewCursor(raw)
	for cur.Remaining() > 0 {
		kind, _ := cur.Uint8()
		if kind == tcpOptEnd {
			opts = append(opts, core.Fields{"kind": kind})
			break
		}
		if kind == tcpOptNOP {
			opts = append(opts, core.Fields{"kind": kind})
			continue
		}

		length, err := cur.Uint8()
		if err != nil {
			return nil, err
		}
		if length < 2 {
			return nil, core.Structuralf("TCP option %d with length %d", kind, length)
		}
		data, err := cur.Read(int(length) - 2)
		if err != nil {
			return nil, err
		}
		opts = append(opts, core.Fields{"kind": kind, "length": length, "data": data})

		switch {
		case kind == tcpOptMSS && len(data) == 2:
			fields["mss"] = binary.BigEndian.Uint16(data)
		case kind == tcpOptWScale && len(data) == 1:
			fields["wscale"] = data[0]
		case kind == tcpOptSACKPerm:
			fields["sack_permitted"] = true
		case kind == tcpOptSACK && len(data)%8 == 0:
			blocks := make([][2]uint32, 0, len(data)/8)
			for i := 0; i < len(data); i += 8 {
				blocks = append(blocks, [2]uint32{
					binary.BigEndian.Uint32(data[i : i+4]),
					binary.BigEndian.Uint32(data[i+4 : i+8]),
				})
			}
			fields["sack"] = blocks
		case kind == tcpOptTimestamp && len(data) == 8:
			fields["tsval"] = binary.BigEndian.Uint32(data[0:4])
			fields["tsecr"] = binary.BigEndian.Uint32(data[4:8])
		}
	}
	return opts, nil
}

// dissectICMP decodes an ICMP or ICMPv6 message. The whole message is one
// layer; echo messages expose their identifier and sequence number.
func dissectICMP(cur *core.Cursor, ctx *plugin.Context) (plugin.Result, error) {
	hdr, err := cur.Read(icmpHeaderLen)
	if err != nil {
		return plugin.Result{}, err
	}

	typ, code := hdr[0], hdr[1]
	fields := core.Fields{
		core.FieldType: typ,
		"code":         code,
		"checksum":     binary.BigEndian.Uint16(hdr[2:4]),
	}
	if isEcho(ctx.Parent, typ) {
		fields["id"] = binary.BigEndian.Uint16(hdr[4:6])
		fields["seq"] = binary.BigEndian.Uint16(hdr[6:8])
	} else {
		fields["rest"] = binary.BigEndian.Uint32(hdr[4:8])
	}

	body := cur.Rest()
	fields[core.FieldPayload] = len(body)
	return plugin.Result{Length: icmpHeaderLen + len(body), Fields: fields}, nil
}

func isEcho(parent string, typ uint8) bool {
	if parent == "ipv6" {
		return typ == 128 || typ == 129
	}
	return typ == 0 || typ == 8
}
