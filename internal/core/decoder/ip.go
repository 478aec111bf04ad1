package decoder

import (
	"encoding/binary"

	"firestige.xyz/pktkit/internal/core"
	"firestige.xyz/pktkit/pkg/plugin"
)

const (
	ipv4HeaderMinLen = 20
	ipv6HeaderLen    = 40
	ipv6FragmentLen  = 8

	// IP protocol numbers
	protocolHopByHop = 0
	protocolICMP     = 1
	protocolIPIP     = 4
	protocolTCP      = 6
	protocolUDP      = 17
	protocolIPv6     = 41
	protocolRouting  = 43
	protocolFragment = 44
	protocolGRE      = 47
	protocolAH       = 51
	protocolICMPv6   = 58
	protocolNoNext   = 59
	protocolDstOpts  = 60
	protocolMobility = 135
)

var (
	ipv4Dissector  = plugin.NewDissector("ipv4", core.StratumInternet, dissectIPv4)
	ipv6Dissector  = plugin.NewDissector("ipv6", core.StratumInternet, dissectIPv6)
	rawIPDissector = plugin.NewDissector("ip", core.StratumInternet, dissectRawIP)
)

// dissectRawIP handles link types carrying a bare IP packet; the version
// nibble picks the header format.
func dissectRawIP(cur *core.Cursor, ctx *plugin.Context) (plugin.Result, error) {
	first, err := cur.PeekUint(1, binary.BigEndian)
	if err != nil {
		return plugin.Result{}, err
	}

	var res plugin.Result
	switch version := core.Bits(first, 4, 4); version {
	case 4:
		res, err = dissectIPv4(cur, ctx)
		res.Protocol = "ipv4"
	case 6:
		res, err = dissectIPv6(cur, ctx)
		res.Protocol = "ipv6"
	default:
		return plugin.Result{}, core.Structuralf("raw IP version %d", version)
	}
	return res, err
}

// dissectIPv4 decodes an IPv4 header including options.
// Non-first fragments end the chain: their payload cannot be decoded alone.
func dissectIPv4(cur *core.Cursor, _ *plugin.Context) (plugin.Result, error) {
	fixed, err := cur.Read(ipv4HeaderMinLen)
	if err != nil {
		return plugin.Result{}, err
	}

	version := fixed[0] >> 4
	if version != 4 {
		return plugin.Result{}, core.Structuralf("IPv4 header with version %d", version)
	}
	// IHL is in 32-bit words
	headerLen := int(fixed[0]&0x0F) * 4
	if headerLen < ipv4HeaderMinLen {
		return plugin.Result{}, core.Structuralf("IPv4 IHL %d below minimum", headerLen/4)
	}
	options, err := cur.Read(headerLen - ipv4HeaderMinLen)
	if err != nil {
		return plugin.Result{}, err
	}

	totalLen := binary.BigEndian.Uint16(fixed[2:4])
	if int(totalLen) < headerLen {
		return plugin.Result{}, core.Structuralf("IPv4 total length %d shorter than header %d", totalLen, headerLen)
	}
	flagsFrag := uint64(binary.BigEndian.Uint16(fixed[6:8]))
	fragOffset := uint16(core.Bits(flagsFrag, 0, 13))
	protocol := fixed[9]

	cur4 := core.NewCursor(fixed[12:20])
	src, _ := cur4.IPv4()
	dst, _ := cur4.IPv4()

	fields := core.Fields{
		"version":      version,
		"ihl":          uint8(headerLen / 4),
		"tos":          fixed[1],
		"total_length": totalLen,
		"id":           binary.BigEndian.Uint16(fixed[4:6]),
		"df":           core.Flag(flagsFrag, 14),
		"mf":           core.Flag(flagsFrag, 13),
		"frag_offset":  fragOffset,
		"ttl":          fixed[8],
		"protocol":     protocol,
		"checksum":     binary.BigEndian.Uint16(fixed[10:12]),
		core.FieldSrc:  src,
		core.FieldDst:  dst,
	}
	if len(options) > 0 {
		fields["options"] = options
	}

	res := plugin.Result{
		Length: headerLen,
		Fields: fields,
		Span:   int(totalLen) - headerLen,
	}
	// An empty payload has nothing to dispatch to.
	if fragOffset == 0 && res.Span > 0 {
		res.Next = plugin.NextOf(core.KindIPProto, core.Code(protocol))
	}
	return res, nil
}

// dissectIPv6 decodes the fixed IPv6 header and walks the extension header
// chain up to the upper-layer protocol.
func dissectIPv6(cur *core.Cursor, _ *plugin.Context) (plugin.Result, error) {
	fixed, err := cur.Read(ipv6HeaderLen)
	if err != nil {
		return plugin.Result{}, err
	}

	word := uint64(binary.BigEndian.Uint32(fixed[0:4]))
	version := uint8(core.Bits(word, 28, 4))
	if version != 6 {
		return plugin.Result{}, core.Structuralf("IPv6 header with version %d", version)
	}
	payloadLen := int(binary.BigEndian.Uint16(fixed[4:6]))
	nextHeader := fixed[6]

	cur6 := core.NewCursor(fixed[8:40])
	src, _ := cur6.IPv6()
	dst, _ := cur6.IPv6()

	fields := core.Fields{
		"version":       version,
		"traffic_class": uint8(core.Bits(word, 20, 8)),
		"flow_label":    uint32(core.Bits(word, 0, 20)),
		"payload_len":   uint16(payloadLen),
		"next_header":   nextHeader,
		"hop_limit":     fixed[7],
		core.FieldSrc:   src,
		core.FieldDst:   dst,
	}

	var extensions []int
	fragmented := false
	for isIPv6Extension(nextHeader) {
		next, fragOffset, err := readIPv6Extension(cur, nextHeader)
		if err != nil {
			return plugin.Result{}, err
		}
		extensions = append(extensions, int(nextHeader))
		if nextHeader == protocolFragment {
			fields["frag_offset"] = fragOffset
			fragmented = fragOffset > 0
		}
		nextHeader = next
	}
	if len(extensions) > 0 {
		fields["extensions"] = extensions
		fields["protocol"] = nextHeader
	}

	consumed := cur.Offset()
	res := plugin.Result{Length: consumed, Fields: fields}
	empty := false
	// A zero payload length (jumbogram) leaves the span to the frame.
	if payloadLen > 0 {
		span := ipv6HeaderLen + payloadLen - consumed
		if span < 0 {
			return plugin.Result{}, core.Structuralf("IPv6 extension headers overrun payload length %d", payloadLen)
		}
		res.Span = span
		empty = span == 0
	}
	if !fragmented && !empty && nextHeader != protocolNoNext {
		res.Next = plugin.NextOf(core.KindIPProto, core.Code(nextHeader))
	}
	return res, nil
}

func isIPv6Extension(nh uint8) bool {
	switch nh {
	case protocolHopByHop, protocolRouting, protocolFragment, protocolAH, protocolDstOpts, protocolMobility:
		return true
	}
	return false
}

// readIPv6Extension consumes one extension header. For a fragment header it
// also returns the fragment offset.
func readIPv6Extension(cur *core.Cursor, nh uint8) (uint8, uint16, error) {
	hdr, err := cur.Peek(2)
	if err != nil {
		return 0, 0, err
	}
	next := hdr[0]

	var n int
	switch nh {
	case protocolFragment:
		n = ipv6FragmentLen
	case protocolAH:
		// AH length is in 4-octet units minus 2
		n = (int(hdr[1]) + 2) * 4
	default:
		// in 8-octet units, not counting the first 8
		n = (int(hdr[1]) + 1) * 8
	}

	ext, err := cur.Read(n)
	if err != nil {
		return 0, 0, err
	}
	var fragOffset uint16
	if nh == protocolFragment {
		fragOffset = binary.BigEndian.Uint16(ext[2:4]) >> 3
	}
	return next, fragOffset, nil
}
