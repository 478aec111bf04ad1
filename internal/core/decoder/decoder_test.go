package decoder

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pktkit/internal/core"
	iplugin "firestige.xyz/pktkit/internal/plugin"
	"firestige.xyz/pktkit/pkg/plugin"
)

// Helper function to create a simple IPv4 UDP packet
func makeSimpleUDPPacket() []byte {
	packet := make([]byte, 42) // Ethernet + IPv4 + UDP headers

	// Ethernet header (14 bytes)
	// Dst MAC: 00:11:22:33:44:55
	packet[0], packet[1], packet[2] = 0x00, 0x11, 0x22
	packet[3], packet[4], packet[5] = 0x33, 0x44, 0x55
	// Src MAC: AA:BB:CC:DD:EE:FF
	packet[6], packet[7], packet[8] = 0xAA, 0xBB, 0xCC
	packet[9], packet[10], packet[11] = 0xDD, 0xEE, 0xFF
	// EtherType: IPv4 (0x0800)
	packet[12], packet[13] = 0x08, 0x00

	// IPv4 header (20 bytes)
	packet[14] = 0x45                   // Version 4, IHL 5
	packet[15] = 0x00                   // DSCP, ECN
	packet[16], packet[17] = 0x00, 0x1C // Total Length: 28 bytes
	packet[18], packet[19] = 0x12, 0x34 // Identification
	packet[20], packet[21] = 0x00, 0x00 // Flags, Fragment Offset
	packet[22] = 0x40                   // TTL: 64
	packet[23] = 0x11                   // Protocol: UDP (17)
	packet[24], packet[25] = 0x00, 0x00 // Checksum (not calculated)
	// Src IP: 192.168.1.1
	packet[26], packet[27], packet[28], packet[29] = 192, 168, 1, 1
	// Dst IP: 192.168.1.2
	packet[30], packet[31], packet[32], packet[33] = 192, 168, 1, 2

	// UDP header (8 bytes)
	packet[34], packet[35] = 0x13, 0x88 // Src Port: 5000
	packet[36], packet[37] = 0x13, 0x89 // Dst Port: 5001
	packet[38], packet[39] = 0x00, 0x08 // Length: 8 bytes
	packet[40], packet[41] = 0x00, 0x00 // Checksum (not calculated)

	return packet
}

// serialize builds a frame with gopacket, fixing lengths and checksums.
func serialize(t testing.TB, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return buf.Bytes()
}

var (
	testSrcMAC = net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	testDstMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
)

func testEthernet(t layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{SrcMAC: testSrcMAC, DstMAC: testDstMAC, EthernetType: t}
}

func testIPv4(proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.IPv4(10, 0, 0, 1),
		DstIP:    net.IPv4(10, 0, 0, 2),
	}
}

func testIPv6(next layers.IPProtocol) *layers.IPv6 {
	return &layers.IPv6{
		Version:    6,
		NextHeader: next,
		HopLimit:   64,
		SrcIP:      net.ParseIP("2001:db8::1"),
		DstIP:      net.ParseIP("2001:db8::2"),
	}
}

func testUDP(nl gopacket.NetworkLayer, src, dst uint16) *layers.UDP {
	udp := &layers.UDP{SrcPort: layers.UDPPort(src), DstPort: layers.UDPPort(dst)}
	_ = udp.SetNetworkLayerForChecksum(nl)
	return udp
}

func testTCP(nl gopacket.NetworkLayer, src, dst uint16) *layers.TCP {
	tcp := &layers.TCP{SrcPort: layers.TCPPort(src), DstPort: layers.TCPPort(dst), Seq: 7, ACK: true, PSH: true, Window: 512}
	_ = tcp.SetNetworkLayerForChecksum(nl)
	return tcp
}

func protocols(pkt *core.Packet) []string {
	names := make([]string, 0, len(pkt.Layers))
	for _, l := range pkt.Layers {
		names = append(names, l.Protocol)
	}
	return names
}

// stepDissector consumes n bytes and dispatches to next.
func stepDissector(name string, n int, next *core.Next) plugin.Dissector {
	return plugin.NewDissector(name, core.StratumLink, func(cur *core.Cursor, _ *plugin.Context) (plugin.Result, error) {
		if err := cur.Skip(n); err != nil {
			return plugin.Result{}, err
		}
		return plugin.Result{Next: next}, nil
	})
}

func TestStandardDecoderDecode(t *testing.T) {
	d := NewStandardDecoder(Config{})
	data := makeSimpleUDPPacket()

	pkt := d.Decode(data, core.LinkTypeEthernet)

	require.Len(t, pkt.Layers, 3)
	assert.Equal(t, []string{"ethernet", "ipv4", "udp"}, protocols(pkt))
	assert.Equal(t, core.StateComplete, pkt.State)
	assert.NoError(t, pkt.Err)
	assert.Empty(t, pkt.Remainder)
	assert.Equal(t, "Ethernet:IPv4:UDP", pkt.Chain())

	eth, ip, udp := pkt.Layers[0], pkt.Layers[1], pkt.Layers[2]
	assert.Equal(t, 0, eth.Offset)
	assert.Equal(t, 14, eth.Len())
	assert.Equal(t, core.Next{Kind: core.KindEtherType, Code: 0x0800}, *eth.Next)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", eth.Fields[core.FieldSrc].(net.HardwareAddr).String())

	assert.Equal(t, 14, ip.Offset)
	assert.Equal(t, 20, ip.Len())
	assert.Equal(t, core.Next{Kind: core.KindIPProto, Code: 17}, *ip.Next)
	assert.Equal(t, "192.168.1.1", ip.Fields[core.FieldSrc].(interface{ String() string }).String())

	assert.Equal(t, 34, udp.Offset)
	assert.Equal(t, 8, udp.Len())
	assert.Nil(t, udp.Next)
	port, _ := udp.Fields.Uint(core.FieldDstPort)
	assert.EqualValues(t, 5001, port)

	assert.Equal(t, data, pkt.Bytes())
}

func TestStandardDecoderUnknownEtherType(t *testing.T) {
	d := NewStandardDecoder(Config{})
	data := makeSimpleUDPPacket()
	data[12], data[13] = 0xFF, 0xFF

	pkt := d.Decode(data, core.LinkTypeEthernet)

	require.Len(t, pkt.Layers, 2)
	assert.Equal(t, core.StateCompleteUnknown, pkt.State)
	assert.Nil(t, pkt.Layers[0].Next)

	unknown := pkt.Layers[1]
	assert.Equal(t, core.ProtocolUnknown, unknown.Protocol)
	assert.True(t, unknown.IsRaw())
	assert.Equal(t, core.TagUnknown, unknown.Tag())
	assert.Equal(t, 28, unknown.Len())
	assert.Equal(t, 14, unknown.Offset)
	assert.Equal(t, "ethertype", unknown.Fields["kind"])
	assert.Equal(t, uint32(0xFFFF), unknown.Fields["code"])
	assert.Empty(t, pkt.Remainder)
	assert.Equal(t, data, pkt.Bytes())
}

func TestStandardDecoderUnknownLinkType(t *testing.T) {
	d := NewStandardDecoder(Config{})
	data := []byte{1, 2, 3, 4}

	pkt := d.Decode(data, core.LinkType(147))

	require.Len(t, pkt.Layers, 1)
	assert.Equal(t, core.StateCompleteUnknown, pkt.State)
	assert.Equal(t, data, pkt.Layers[0].Data)
	assert.Equal(t, "link", pkt.Layers[0].Fields["kind"])
}

func TestStandardDecoderEmptyPacket(t *testing.T) {
	d := NewStandardDecoder(Config{})

	pkt := d.Decode(nil, core.LinkTypeEthernet)

	require.Len(t, pkt.Layers, 1)
	assert.Equal(t, core.StateAborted, pkt.State)
	assert.ErrorIs(t, pkt.Err, core.ErrTruncated)
	assert.Equal(t, core.ProtocolRaw, pkt.Layers[0].Protocol)
	assert.Equal(t, core.TagTruncated, pkt.Layers[0].Tag())
	assert.Empty(t, pkt.Bytes())
}

func TestStandardDecoderTruncatedPrefixes(t *testing.T) {
	d := NewStandardDecoder(Config{})
	data := makeSimpleUDPPacket()

	for n := 0; n < len(data); n++ {
		prefix := data[:n]
		var pkt *core.Packet
		require.NotPanics(t, func() { pkt = d.Decode(prefix, core.LinkTypeEthernet) }, "prefix %d", n)

		assert.Equal(t, core.StateAborted, pkt.State, "prefix %d", n)
		assert.ErrorIs(t, pkt.Err, core.ErrTruncated, "prefix %d", n)
		assert.Equal(t, []byte(prefix), pkt.Bytes(), "prefix %d", n)

		var dissectErr *core.DissectError
		require.ErrorAs(t, pkt.Err, &dissectErr, "prefix %d", n)
		assert.Equal(t, pkt.Terminal().Offset, dissectErr.Offset)
	}
}

func TestStandardDecoderTruncatedPayloadPrefixes(t *testing.T) {
	d := NewStandardDecoder(Config{})
	udpIP := testIPv4(layers.IPProtocolUDP)
	tcpIP := testIPv4(layers.IPProtocolTCP)
	frames := map[string][]byte{
		"udp": serialize(t, testEthernet(layers.EthernetTypeIPv4), udpIP, testUDP(udpIP, 40000, 40001),
			gopacket.Payload("twenty-six bytes of data!!")),
		"http": serialize(t, testEthernet(layers.EthernetTypeIPv4), tcpIP, testTCP(tcpIP, 40000, 80),
			gopacket.Payload("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n")),
	}

	for name, data := range frames {
		t.Run(name, func(t *testing.T) {
			full := d.Decode(data, core.LinkTypeEthernet)
			require.Equal(t, core.StateComplete, full.State)
			require.Empty(t, full.Remainder)

			for n := 0; n < len(data); n++ {
				prefix := data[:n]
				pkt := d.Decode(prefix, core.LinkTypeEthernet)

				assert.Equal(t, core.StateAborted, pkt.State, "prefix %d", n)
				assert.ErrorIs(t, pkt.Err, core.ErrTruncated, "prefix %d", n)
				assert.Equal(t, core.TagTruncated, pkt.Terminal().Tag(), "prefix %d", n)
				assert.Empty(t, pkt.Remainder, "prefix %d", n)
				assert.Equal(t, []byte(prefix), pkt.Bytes(), "prefix %d", n)
			}
		})
	}
}

func TestStandardDecoderSpanOverrunsParent(t *testing.T) {
	udp := append([]byte{}, udpHi...)
	udp[5] = 0x20 // UDP length 32, the IPv4 payload is 10
	data := append(ipv4Header(protocolUDP, len(udp), 0), udp...)

	pkt := NewStandardDecoder(Config{}).Decode(data, core.LinkTypeIPv4)

	assert.Equal(t, core.StateAborted, pkt.State)
	assert.ErrorIs(t, pkt.Err, core.ErrStructural)
	assert.Equal(t, []string{"ipv4", "udp", core.ProtocolRaw}, protocols(pkt))
	assert.Equal(t, 28, pkt.Terminal().Offset)
	assert.Equal(t, data, pkt.Bytes())
}

func TestStandardDecoderKeepsLinkPadding(t *testing.T) {
	d := NewStandardDecoder(Config{})
	data := append(makeSimpleUDPPacket(), make([]byte, 18)...)

	pkt := d.Decode(data, core.LinkTypeEthernet)

	assert.Equal(t, core.StateComplete, pkt.State)
	assert.Equal(t, []string{"ethernet", "ipv4", "udp"}, protocols(pkt))
	assert.Len(t, pkt.Remainder, 18)
	assert.Equal(t, data, pkt.Bytes())
}

func TestStandardDecoderMaxDepth(t *testing.T) {
	reg := iplugin.NewRegistry()
	self := plugin.NextOf(core.KindLink, 1)
	require.NoError(t, reg.Register(core.KindLink, 1, stepDissector("loop", 1, self)))

	d := NewStandardDecoder(Config{MaxDepth: 4, Registry: reg})
	data := make([]byte, 64)
	pkt := d.Decode(data, core.LinkTypeEthernet)

	assert.Equal(t, core.StateAborted, pkt.State)
	assert.ErrorIs(t, pkt.Err, core.ErrMaxDepthExceeded)
	require.Len(t, pkt.Layers, 6)
	raw := pkt.Terminal()
	assert.Equal(t, core.ProtocolRaw, raw.Protocol)
	assert.Equal(t, 5, raw.Offset)
	assert.Equal(t, core.TagMaxDepth, raw.Tag())
	assert.Equal(t, data, pkt.Bytes())
}

func TestStandardDecoderDefaults(t *testing.T) {
	d := NewStandardDecoder(Config{})
	assert.Equal(t, DefaultMaxDepth, d.MaxDepth())
}

func TestStandardDecoderPanicRecovery(t *testing.T) {
	reg := iplugin.NewRegistry()
	boom := plugin.NewDissector("boom", core.StratumLink, func(*core.Cursor, *plugin.Context) (plugin.Result, error) {
		panic("index out of range")
	})
	require.NoError(t, reg.Register(core.KindLink, 1, boom))

	d := NewStandardDecoder(Config{Registry: reg})
	data := []byte{1, 2, 3}

	var pkt *core.Packet
	require.NotPanics(t, func() { pkt = d.Decode(data, core.LinkTypeEthernet) })
	assert.Equal(t, core.StateAborted, pkt.State)
	assert.ErrorIs(t, pkt.Err, core.ErrStructural)
	assert.Contains(t, pkt.Err.Error(), "boom")
	assert.Equal(t, data, pkt.Bytes())
}

func TestStandardDecoderRejectsBadResults(t *testing.T) {
	tests := []struct {
		name   string
		result plugin.Result
	}{
		{"overrun", plugin.Result{Length: 10}},
		{"negative length", plugin.Result{Length: -1}},
		{"no progress", plugin.Result{Next: plugin.NextOf(core.KindLink, 2)}},
		{"negative span", plugin.Result{Length: 1, Span: -4, Next: plugin.NextOf(core.KindLink, 2)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := iplugin.NewRegistry()
			res := tt.result
			require.NoError(t, reg.Register(core.KindLink, 1, plugin.NewDissector("bad", core.StratumLink,
				func(*core.Cursor, *plugin.Context) (plugin.Result, error) { return res, nil })))

			pkt := NewStandardDecoder(Config{Registry: reg}).Decode([]byte{1, 2, 3, 4}, core.LinkTypeEthernet)
			assert.Equal(t, core.StateAborted, pkt.State)
			assert.ErrorIs(t, pkt.Err, core.ErrStructural)
			assert.Equal(t, []byte{1, 2, 3, 4}, pkt.Bytes())
		})
	}
}

func TestStandardDecoderSpanNarrowsWindow(t *testing.T) {
	reg := iplugin.NewRegistry()
	outer := plugin.NewDissector("outer", core.StratumLink, func(cur *core.Cursor, _ *plugin.Context) (plugin.Result, error) {
		return plugin.Result{Length: 2, Span: 3, Next: plugin.NextOf(core.KindLink, 2)}, nil
	})
	var seen *plugin.Context
	inner := plugin.NewDissector("inner", core.StratumTransport, func(cur *core.Cursor, ctx *plugin.Context) (plugin.Result, error) {
		seen = ctx
		return plugin.Result{Length: cur.Len()}, nil
	})
	require.NoError(t, reg.Register(core.KindLink, 1, outer))
	require.NoError(t, reg.Register(core.KindLink, 2, inner))

	pkt := NewStandardDecoder(Config{Registry: reg}).Decode([]byte{1, 2, 3, 4, 5, 6, 7, 8}, core.LinkTypeEthernet)

	assert.Equal(t, core.StateComplete, pkt.State)
	assert.Equal(t, []byte{3, 4, 5}, pkt.Layers[1].Data)
	assert.Equal(t, []byte{6, 7, 8}, pkt.Remainder)
	require.NotNil(t, seen)
	assert.Equal(t, 3, seen.ParentSpan)
	assert.Equal(t, 3, seen.Remaining)
	assert.Equal(t, 2, seen.Offset)
	assert.Equal(t, 1, seen.Depth)
	assert.Equal(t, "outer", seen.Parent)
	assert.Equal(t, 8, seen.FrameLen)
}

func TestStandardDecoderOverrideViaClone(t *testing.T) {
	reg := plugin.Default().Clone()
	custom := plugin.NewDissector("custom-udp", core.StratumTransport, func(cur *core.Cursor, _ *plugin.Context) (plugin.Result, error) {
		return plugin.Result{Length: cur.Len()}, nil
	})
	require.NoError(t, reg.Register(core.KindIPProto, 17, custom))
	data := makeSimpleUDPPacket()

	overridden := NewStandardDecoder(Config{Registry: reg}).Decode(data, core.LinkTypeEthernet)
	assert.Equal(t, []string{"ethernet", "ipv4", "custom-udp"}, protocols(overridden))

	standard := NewStandardDecoder(Config{}).Decode(data, core.LinkTypeEthernet)
	assert.Equal(t, []string{"ethernet", "ipv4", "udp"}, protocols(standard))
}

func TestStandardDecoderDeterministic(t *testing.T) {
	d := NewStandardDecoder(Config{})
	ip := testIPv4(layers.IPProtocolTCP)
	data := serialize(t,
		testEthernet(layers.EthernetTypeIPv4),
		ip,
		testTCP(ip, 40000, 80),
		gopacket.Payload("GET / HTTP/1.1\r\nHost: a\r\n\r\n"),
	)

	first := d.Decode(data, core.LinkTypeEthernet)
	second := d.Decode(data, core.LinkTypeEthernet)
	assert.Equal(t, first, second)
}

func TestStandardDecoderDecodeFrame(t *testing.T) {
	d := NewStandardDecoder(Config{})
	frame := &core.Frame{
		Data:       makeSimpleUDPPacket(),
		CaptureLen: 42,
		OrigLen:    42,
		LinkType:   core.LinkTypeEthernet,
	}

	pkt := d.DecodeFrame(frame)
	assert.Same(t, pkt, frame.Packet)
	assert.Equal(t, core.StateComplete, pkt.State)
}

func TestStandardDecoderMatchesGopacket(t *testing.T) {
	tcp := &layers.TCP{SrcPort: 51000, DstPort: 8443, Seq: 0xdeadbeef, Ack: 17, ACK: true, SYN: true, Window: 65535}
	ip := testIPv4(layers.IPProtocolTCP)
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	data := serialize(t, testEthernet(layers.EthernetTypeIPv4), ip, tcp, gopacket.Payload([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}))

	want := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
	wantIP := want.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	wantTCP := want.Layer(layers.LayerTypeTCP).(*layers.TCP)

	pkt := NewStandardDecoder(Config{}).Decode(data, core.LinkTypeEthernet)
	require.Equal(t, core.StateComplete, pkt.State)

	gotIP := pkt.Layer("ipv4")
	require.NotNil(t, gotIP)
	assert.Equal(t, wantIP.SrcIP.String(), gotIP.Fields[core.FieldSrc].(interface{ String() string }).String())
	assert.Equal(t, wantIP.Checksum, gotIP.Fields["checksum"])
	assert.Equal(t, wantIP.Length, gotIP.Fields["total_length"])

	gotTCP := pkt.Layer("tcp")
	require.NotNil(t, gotTCP)
	assert.Equal(t, uint16(wantTCP.SrcPort), gotTCP.Fields[core.FieldSrcPort])
	assert.Equal(t, wantTCP.Seq, gotTCP.Fields["seq"])
	assert.Equal(t, wantTCP.Checksum, gotTCP.Fields["checksum"])
	assert.Equal(t, true, gotTCP.Fields["syn"])
	assert.Equal(t, len(wantTCP.Contents), gotTCP.Len())

	// no dissector on either port: the payload stays undissected
	assert.Equal(t, wantTCP.Payload, pkt.Remainder)
}

func BenchmarkStandardDecoderDecode(b *testing.B) {
	d := NewStandardDecoder(Config{})
	data := makeSimpleUDPPacket()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d.Decode(data, core.LinkTypeEthernet)
	}
}
