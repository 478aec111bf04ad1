package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor_ReadAndPeek(t *testing.T) {
	c := NewCursor([]byte{1, 2, 3, 4, 5})

	b, err := c.Peek(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, b)
	assert.Equal(t, 0, c.Offset())

	b, err = c.Read(3)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, b)
	assert.Equal(t, 3, c.Offset())
	assert.Equal(t, 2, c.Remaining())
	assert.Equal(t, 5, c.Len())
	assert.Equal(t, []byte{4, 5}, c.Rest())
	assert.Equal(t, []byte{1, 2, 3}, c.Consumed())
}

func TestCursor_ShortReadIsTruncated(t *testing.T) {
	c := NewCursor([]byte{1, 2})

	_, err := c.Read(3)
	assert.ErrorIs(t, err, ErrTruncated)
	assert.Equal(t, 0, c.Offset(), "failed read must not advance")

	_, err = c.Peek(3)
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = c.Read(-1)
	assert.ErrorIs(t, err, ErrStructural)
}

func TestCursor_CopyForksPosition(t *testing.T) {
	c := NewCursor([]byte{1, 2, 3})
	fork := c
	require.NoError(t, fork.Skip(2))

	assert.Equal(t, 0, c.Offset())
	assert.Equal(t, 2, fork.Offset())
}

func TestCursor_SubIsBounded(t *testing.T) {
	c := NewCursor([]byte{1, 2, 3, 4, 5})
	sub, err := c.Sub(2)
	require.NoError(t, err)

	assert.Equal(t, 2, c.Offset())
	assert.Equal(t, 2, sub.Len())
	_, err = sub.Read(3)
	assert.ErrorIs(t, err, ErrTruncated)

	_, err = c.Sub(4)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestCursor_Limit(t *testing.T) {
	c := NewCursor([]byte{1, 2, 3, 4, 5})
	require.NoError(t, c.Skip(1))
	c.Limit(2)
	assert.Equal(t, 2, c.Remaining())

	c.Limit(10)
	assert.Equal(t, 2, c.Remaining())
}

func TestCursor_Integers(t *testing.T) {
	data := []byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0}

	tests := []struct {
		width int
		order binary.ByteOrder
		want  uint64
	}{
		{1, binary.BigEndian, 0x12},
		{2, binary.BigEndian, 0x1234},
		{2, binary.LittleEndian, 0x3412},
		{4, binary.BigEndian, 0x12345678},
		{4, binary.LittleEndian, 0x78563412},
		{8, binary.BigEndian, 0x123456789abcdef0},
		{8, binary.LittleEndian, 0xf0debc9a78563412},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%s", tt.width, tt.order), func(t *testing.T) {
			c := NewCursor(data)
			v, err := c.PeekUint(tt.width, tt.order)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
			assert.Equal(t, 0, c.Offset())

			v, err = c.Uint(tt.width, tt.order)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
			assert.Equal(t, tt.width, c.Offset())
		})
	}

	c := NewCursor(data)
	_, err := c.Uint(3, binary.BigEndian)
	assert.ErrorIs(t, err, ErrStructural)

	c = NewCursor(data[:3])
	_, err = c.Uint32(binary.BigEndian)
	assert.ErrorIs(t, err, ErrTruncated)
	_, err = c.Uint64(binary.LittleEndian)
	assert.ErrorIs(t, err, ErrTruncated)
	u16, err := c.Uint16(binary.BigEndian)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), u16)
	u8, err := c.Uint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x56), u8)
	_, err = c.Uint8()
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestBitsAndFlag(t *testing.T) {
	// IPv4 version/IHL byte
	assert.Equal(t, uint64(4), Bits(0x45, 4, 4))
	assert.Equal(t, uint64(5), Bits(0x45, 0, 4))
	// IPv6 first word: version 6, traffic class 0xab, flow label 0xcdef1
	assert.Equal(t, uint64(6), Bits(0x6abcdef1, 28, 4))
	assert.Equal(t, uint64(0xab), Bits(0x6abcdef1, 20, 8))
	assert.Equal(t, uint64(0xcdef1), Bits(0x6abcdef1, 0, 20))
	assert.Equal(t, uint64(0xff), Bits(0xff00, 8, 64))

	assert.True(t, Flag(0x12, 1))
	assert.False(t, Flag(0x12, 0))
}

func TestCursor_LengthPrefixed(t *testing.T) {
	c := NewCursor([]byte{0x00, 0x03, 'a', 'b', 'c', 'd'})
	s, err := c.LengthPrefixedString(2, binary.BigEndian)
	require.NoError(t, err)
	assert.Equal(t, "abc", s)
	assert.Equal(t, 5, c.Offset())

	c = NewCursor([]byte{0x05, 'a', 'b'})
	_, err = c.LengthPrefixed(1, binary.BigEndian)
	assert.ErrorIs(t, err, ErrTruncated)
	assert.Equal(t, 0, c.Offset())

	c = NewCursor([]byte{0x02, 0x00, 0x00, 0x00, 'h', 'i'})
	b, err := c.LengthPrefixed(4, binary.LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), b)

	c = NewCursor([]byte("GET /"))
	s, err = c.String(3)
	require.NoError(t, err)
	assert.Equal(t, "GET", s)
}

func TestCursor_Align(t *testing.T) {
	c := NewCursor(make([]byte, 8))
	require.NoError(t, c.Skip(1))
	require.NoError(t, c.Align(4))
	assert.Equal(t, 4, c.Offset())
	require.NoError(t, c.Align(4))
	assert.Equal(t, 4, c.Offset())

	require.NoError(t, c.Skip(3))
	require.NoError(t, c.Align(8))
	assert.Equal(t, 8, c.Offset())

	c = NewCursor(make([]byte, 5))
	require.NoError(t, c.Skip(5))
	assert.ErrorIs(t, c.Align(4), ErrTruncated)
	assert.ErrorIs(t, c.Align(0), ErrStructural)

	assert.Equal(t, 8, Padded(5, 4))
	assert.Equal(t, 4, Padded(4, 4))
	assert.Equal(t, 0, Padded(0, 4))
}

func TestCursor_Addresses(t *testing.T) {
	data := []byte{
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55,
		192, 168, 1, 1,
		0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1,
	}
	c := NewCursor(data)

	mac, err := c.MAC()
	require.NoError(t, err)
	assert.Equal(t, "00:11:22:33:44:55", mac.String())

	v4, err := c.IPv4()
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("192.168.1.1"), v4)

	v6, err := c.IPv6()
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("2001:db8::1"), v6)

	_, err = c.IPv4()
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestErrorTag(t *testing.T) {
	assert.Equal(t, "", ErrorTag(nil))
	assert.Equal(t, TagTruncated, ErrorTag(Truncatedf("short")))
	assert.Equal(t, TagStructural, ErrorTag(Structuralf("bad")))
	assert.Equal(t, TagMaxDepth, ErrorTag(fmt.Errorf("chain: %w", ErrMaxDepthExceeded)))
	assert.Equal(t, TagStructural, ErrorTag(errors.New("plugin failure")))

	err := &DissectError{Protocol: "ipv4", Offset: 14, Err: Truncatedf("header")}
	assert.ErrorIs(t, err, ErrTruncated)
	assert.Contains(t, err.Error(), "ipv4 at offset 14")
}

func TestPacket_ChainAndBytes(t *testing.T) {
	frame := []byte{1, 2, 3, 4, 5, 6, 7}
	p := &Packet{
		Layers: []Layer{
			{Protocol: "ethernet", Data: frame[:3]},
			{Protocol: "ipv4", Data: frame[3:5]},
			{Protocol: ProtocolRaw, Data: frame[5:6], Err: Truncatedf("tcp")},
		},
		Remainder: frame[6:],
		State:     StateAborted,
	}

	assert.Equal(t, "Ethernet:IPv4:Raw", p.Chain())
	assert.Equal(t, frame, p.Bytes())
	assert.Equal(t, "ipv4", p.Layer("ipv4").Protocol)
	assert.Nil(t, p.Layer("udp"))

	term := p.Terminal()
	require.NotNil(t, term)
	assert.True(t, term.IsRaw())
	assert.Equal(t, TagTruncated, term.Tag())
	assert.Equal(t, "aborted", p.State.String())

	unknown := Layer{Protocol: ProtocolUnknown}
	assert.Equal(t, TagUnknown, unknown.Tag())

	assert.Nil(t, (&Packet{}).Terminal())
	assert.Equal(t, "custom", DisplayName("custom"))
}

func TestFrame_Truncated(t *testing.T) {
	assert.True(t, (&Frame{CaptureLen: 64, OrigLen: 1500}).Truncated())
	assert.False(t, (&Frame{CaptureLen: 60, OrigLen: 60}).Truncated())
}

func TestFields_Accessors(t *testing.T) {
	f := Fields{
		"ttl":    uint8(64),
		"port":   uint16(53),
		"seq":    uint32(7),
		"len":    42,
		"neg":    -1,
		"method": "GET",
		"df":     true,
		"opts":   Fields{"mss": uint16(1460)},
	}

	v, ok := f.Uint("ttl")
	assert.True(t, ok)
	assert.Equal(t, uint64(64), v)
	v, _ = f.Uint("port")
	assert.Equal(t, uint64(53), v)
	v, _ = f.Uint("seq")
	assert.Equal(t, uint64(7), v)
	v, _ = f.Uint("len")
	assert.Equal(t, uint64(42), v)
	_, ok = f.Uint("neg")
	assert.False(t, ok)
	_, ok = f.Uint("method")
	assert.False(t, ok)

	s, ok := f.String("method")
	assert.True(t, ok)
	assert.Equal(t, "GET", s)

	b, ok := f.Bool("df")
	assert.True(t, ok)
	assert.True(t, b)

	sub, ok := f.Sub("opts")
	require.True(t, ok)
	mss, _ := sub.Uint("mss")
	assert.Equal(t, uint64(1460), mss)
}

func TestEnumsString(t *testing.T) {
	assert.Equal(t, "PCAP", FormatPCAP.String())
	assert.Equal(t, "PCAPNG", FormatPCAPNG.String())
	assert.Equal(t, "complete-unknown", StateCompleteUnknown.String())
	assert.Equal(t, "ethertype/0x86dd", Next{Kind: KindEtherType, Code: 0x86dd}.String())
}
