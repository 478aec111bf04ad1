package core

import (
	"encoding/binary"
	"net"
	"net/netip"
)

// Uint8 reads one byte.
func (c *Cursor) Uint8() (uint8, error) {
	b, err := c.Read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Uint16 reads a 2-byte integer in the given byte order.
func (c *Cursor) Uint16(order binary.ByteOrder) (uint16, error) {
	b, err := c.Read(2)
	if err != nil {
		return 0, err
	}
	return order.Uint16(b), nil
}

// Uint32 reads a 4-byte integer in the given byte order.
func (c *Cursor) Uint32(order binary.ByteOrder) (uint32, error) {
	b, err := c.Read(4)
	if err != nil {
		return 0, err
	}
	return order.Uint32(b), nil
}

// Uint64 reads an 8-byte integer in the given byte order.
func (c *Cursor) Uint64(order binary.ByteOrder) (uint64, error) {
	b, err := c.Read(8)
	if err != nil {
		return 0, err
	}
	return order.Uint64(b), nil
}

// Uint reads an unsigned integer of width 1, 2, 4 or 8 bytes.
func (c *Cursor) Uint(width int, order binary.ByteOrder) (uint64, error) {
	if err := checkWidth(width); err != nil {
		return 0, err
	}
	b, err := c.Read(width)
	if err != nil {
		return 0, err
	}
	return decodeUint(b, order), nil
}

// PeekUint reads an unsigned integer without advancing.
func (c *Cursor) PeekUint(width int, order binary.ByteOrder) (uint64, error) {
	if err := checkWidth(width); err != nil {
		return 0, err
	}
	b, err := c.Peek(width)
	if err != nil {
		return 0, err
	}
	return decodeUint(b, order), nil
}

func checkWidth(width int) error {
	switch width {
	case 1, 2, 4, 8:
		return nil
	default:
		return Structuralf("unsupported integer width %d", width)
	}
}

func decodeUint(b []byte, order binary.ByteOrder) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(order.Uint16(b))
	case 4:
		return uint64(order.Uint32(b))
	default:
		return order.Uint64(b)
	}
}

// Bits extracts width bits of v starting shift bits from the least
// significant end.
func Bits(v uint64, shift, width uint) uint64 {
	if width >= 64 {
		return v >> shift
	}
	return (v >> shift) & (1<<width - 1)
}

// Flag reports whether bit number bit (0 = least significant) of v is set.
func Flag(v uint64, bit uint) bool {
	return v&(1<<bit) != 0
}

// LengthPrefixed reads a width-byte length followed by that many bytes.
// A declared length larger than what remains fails with ErrTruncated and
// leaves the cursor where it was.
func (c *Cursor) LengthPrefixed(width int, order binary.ByteOrder) ([]byte, error) {
	save := *c
	n, err := c.Uint(width, order)
	if err != nil {
		*c = save
		return nil, err
	}
	if n > uint64(c.Remaining()) {
		*c = save
		return nil, Truncatedf("length prefix %d exceeds %d remaining bytes", n, c.Remaining())
	}
	return c.Read(int(n))
}

// String reads a fixed-size byte run as a string.
func (c *Cursor) String(n int) (string, error) {
	b, err := c.Read(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// LengthPrefixedString reads a length-prefixed byte run as a string.
func (c *Cursor) LengthPrefixedString(width int, order binary.ByteOrder) (string, error) {
	b, err := c.LengthPrefixed(width, order)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Align skips padding so that the offset becomes a multiple of boundary.
func (c *Cursor) Align(boundary int) error {
	if boundary <= 0 {
		return Structuralf("invalid alignment %d", boundary)
	}
	if pad := (boundary - c.off%boundary) % boundary; pad > 0 {
		return c.Skip(pad)
	}
	return nil
}

// Padded returns n rounded up to a multiple of boundary.
func Padded(n, boundary int) int {
	return (n + boundary - 1) / boundary * boundary
}

// MAC reads a 6-byte hardware address.
func (c *Cursor) MAC() (net.HardwareAddr, error) {
	b, err := c.Read(6)
	if err != nil {
		return nil, err
	}
	return net.HardwareAddr(b), nil
}

// IPv4 reads a 4-byte address.
func (c *Cursor) IPv4() (netip.Addr, error) {
	b, err := c.Read(4)
	if err != nil {
		return netip.Addr{}, err
	}
	return netip.AddrFrom4([4]byte(b)), nil
}

// IPv6 reads a 16-byte address.
func (c *Cursor) IPv6() (netip.Addr, error) {
	b, err := c.Read(16)
	if err != nil {
		return netip.Addr{}, err
	}
	return netip.AddrFrom16([16]byte(b)), nil
}
