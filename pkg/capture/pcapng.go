package capture

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"firestige.xyz/pktkit/internal/core"
)

// PCAPNG block types
const (
	blockSectionHeader  = 0x0A0D0D0A
	blockInterface      = 0x00000001
	blockPacket         = 0x00000002 // obsolete
	blockSimplePacket   = 0x00000003
	blockEnhancedPacket = 0x00000006

	byteOrderMagic = 0x1A2B3C4D

	blockHeaderLen  = 8
	blockMinLen     = 12
	shbFixedLen     = 16
	idbFixedLen     = 8
	epbFixedLen     = 20
	spbFixedLen     = 4
	obsoleteFixeLen = 20
)

// IDB options
const (
	optEndOfOpt  = 0
	optIfName    = 2
	optTSResol   = 9
	optTSOffset  = 14
	optIfNameMax = 256
)

type ngInterface struct {
	core.Interface
	unit   tsUnit
	offset int64 // seconds
}

// pcapngSource reads PCAPNG files block by block. Interface indices are
// scoped to the section that declared them.
type pcapngSource struct {
	r        *bufio.Reader
	order    binary.ByteOrder
	section  []ngInterface
	header   core.CaptureHeader
	sections int
}

func newPCAPNGSource(r *bufio.Reader) (*pcapngSource, error) {
	s := &pcapngSource{
		r:      r,
		header: core.CaptureHeader{Format: core.FormatPCAPNG},
	}
	if err := s.readSectionHeader(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, core.Truncatedf("PCAPNG section header missing")
		}
		return nil, err
	}
	return s, nil
}

func (s *pcapngSource) Header() core.CaptureHeader { return s.header }

// readSectionHeader consumes a Section Header Block. The byte order is only
// known after the byte-order magic, so the block length is decoded late.
func (s *pcapngSource) readSectionHeader() error {
	var fixed [blockHeaderLen + 4]byte
	n, err := io.ReadFull(s.r, fixed[:])
	if err != nil {
		if n == 0 {
			return io.EOF
		}
		return core.Truncatedf("PCAPNG section header: %d of %d bytes", n, len(fixed))
	}

	var order binary.ByteOrder
	switch {
	case binary.LittleEndian.Uint32(fixed[8:12]) == byteOrderMagic:
		order = binary.LittleEndian
	case binary.BigEndian.Uint32(fixed[8:12]) == byteOrderMagic:
		order = binary.BigEndian
	default:
		return fmt.Errorf("%w: PCAPNG byte-order magic 0x%08x", core.ErrUnsupportedFormat, binary.BigEndian.Uint32(fixed[8:12]))
	}

	total := order.Uint32(fixed[4:8])
	if total < blockMinLen+shbFixedLen {
		return core.Structuralf("PCAPNG section header length %d", total)
	}
	body, err := s.readBlockBody(order, total, len(fixed))
	if err != nil {
		return err
	}

	s.order = order
	s.section = s.section[:0]
	s.sections++
	if s.sections == 1 {
		s.header.ByteOrder = order
		s.header.VersionMajor = order.Uint16(body[0:2])
		s.header.VersionMinor = order.Uint16(body[2:4])
	}
	return nil
}

// readBlockBody reads the rest of a block whose first consumed bytes are
// already read, verifies the trailing length and returns the bytes between.
func (s *pcapngSource) readBlockBody(order binary.ByteOrder, total uint32, consumed int) ([]byte, error) {
	if total%4 != 0 {
		return nil, core.Structuralf("PCAPNG block length %d not a multiple of 4", total)
	}
	if total > MaxFrameSize+blockMinLen+epbFixedLen+(1<<16) {
		return nil, core.Structuralf("PCAPNG block length %d exceeds limit", total)
	}
	rest := make([]byte, int(total)-consumed)
	if n, err := io.ReadFull(s.r, rest); err != nil {
		return nil, core.Truncatedf("PCAPNG block: %d of %d bytes", n, len(rest))
	}
	trailer := order.Uint32(rest[len(rest)-4:])
	if trailer != total {
		return nil, core.Structuralf("PCAPNG block length %d, trailer says %d", total, trailer)
	}
	return rest[:len(rest)-4], nil
}

func (s *pcapngSource) Next() (*core.Frame, error) {
	for {
		peek, err := s.r.Peek(4)
		if err != nil {
			if len(peek) == 0 && errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, core.Truncatedf("PCAPNG block header: %d of %d bytes", len(peek), blockHeaderLen)
		}
		if binary.LittleEndian.Uint32(peek) == blockSectionHeader {
			if err := s.readSectionHeader(); err != nil {
				return nil, err
			}
			continue
		}

		var hdr [blockHeaderLen]byte
		if n, err := io.ReadFull(s.r, hdr[:]); err != nil {
			return nil, core.Truncatedf("PCAPNG block header: %d of %d bytes", n, blockHeaderLen)
		}
		typ := s.order.Uint32(hdr[0:4])
		total := s.order.Uint32(hdr[4:8])
		if total < blockMinLen {
			return nil, core.Structuralf("PCAPNG block 0x%x length %d", typ, total)
		}
		body, err := s.readBlockBody(s.order, total, blockHeaderLen)
		if err != nil {
			return nil, err
		}

		switch typ {
		case blockInterface:
			if err := s.addInterface(body); err != nil {
				return nil, err
			}
		case blockEnhancedPacket:
			return s.enhancedPacket(body)
		case blockSimplePacket:
			return s.simplePacket(body)
		case blockPacket:
			return s.obsoletePacket(body)
		default:
			// statistics, name resolution, custom blocks
		}
	}
}

func (s *pcapngSource) addInterface(body []byte) error {
	if len(body) < idbFixedLen {
		return core.Structuralf("PCAPNG interface block body of %d bytes", len(body))
	}
	iface := ngInterface{
		Interface: core.Interface{
			LinkType: core.LinkType(s.order.Uint16(body[0:2])),
			SnapLen:  s.order.Uint32(body[4:8]),
		},
		unit: unitMicro,
	}

	err := s.walkOptions(body[idbFixedLen:], func(code uint16, value []byte) error {
		switch code {
		case optIfName:
			if len(value) <= optIfNameMax {
				iface.Name = string(value)
			}
		case optTSResol:
			if len(value) < 1 {
				return core.Structuralf("empty if_tsresol option")
			}
			unit, ok := parseTSResol(value[0])
			if !ok {
				return core.Structuralf("if_tsresol 0x%02x out of range", value[0])
			}
			iface.unit = unit
		case optTSOffset:
			if len(value) == 8 {
				iface.offset = int64(s.order.Uint64(value))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	iface.Resolution = iface.unit.resolution()

	s.section = append(s.section, iface)
	s.header.Interfaces = append(s.header.Interfaces, iface.Interface)
	if len(s.header.Interfaces) == 1 {
		s.header.LinkType = iface.LinkType
		s.header.SnapLen = iface.SnapLen
		s.header.Resolution = iface.Resolution
	}
	return nil
}

// walkOptions iterates a TLV option list; values are padded to 32 bits.
func (s *pcapngSource) walkOptions(opts []byte, fn func(code uint16, value []byte) error) error {
	cur := core.NewCursor(opts)
	for cur.Remaining() >= 4 {
		code, _ := cur.Uint16(s.order)
		length, _ := cur.Uint16(s.order)
		if code == optEndOfOpt {
			return nil
		}
		value, err := cur.Read(int(length))
		if err != nil {
			return core.Structuralf("PCAPNG option %d overruns block", code)
		}
		if err := cur.Align(4); err != nil {
			return core.Structuralf("PCAPNG option %d padding overruns block", code)
		}
		if err := fn(code, value); err != nil {
			return err
		}
	}
	return nil
}

func (s *pcapngSource) iface(id uint32) (*ngInterface, error) {
	if int(id) >= len(s.section) {
		return nil, core.Structuralf("packet references interface %d, section declares %d", id, len(s.section))
	}
	return &s.section[id], nil
}

func (s *pcapngSource) frame(ifaceID uint32, ticks uint64, capLen, origLen uint32, data []byte) (*core.Frame, error) {
	iface, err := s.iface(ifaceID)
	if err != nil {
		return nil, err
	}
	return &core.Frame{
		Timestamp:      iface.unit.toTime(ticks, iface.offset),
		Resolution:     iface.Resolution,
		CaptureLen:     capLen,
		OrigLen:        origLen,
		LinkType:       iface.LinkType,
		InterfaceIndex: int(ifaceID),
		Data:           data,
	}, nil
}

func (s *pcapngSource) enhancedPacket(body []byte) (*core.Frame, error) {
	if len(body) < epbFixedLen {
		return nil, core.Structuralf("PCAPNG enhanced packet body of %d bytes", len(body))
	}
	ifaceID := s.order.Uint32(body[0:4])
	ticks := uint64(s.order.Uint32(body[4:8]))<<32 | uint64(s.order.Uint32(body[8:12]))
	capLen := s.order.Uint32(body[12:16])
	origLen := s.order.Uint32(body[16:20])
	if uint64(capLen) > uint64(len(body)-epbFixedLen) {
		return nil, core.Structuralf("PCAPNG captured length %d exceeds block body %d", capLen, len(body)-epbFixedLen)
	}
	return s.frame(ifaceID, ticks, capLen, origLen, body[epbFixedLen:epbFixedLen+int(capLen)])
}

func (s *pcapngSource) obsoletePacket(body []byte) (*core.Frame, error) {
	if len(body) < obsoleteFixeLen {
		return nil, core.Structuralf("PCAPNG packet block body of %d bytes", len(body))
	}
	ifaceID := uint32(s.order.Uint16(body[0:2]))
	ticks := uint64(s.order.Uint32(body[4:8]))<<32 | uint64(s.order.Uint32(body[8:12]))
	capLen := s.order.Uint32(body[12:16])
	origLen := s.order.Uint32(body[16:20])
	if uint64(capLen) > uint64(len(body)-obsoleteFixeLen) {
		return nil, core.Structuralf("PCAPNG captured length %d exceeds block body %d", capLen, len(body)-obsoleteFixeLen)
	}
	return s.frame(ifaceID, ticks, capLen, origLen, body[obsoleteFixeLen:obsoleteFixeLen+int(capLen)])
}

// simplePacket carries no timestamp and always belongs to interface 0.
// The captured length is the smaller of the original length and the snaplen.
func (s *pcapngSource) simplePacket(body []byte) (*core.Frame, error) {
	if len(body) < spbFixedLen {
		return nil, core.Structuralf("PCAPNG simple packet body of %d bytes", len(body))
	}
	iface, err := s.iface(0)
	if err != nil {
		return nil, err
	}
	origLen := s.order.Uint32(body[0:4])
	capLen := min(origLen, uint32(len(body)-spbFixedLen))
	if iface.SnapLen > 0 {
		capLen = min(capLen, iface.SnapLen)
	}
	return &core.Frame{
		Resolution: iface.Resolution,
		CaptureLen: capLen,
		OrigLen:    origLen,
		LinkType:   iface.LinkType,
		Data:       body[spbFixedLen : spbFixedLen+int(capLen)],
	}, nil
}
