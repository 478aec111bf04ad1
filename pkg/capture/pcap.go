package capture

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"firestige.xyz/pktkit/internal/core"
)

const (
	pcapHeaderLen       = 24
	pcapRecordHeaderLen = 16

	magicMicroseconds = 0xA1B2C3D4
	magicNanoseconds  = 0xA1B23C4D
)

// pcapSource reads classic libpcap files.
type pcapSource struct {
	r      *bufio.Reader
	order  binary.ByteOrder
	unit   tsUnit
	header core.CaptureHeader
	rec    [pcapRecordHeaderLen]byte
}

// newPCAPSource parses the 24-byte global header. The magic has already
// been matched against order and unit.
func newPCAPSource(r *bufio.Reader, order binary.ByteOrder, unit tsUnit) (*pcapSource, error) {
	var hdr [pcapHeaderLen]byte
	if n, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, core.Truncatedf("PCAP global header: %d of %d bytes", n, pcapHeaderLen)
	}

	snapLen := order.Uint32(hdr[16:20])
	// upper bits of the network field carry FCS information
	link := core.LinkType(order.Uint32(hdr[20:24]) & 0xFFFF)
	iface := core.Interface{
		LinkType:   link,
		SnapLen:    snapLen,
		Resolution: unit.resolution(),
	}
	return &pcapSource{
		r:     r,
		order: order,
		unit:  unit,
		header: core.CaptureHeader{
			Format:       core.FormatPCAP,
			ByteOrder:    order,
			VersionMajor: order.Uint16(hdr[4:6]),
			VersionMinor: order.Uint16(hdr[6:8]),
			SnapLen:      snapLen,
			LinkType:     link,
			Resolution:   iface.Resolution,
			Interfaces:   []core.Interface{iface},
		},
	}, nil
}

func (s *pcapSource) Header() core.CaptureHeader { return s.header }

func (s *pcapSource) Next() (*core.Frame, error) {
	n, err := io.ReadFull(s.r, s.rec[:])
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, core.Truncatedf("PCAP record header: %d of %d bytes", n, pcapRecordHeaderLen)
	}

	sec := s.order.Uint32(s.rec[0:4])
	frac := s.order.Uint32(s.rec[4:8])
	capLen := s.order.Uint32(s.rec[8:12])
	origLen := s.order.Uint32(s.rec[12:16])
	if capLen > MaxFrameSize {
		return nil, fmt.Errorf("%w: PCAP record of %d bytes exceeds %d", core.ErrStructural, capLen, MaxFrameSize)
	}

	data, err := readBody(s.r, int(capLen))
	if err != nil {
		return nil, err
	}
	ticks := uint64(sec)*s.unit.perSecond() + uint64(frac)
	return &core.Frame{
		Timestamp:  s.unit.toTime(ticks, 0),
		Resolution: s.header.Resolution,
		CaptureLen: capLen,
		OrigLen:    origLen,
		LinkType:   s.header.LinkType,
		Data:       data,
	}, nil
}

// readBody reads exactly n bytes of frame data.
func readBody(r io.Reader, n int) ([]byte, error) {
	data := make([]byte, n)
	got, err := io.ReadFull(r, data)
	if err != nil {
		return nil, core.Truncatedf("frame body: %d of %d bytes", got, n)
	}
	return data, nil
}
