// Package pcapfile exports frames to a classic PCAP file.
package pcapfile

import (
	"bufio"
	"fmt"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/pktkit/internal/core"
	"firestige.xyz/pktkit/internal/log"
)

const Name = "pcapfile"

// Sink writes frames of a single link type. PCAP has one link type per
// file, so frames of other interfaces in a PCAPNG capture are not supported.
type Sink struct {
	path     string
	linkType core.LinkType
	file     *os.File
	buf      *bufio.Writer
	w        *pcapgo.Writer
	written  int
}

// NewSink creates path and writes the file header.
func NewSink(path string, linkType core.LinkType, snapLen uint32) (*Sink, error) {
	if linkType > 0xff {
		return nil, fmt.Errorf("link type %d cannot be exported", uint32(linkType))
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	if snapLen == 0 {
		snapLen = 65535
	}

	buf := bufio.NewWriter(f)
	w := pcapgo.NewWriterNanos(buf)
	if err := w.WriteFileHeader(snapLen, layers.LinkType(linkType)); err != nil {
		f.Close()
		return nil, fmt.Errorf("write pcap header: %w", err)
	}
	return &Sink{path: path, linkType: linkType, file: f, buf: buf, w: w}, nil
}

func (s *Sink) Support(f *core.Frame) bool {
	return f.LinkType == s.linkType
}

func (s *Sink) HandleFrame(f *core.Frame) error {
	ci := gopacket.CaptureInfo{
		Timestamp:      f.Timestamp,
		CaptureLength:  len(f.Data),
		Length:         int(f.OrigLen),
		InterfaceIndex: f.InterfaceIndex,
	}
	if ci.Length < ci.CaptureLength {
		ci.Length = ci.CaptureLength
	}
	if err := s.w.WritePacket(ci, f.Data); err != nil {
		return fmt.Errorf("write frame %d: %w", f.Number, err)
	}
	s.written++
	return nil
}

// Written returns the number of frames exported.
func (s *Sink) Written() int { return s.written }

func (s *Sink) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.buf.Flush()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	s.file = nil
	log.GetLogger().WithFields(map[string]interface{}{
		"path":   s.path,
		"frames": s.written,
	}).Debug("pcap export closed")
	return err
}
