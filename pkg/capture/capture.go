// Package capture reads PCAP and PCAPNG capture files into frames.
package capture

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"firestige.xyz/pktkit/internal/core"
)

// MaxFrameSize bounds a single captured record. Larger records are treated
// as a corrupt length field rather than allocated.
const MaxFrameSize = 64 << 20

const readBufferSize = 64 << 10

// source is one framing variant.
type source interface {
	Header() core.CaptureHeader
	Next() (*core.Frame, error)
	// snapLen is the snapshot length that applied to the frame just returned.
	snapLen(f *core.Frame) uint32
}

// Reader produces frames lazily from a capture stream. A Reader is not safe
// for concurrent use; the bulk pipeline drives it from a single goroutine.
type Reader struct {
	src    source
	closer io.Closer
	number int
	err    error
	stats  *Stats
}

// Open detects the capture format from its magic number and parses the
// file header. The caller keeps ownership of r.
func Open(r io.Reader) (*Reader, error) {
	br := bufio.NewReaderSize(r, readBufferSize)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, core.Truncatedf("capture magic: %d of 4 bytes", len(magic))
	}

	var src source
	le, be := binary.LittleEndian.Uint32(magic), binary.BigEndian.Uint32(magic)
	switch {
	case le == magicMicroseconds:
		src, err = newPCAPSource(br, binary.LittleEndian, unitMicro)
	case be == magicMicroseconds:
		src, err = newPCAPSource(br, binary.BigEndian, unitMicro)
	case le == magicNanoseconds:
		src, err = newPCAPSource(br, binary.LittleEndian, unitNano)
	case be == magicNanoseconds:
		src, err = newPCAPSource(br, binary.BigEndian, unitNano)
	case le == blockSectionHeader:
		src, err = newPCAPNGSource(br)
	default:
		return nil, fmt.Errorf("%w: magic 0x%08x", core.ErrUnsupportedFormat, be)
	}
	if err != nil {
		return nil, err
	}
	return &Reader{src: src, stats: NewStats()}, nil
}

// OpenFile opens path and returns a Reader that owns the file.
func OpenFile(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	r, err := Open(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read capture %s: %w", path, err)
	}
	r.closer = f
	return r, nil
}

// Header returns the capture header. For PCAPNG the interface list grows as
// Interface Description Blocks are read.
func (r *Reader) Header() core.CaptureHeader {
	return r.src.Header()
}

func (r *Reader) Format() core.Format {
	return r.src.Header().Format
}

// Next returns the next frame, or io.EOF once the stream ends at a record
// boundary. Any other error is sticky: the stream position is lost and
// every later call returns the same error.
func (r *Reader) Next() (*core.Frame, error) {
	if r.err != nil {
		return nil, r.err
	}
	f, err := r.src.Next()
	if err != nil {
		r.err = err
		return nil, err
	}

	r.number++
	f.Number = r.number
	r.stats.record(f, r.src.snapLen(f))
	return f, nil
}

// ReadAll reads every remaining frame. On error the frames read so far are
// returned together with the error.
func (r *Reader) ReadAll() (*core.Capture, error) {
	c := &core.Capture{}
	for {
		f, err := r.Next()
		if errors.Is(err, io.EOF) {
			c.Header = r.Header()
			return c, nil
		}
		if err != nil {
			c.Header = r.Header()
			return c, err
		}
		c.Frames = append(c.Frames, f)
	}
}

func (r *Reader) Stats() *Stats {
	return r.stats
}

// Close releases the underlying file when the Reader was created by OpenFile.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

func (s *pcapSource) snapLen(*core.Frame) uint32 {
	return s.header.SnapLen
}

func (s *pcapngSource) snapLen(f *core.Frame) uint32 {
	if f.InterfaceIndex < len(s.section) {
		return s.section[f.InterfaceIndex].SnapLen
	}
	return 0
}
