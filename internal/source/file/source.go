// Package file reads frames from a PCAP or PCAPNG file.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/mitchellh/mapstructure"

	"firestige.xyz/pktkit/internal/core"
	"firestige.xyz/pktkit/internal/log"
	"firestige.xyz/pktkit/internal/metrics"
	"firestige.xyz/pktkit/pkg/capture"
)

const Name = "file"

type FileCfg struct {
	FilePath string `mapstructure:"file_path"`
	// Limit stops the source after this many frames, 0 for no limit.
	Limit int `mapstructure:"limit"`
}

// FileSource is a pipeline source over one capture file.
type FileSource struct {
	path   string
	limit  int
	read   int
	reader *capture.Reader
}

func NewSource(cfg *FileCfg) (*FileSource, error) {
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("file_path is required")
	}
	if cfg.Limit < 0 {
		return nil, fmt.Errorf("limit must not be negative, got %d", cfg.Limit)
	}
	return &FileSource{
		path:  cfg.FilePath,
		limit: cfg.Limit,
	}, nil
}

// NewSourceFromMap builds a source from a loosely typed option map, as found
// in plugin configuration.
func NewSourceFromMap(m map[string]any) (*FileSource, error) {
	var cfg FileCfg
	if err := mapstructure.WeakDecode(m, &cfg); err != nil {
		return nil, fmt.Errorf("decode %s source config: %w", Name, err)
	}
	return NewSource(&cfg)
}

func (fs *FileSource) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	reader, err := capture.OpenFile(fs.path)
	if err != nil {
		return fmt.Errorf("failed to open capture file %s: %w", fs.path, err)
	}
	fs.reader = reader

	hdr := reader.Header()
	log.GetLogger().WithFields(map[string]interface{}{
		"path":      fs.path,
		"format":    hdr.Format.String(),
		"link_type": uint32(hdr.LinkType),
		"snaplen":   hdr.SnapLen,
	}).Debug("capture file opened")
	return nil
}

// ReadFrame returns the next frame, or io.EOF at the end of the file or
// once the configured limit is reached.
func (fs *FileSource) ReadFrame() (*core.Frame, error) {
	if fs.reader == nil {
		return nil, fmt.Errorf("file source not started")
	}
	if fs.limit > 0 && fs.read >= fs.limit {
		return nil, io.EOF
	}

	frame, err := fs.reader.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read frame %d: %w", fs.read+1, err)
	}
	fs.read++
	metrics.ObserveCapture(fs.reader.Format(), frame)
	return frame, nil
}

// Info returns the capture header of the open file.
func (fs *FileSource) Info() core.CaptureHeader {
	if fs.reader == nil {
		return core.CaptureHeader{}
	}
	return fs.reader.Header()
}

func (fs *FileSource) Stats() *capture.Stats {
	if fs.reader == nil {
		return capture.NewStats()
	}
	return fs.reader.Stats()
}

func (fs *FileSource) Stop() error {
	if fs.reader != nil {
		err := fs.reader.Close()
		fs.reader = nil
		return err
	}
	return nil
}
