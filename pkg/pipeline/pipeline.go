// Package pipeline defines the stage contracts of the bulk dissection
// pipeline. Embedders implement them to feed frames from their own sources
// or to consume dissected frames.
package pipeline

import (
	"firestige.xyz/pktkit/internal/core"
)

// Source yields captured frames in order. ReadFrame returns io.EOF once the
// source is exhausted.
type Source interface {
	ReadFrame() (*core.Frame, error)
}

// Decoder dissects one frame and attaches the packet to it.
type Decoder interface {
	DecodeFrame(frame *core.Frame) *core.Packet
}

// Sink receives dissected frames in frame order.
type Sink interface {
	Support(frame *core.Frame) bool
	HandleFrame(frame *core.Frame) error
}
