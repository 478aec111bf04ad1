// Package filter decides which frames reach the dissection workers.
package filter

import (
	"fmt"

	"golang.org/x/net/bpf"

	"firestige.xyz/pktkit/internal/config"
	"firestige.xyz/pktkit/internal/core"
)

// Filter decides whether a captured frame is worth dissecting. Name labels
// the frames it rejects.
type Filter interface {
	Name() string
	Match(frame *core.Frame) bool
}

// BPFFilter runs a classic BPF program over the captured bytes. A zero
// return value drops the frame.
type BPFFilter struct {
	vm *bpf.VM
}

// NewBPFFilter builds a filter from [op, jt, jf, k] tuples, the form
// printed by `tcpdump -dd`.
func NewBPFFilter(program [][]uint32) (*BPFFilter, error) {
	raw := make([]bpf.RawInstruction, len(program))
	for i, ins := range program {
		if len(ins) != 4 {
			return nil, fmt.Errorf("bpf instruction %d: want 4 values, got %d", i, len(ins))
		}
		raw[i] = bpf.RawInstruction{Op: uint16(ins[0]), Jt: uint8(ins[1]), Jf: uint8(ins[2]), K: ins[3]}
	}

	insns, ok := bpf.Disassemble(raw)
	if !ok {
		return nil, fmt.Errorf("bpf program contains undecodable instructions")
	}
	vm, err := bpf.NewVM(insns)
	if err != nil {
		return nil, fmt.Errorf("invalid bpf program: %w", err)
	}
	return &BPFFilter{vm: vm}, nil
}

func (f *BPFFilter) Name() string { return "bpf" }

func (f *BPFFilter) Match(frame *core.Frame) bool {
	n, err := f.vm.Run(frame.Data)
	return err == nil && n > 0
}

// LinkTypeFilter passes frames of the listed link types only.
type LinkTypeFilter struct {
	allowed map[core.LinkType]struct{}
}

func NewLinkTypeFilter(types ...core.LinkType) *LinkTypeFilter {
	f := &LinkTypeFilter{allowed: make(map[core.LinkType]struct{}, len(types))}
	for _, t := range types {
		f.allowed[t] = struct{}{}
	}
	return f
}

func (f *LinkTypeFilter) Name() string { return "link_type" }

func (f *LinkTypeFilter) Match(frame *core.Frame) bool {
	_, ok := f.allowed[frame.LinkType]
	return ok
}

// FromConfig builds the configured filters: link types first, so the BPF
// program only sees the frames it was compiled for.
func FromConfig(cfg config.FilterConfig) ([]Filter, error) {
	var filters []Filter
	if len(cfg.LinkTypes) > 0 {
		types := make([]core.LinkType, len(cfg.LinkTypes))
		for i, t := range cfg.LinkTypes {
			types[i] = core.LinkType(t)
		}
		filters = append(filters, NewLinkTypeFilter(types...))
	}
	if len(cfg.BPF) > 0 {
		f, err := NewBPFFilter(cfg.BPF)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return filters, nil
}
