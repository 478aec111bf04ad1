package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/pktkit/internal/config"
	"firestige.xyz/pktkit/internal/core"
)

// tcpdump -dd 'ip and udp'
var ipUDP = [][]uint32{
	{0x28, 0, 0, 0x0000000c},
	{0x15, 0, 3, 0x00000800},
	{0x30, 0, 0, 0x00000017},
	{0x15, 0, 1, 0x00000011},
	{0x06, 0, 0, 0x00040000},
	{0x06, 0, 0, 0x00000000},
}

func ethernetIPv4(protocol byte) *core.Frame {
	data := make([]byte, 34)
	data[12], data[13] = 0x08, 0x00
	data[14] = 0x45
	data[23] = protocol
	return &core.Frame{LinkType: core.LinkTypeEthernet, Data: data}
}

// accepted returns the frames the chain lets through.
func accepted(c *Chain, frames ...*core.Frame) []*core.Frame {
	var out []*core.Frame
	for _, f := range frames {
		if ok, _ := c.Accept(f); ok {
			out = append(out, f)
		}
	}
	return out
}

func TestBPFFilter(t *testing.T) {
	f, err := NewBPFFilter(ipUDP)
	require.NoError(t, err)

	udp, tcp := ethernetIPv4(17), ethernetIPv4(6)
	got := accepted(NewChain(f), udp, tcp, &core.Frame{Data: []byte{0x00}})

	assert.Equal(t, []*core.Frame{udp}, got)
}

func TestBPFFilterInvalidProgram(t *testing.T) {
	tests := []struct {
		name    string
		program [][]uint32
	}{
		{"short tuple", [][]uint32{{0x06, 0, 0}}},
		{"no return", [][]uint32{{0x28, 0, 0, 12}}},
		{"jump out of range", [][]uint32{{0x15, 5, 5, 0x800}, {0x06, 0, 0, 1}}},
		{"undecodable", [][]uint32{{0xffff, 0, 0, 0}, {0x06, 0, 0, 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBPFFilter(tt.program)
			assert.Error(t, err)
		})
	}
}

func TestLinkTypeFilter(t *testing.T) {
	chain := NewChain(NewLinkTypeFilter(core.LinkTypeEthernet, core.LinkTypeLinuxSLL))

	eth := &core.Frame{LinkType: core.LinkTypeEthernet}
	raw := &core.Frame{LinkType: core.LinkTypeRaw}

	assert.Equal(t, []*core.Frame{eth}, accepted(chain, eth, raw))
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string, match bool) Filter {
		return namedFilter{name: name, match: func(*core.Frame) bool {
			order = append(order, name)
			return match
		}}
	}

	chain := NewChain(mark("a", true), mark("b", true), mark("c", true))
	ok, by := chain.Accept(&core.Frame{})
	assert.True(t, ok)
	assert.Empty(t, by)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, 3, chain.Len())

	order = nil
	chain = NewChain(mark("a", true), mark("b", false), mark("c", true))
	ok, by = chain.Accept(&core.Frame{})
	assert.False(t, ok)
	assert.Equal(t, "b", by)
	assert.Equal(t, []string{"a", "b"}, order, "filters after the rejecting one are skipped")
}

func TestChainRejectingFilterName(t *testing.T) {
	bpf, err := NewBPFFilter(ipUDP)
	require.NoError(t, err)
	chain := NewChain(NewLinkTypeFilter(core.LinkTypeEthernet), bpf)

	_, by := chain.Accept(&core.Frame{LinkType: core.LinkTypeRaw})
	assert.Equal(t, "link_type", by)

	_, by = chain.Accept(ethernetIPv4(6))
	assert.Equal(t, "bpf", by)
}

func TestChainCopiesFilters(t *testing.T) {
	filters := []Filter{NewLinkTypeFilter(core.LinkTypeEthernet)}
	chain := NewChain(filters...)
	filters[0] = NewLinkTypeFilter(core.LinkTypeRaw)

	ok, _ := chain.Accept(&core.Frame{LinkType: core.LinkTypeEthernet})
	assert.True(t, ok)
	assert.IsType(t, &LinkTypeFilter{}, chain.Filters()[0])
}

func TestEmptyChainPassesEverything(t *testing.T) {
	ok, by := NewChain().Accept(&core.Frame{})
	assert.True(t, ok)
	assert.Empty(t, by)
}

func TestFromConfig(t *testing.T) {
	filters, err := FromConfig(config.FilterConfig{BPF: ipUDP, LinkTypes: []uint32{1}})
	require.NoError(t, err)
	require.Len(t, filters, 2)
	assert.IsType(t, &LinkTypeFilter{}, filters[0])
	assert.IsType(t, &BPFFilter{}, filters[1])

	filters, err = FromConfig(config.FilterConfig{})
	require.NoError(t, err)
	assert.Empty(t, filters)

	_, err = FromConfig(config.FilterConfig{BPF: [][]uint32{{1}}})
	assert.Error(t, err)
}

type namedFilter struct {
	name  string
	match func(*core.Frame) bool
}

func (f namedFilter) Name() string                 { return f.name }
func (f namedFilter) Match(frame *core.Frame) bool { return f.match(frame) }
