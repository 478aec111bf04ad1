package filter

import "firestige.xyz/pktkit/internal/core"

// Chain runs frames through filters in order. The first filter that does
// not match rejects the frame.
type Chain struct {
	filters []Filter
}

func NewChain(filters ...Filter) *Chain {
	all := make([]Filter, len(filters))
	copy(all, filters)
	return &Chain{filters: all}
}

// Accept reports whether frame passes every filter. When it does not, the
// name of the rejecting filter is returned. An empty chain accepts all.
func (c *Chain) Accept(frame *core.Frame) (bool, string) {
	for _, f := range c.filters {
		if !f.Match(frame) {
			return false, f.Name()
		}
	}
	return true, ""
}

func (c *Chain) Filters() []Filter {
	return c.filters
}

func (c *Chain) Len() int {
	return len(c.filters)
}
