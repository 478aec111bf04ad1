package pipeline

import (
	"firestige.xyz/pktkit/internal/config"
	"firestige.xyz/pktkit/internal/filter"
	"firestige.xyz/pktkit/pkg/pipeline"
	"firestige.xyz/pktkit/pkg/plugin"
)

// Builder provides a fluent interface for building pipelines.
// This is an alternative to using Config directly.
type Builder struct {
	config Config
}

// NewBuilder creates a new pipeline builder.
func NewBuilder() *Builder {
	return &Builder{
		config: Config{
			QueueSize: DefaultQueueSize,
		},
	}
}

// WithConfig copies the worker, queue and depth settings of a loaded
// configuration. Filters are built separately since they can fail.
func (b *Builder) WithConfig(cfg *config.Config) *Builder {
	b.config.Workers = cfg.Pipeline.Workers
	b.config.QueueSize = cfg.Pipeline.QueueSize
	b.config.MaxDepth = cfg.Decoder.MaxDepth
	return b
}

// WithSource sets the frame source.
func (b *Builder) WithSource(s pipeline.Source) *Builder {
	b.config.Source = s
	return b
}

// WithDecoder sets the packet decoder.
func (b *Builder) WithDecoder(d pipeline.Decoder) *Builder {
	b.config.Decoder = d
	return b
}

// WithRegistry sets the dissector registry used by the default decoder.
func (b *Builder) WithRegistry(r plugin.Registry) *Builder {
	b.config.Registry = r
	return b
}

func (b *Builder) WithMaxDepth(depth int) *Builder {
	b.config.MaxDepth = depth
	return b
}

// WithFilters sets the filter chain.
func (b *Builder) WithFilters(filters ...filter.Filter) *Builder {
	b.config.Filters = filters
	return b
}

// WithSinks sets the sinks.
func (b *Builder) WithSinks(sinks ...pipeline.Sink) *Builder {
	b.config.Sinks = sinks
	return b
}

func (b *Builder) WithWorkers(n int) *Builder {
	b.config.Workers = n
	return b
}

// WithQueueSize sets the frame channel buffer size.
func (b *Builder) WithQueueSize(size int) *Builder {
	b.config.QueueSize = size
	return b
}

func (b *Builder) WithAbortLogLimit(n int) *Builder {
	b.config.AbortLogLimit = n
	return b
}

// Build creates the pipeline.
func (b *Builder) Build() *Pipeline {
	return New(b.config)
}
