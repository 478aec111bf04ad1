// Package pipeline implements the bulk dissection pipeline: one reader
// feeding a pool of dissection workers, with results delivered in frame order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"firestige.xyz/pktkit/internal/core"
	"firestige.xyz/pktkit/internal/core/decoder"
	"firestige.xyz/pktkit/internal/filter"
	"firestige.xyz/pktkit/internal/log"
	"firestige.xyz/pktkit/internal/metrics"
	"firestige.xyz/pktkit/pkg/pipeline"
	"firestige.xyz/pktkit/pkg/plugin"
)

const (
	DefaultQueueSize     = 1024
	DefaultAbortLogLimit = 10
)

// Pipeline dissects every frame of a source. Workers read the registry
// concurrently, so it is sealed before they start.
type Pipeline struct {
	source    pipeline.Source
	decoder   pipeline.Decoder
	registry  plugin.Registry
	filters   []filter.Filter
	sinks     []pipeline.Sink
	workers   int
	queueSize int
	metrics   *Metrics
	limiter   *LogRateLimiter
}

// Config contains pipeline configuration.
type Config struct {
	Source    pipeline.Source
	Decoder   pipeline.Decoder // nil = standard decoder over Registry
	Registry  plugin.Registry  // nil = process-scoped registry
	MaxDepth  int              // used by the default decoder
	Filters   []filter.Filter
	Sinks     []pipeline.Sink
	Workers   int // 0 = one per CPU
	QueueSize int // frames buffered between reader and workers
	// AbortLogLimit bounds aborted-frame warnings per error tag per 10s window.
	// Negative disables the limit.
	AbortLogLimit int
}

type job struct {
	seq   uint64
	frame *core.Frame
}

// New creates a new pipeline.
func New(cfg Config) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.AbortLogLimit == 0 {
		cfg.AbortLogLimit = DefaultAbortLogLimit
	}
	if cfg.Registry == nil {
		cfg.Registry = plugin.Default()
	}
	if cfg.Decoder == nil {
		dcfg := decoder.Config{MaxDepth: cfg.MaxDepth}
		if cfg.Registry != nil {
			dcfg.Registry = cfg.Registry
		}
		cfg.Decoder = decoder.NewStandardDecoder(dcfg)
	}

	return &Pipeline{
		source:    cfg.Source,
		decoder:   cfg.Decoder,
		registry:  cfg.Registry,
		filters:   cfg.Filters,
		sinks:     cfg.Sinks,
		workers:   cfg.Workers,
		queueSize: cfg.QueueSize,
		metrics:   NewMetrics(),
		limiter:   NewLogRateLimiter(LogRateLimiterConfig{MaxPerKey: cfg.AbortLogLimit}),
	}
}

// Run dissects frames until the source is exhausted, the source fails, or
// ctx is cancelled. Every frame handed to the workers is dissected and
// delivered to the sinks in frame order before Run returns, cancellation
// included. A source error is returned wrapped; a clean end of input
// returns nil.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.source == nil {
		return fmt.Errorf("pipeline has no source")
	}
	if p.registry != nil {
		p.registry.Seal()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := log.GetLogger().WithField("workers", p.workers)
	logger.Debug("pipeline starting")

	jobs := make(chan job, p.queueSize)
	results := make(chan job, p.queueSize)
	// One slot per frame between the reader and delivery; this bounds the
	// reorder buffer behind a slow frame.
	slots := make(chan struct{}, p.window())

	var readErr error
	producerDone := make(chan struct{})
	go func() {
		defer close(producerDone)
		defer close(jobs)
		readErr = p.produce(ctx, jobs, slots)
	}()

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.work(jobs, results)
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	p.collect(results, slots)
	<-producerDone

	stats := p.Stats()
	logger.WithFields(map[string]interface{}{
		"received":  stats.Received,
		"filtered":  stats.Filtered,
		"delivered": stats.Delivered,
		"aborted":   stats.Aborted,
	}).Debug("pipeline stopped")

	if readErr != nil {
		if errors.Is(readErr, context.Canceled) || errors.Is(readErr, context.DeadlineExceeded) {
			return readErr
		}
		return fmt.Errorf("read frames: %w", readErr)
	}
	return nil
}

// produce reads frames, filters them and numbers the accepted ones so the
// collector can restore their order.
func (p *Pipeline) produce(ctx context.Context, jobs chan<- job, slots chan<- struct{}) error {
	chain := filter.NewChain(p.filters...)

	var seq uint64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame, err := p.source.ReadFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		p.metrics.Received.Add(1)

		if ok, by := chain.Accept(frame); !ok {
			p.metrics.Filtered.Add(1)
			metrics.FramesFilteredTotal.WithLabelValues(by).Inc()
			continue
		}

		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
		metrics.QueueLength.Inc()
		select {
		case jobs <- job{seq: seq, frame: frame}:
			seq++
		case <-ctx.Done():
			metrics.QueueLength.Dec()
			return ctx.Err()
		}
	}
}

// work dissects every job it is handed. It does not watch the context:
// the reader stops on cancellation and closes jobs, and the jobs already
// queued still reach the collector so no sequence number goes missing.
func (p *Pipeline) work(jobs <-chan job, results chan<- job) {
	for j := range jobs {
		metrics.QueueLength.Dec()
		p.dissect(j.frame)
		results <- j
	}
}

func (p *Pipeline) window() int {
	return p.queueSize + p.workers
}

func (p *Pipeline) dissect(f *core.Frame) {
	start := time.Now()
	pkt := p.decoder.DecodeFrame(f)
	metrics.ObservePacket(pkt, time.Since(start))
	p.metrics.observe(pkt)

	if pkt.State != core.StateAborted {
		return
	}
	tag := core.ErrorTag(pkt.Err)
	if p.limiter.Allow(tag, start) {
		log.GetLogger().WithFields(map[string]interface{}{
			"frame": f.Number,
			"chain": pkt.Chain(),
			"tag":   tag,
		}).WithError(pkt.Err).Warn("frame dissection aborted")
	}
}

// collect restores frame order with a reorder buffer keyed by sequence
// number. Sinks are called from this goroutine only.
func (p *Pipeline) collect(results <-chan job, slots <-chan struct{}) {
	pending := make(map[uint64]*core.Frame, p.window())
	var next uint64
	for r := range results {
		pending[r.seq] = r.frame
		for {
			f, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			p.deliver(f)
			<-slots
		}
	}
}

func (p *Pipeline) deliver(f *core.Frame) {
	p.metrics.Delivered.Add(1)
	for _, sink := range p.sinks {
		if !sink.Support(f) {
			continue
		}
		if err := sink.HandleFrame(f); err != nil {
			p.metrics.SinkErrors.Add(1)
			log.GetLogger().WithField("frame", f.Number).WithError(err).Error("sink failed")
		}
	}
}

// Stats returns pipeline statistics.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Received:        p.metrics.Received.Load(),
		Filtered:        p.metrics.Filtered.Load(),
		Dissected:       p.metrics.Dissected.Load(),
		Complete:        p.metrics.Complete.Load(),
		CompleteUnknown: p.metrics.CompleteUnknown.Load(),
		Aborted:         p.metrics.Aborted.Load(),
		Delivered:       p.metrics.Delivered.Load(),
		SinkErrors:      p.metrics.SinkErrors.Load(),
		LogsSuppressed:  p.limiter.Suppressed(),
	}
}

// SinkFunc adapts a function to a sink that accepts every frame.
type SinkFunc func(f *core.Frame) error

func (fn SinkFunc) Support(*core.Frame) bool          { return true }
func (fn SinkFunc) HandleFrame(f *core.Frame) error { return fn(f) }
