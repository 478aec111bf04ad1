// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"firestige.xyz/pktkit/internal/core"
	"firestige.xyz/pktkit/internal/log"
	"firestige.xyz/pktkit/internal/plugin"
)

const (
	DefaultMaxDepth  = 32
	DefaultQueueSize = 1024
	maxDepthLimit    = 4096
)

// Config represents the top-level configuration.
// Maps to the `pktkit:` root key in YAML.
type Config struct {
	Log      log.LoggerConfig `mapstructure:"log" yaml:"log"`
	Decoder  DecoderConfig    `mapstructure:"decoder" yaml:"decoder"`
	Pipeline PipelineConfig   `mapstructure:"pipeline" yaml:"pipeline"`
	Filter   FilterConfig     `mapstructure:"filter" yaml:"filter"`
	Metrics  MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
}

// ─── Decoder ───

// DecoderConfig controls the layer chain driver and the protocol registry.
type DecoderConfig struct {
	MaxDepth int              `mapstructure:"max_depth" yaml:"max_depth"`
	Bindings []plugin.Binding `mapstructure:"bindings" yaml:"bindings"` // extra (kind, code) → protocol aliases
	Plugins  PluginsConfig    `mapstructure:"plugins" yaml:"plugins"`
}

// PluginsConfig locates dynamically loaded dissector plugins.
type PluginsConfig struct {
	Mode     string   `mapstructure:"mode" yaml:"mode"` // static | dynamic
	Path     string   `mapstructure:"path" yaml:"path"`
	Patterns []string `mapstructure:"patterns" yaml:"patterns"`
}

// LoaderConfig converts to the plugin loader's configuration.
func (c PluginsConfig) LoaderConfig() plugin.LoaderConfig {
	return plugin.LoaderConfig{
		Mode:     plugin.LoadMode(c.Mode),
		Path:     c.Path,
		Patterns: c.Patterns,
	}
}

// ─── Pipeline ───

// PipelineConfig sizes the bulk dissection pipeline.
type PipelineConfig struct {
	Workers   int `mapstructure:"workers" yaml:"workers"`       // 0 = one per CPU
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"` // frames buffered between reader and workers
}

// ─── Filter ───

// FilterConfig selects which frames are dissected.
type FilterConfig struct {
	// BPF is a classic BPF program, one [op, jt, jf, k] tuple per instruction,
	// as printed by `tcpdump -dd`.
	BPF       [][]uint32 `mapstructure:"bpf" yaml:"bpf"`
	LinkTypes []uint32   `mapstructure:"link_types" yaml:"link_types"`
}

// ─── Metrics ───

// MetricsConfig controls the Prometheus endpoint. Empty Listen disables it.
type MetricsConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
	Path   string `mapstructure:"path" yaml:"path"`
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
// Every problem found is reported, not only the first.
func (cfg *Config) ValidateAndApplyDefaults() error {
	var result *multierror.Error

	// ── Log ──
	if cfg.Log.Level == "" {
		cfg.Log.Level = log.DefaultLevel
	}
	if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
		result = multierror.Append(result, fmt.Errorf("invalid log level: %s", cfg.Log.Level))
	}
	if cfg.Log.Loki.Enabled() {
		if _, err := cfg.Log.Loki.Interval(); err != nil {
			result = multierror.Append(result, fmt.Errorf("log.loki: %w", err))
		}
		if cfg.Log.Loki.BatchSize < 0 {
			result = multierror.Append(result, fmt.Errorf("log.loki.batch_size must not be negative, got %d", cfg.Log.Loki.BatchSize))
		}
	}

	// ── Decoder ──
	if cfg.Decoder.MaxDepth == 0 {
		cfg.Decoder.MaxDepth = DefaultMaxDepth
	}
	if cfg.Decoder.MaxDepth < 1 || cfg.Decoder.MaxDepth > maxDepthLimit {
		result = multierror.Append(result, fmt.Errorf("decoder.max_depth must be within [1, %d], got %d", maxDepthLimit, cfg.Decoder.MaxDepth))
	}
	for i, b := range cfg.Decoder.Bindings {
		if b.Kind == "" || b.Code == "" || b.Protocol == "" {
			result = multierror.Append(result, fmt.Errorf("decoder.bindings[%d]: kind, code and protocol are required", i))
		}
	}
	cfg.Decoder.Plugins.Mode = strings.ToLower(cfg.Decoder.Plugins.Mode)
	switch plugin.LoadMode(cfg.Decoder.Plugins.Mode) {
	case "":
		cfg.Decoder.Plugins.Mode = string(plugin.StaticMode)
	case plugin.StaticMode:
	case plugin.DynamicMode:
		if cfg.Decoder.Plugins.Path == "" {
			result = multierror.Append(result, fmt.Errorf("decoder.plugins.path is required when mode=dynamic"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("invalid decoder.plugins.mode: %s (must be static/dynamic)", cfg.Decoder.Plugins.Mode))
	}

	// ── Pipeline ──
	if cfg.Pipeline.Workers == 0 {
		cfg.Pipeline.Workers = runtime.NumCPU()
	}
	if cfg.Pipeline.Workers < 0 {
		result = multierror.Append(result, fmt.Errorf("pipeline.workers must be positive, got %d", cfg.Pipeline.Workers))
	}
	if cfg.Pipeline.QueueSize == 0 {
		cfg.Pipeline.QueueSize = DefaultQueueSize
	}
	if cfg.Pipeline.QueueSize < 0 {
		result = multierror.Append(result, fmt.Errorf("pipeline.queue_size must be positive, got %d", cfg.Pipeline.QueueSize))
	}

	// ── Filter ──
	for i, ins := range cfg.Filter.BPF {
		if len(ins) != 4 {
			result = multierror.Append(result, fmt.Errorf("filter.bpf[%d]: want [op, jt, jf, k], got %d values", i, len(ins)))
			continue
		}
		if ins[1] > 0xff || ins[2] > 0xff || ins[0] > 0xffff {
			result = multierror.Append(result, fmt.Errorf("filter.bpf[%d]: field out of range", i))
		}
	}

	// ── Metrics ──
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %w", core.ErrConfigInvalid, err)
	}
	return nil
}
