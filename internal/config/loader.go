package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the environment prefix derived from the `pktkit.` root key.
const EnvPrefix = "PKTKIT"

// configRoot is the top-level wrapper matching the YAML structure `pktkit: ...`.
type configRoot struct {
	Pktkit Config `mapstructure:"pktkit" yaml:"pktkit"`
}

// Load loads configuration from file. An empty path loads defaults and
// environment overrides only.
// The YAML file uses `pktkit:` as root key; env vars use the PKTKIT_ prefix
// (e.g., PKTKIT_DECODER_MAX_DEPTH).
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `pktkit.` key prefix maps to `PKTKIT_` through the key replacer,
	// e.g. key "pktkit.log.level" → env "PKTKIT_LOG_LEVEL".
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Pktkit

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets default values for configuration.
// Every key needs a default for its environment override to be seen.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("pktkit.log.level", "info")
	v.SetDefault("pktkit.log.pattern", "%time [%level] %field %msg\n")
	v.SetDefault("pktkit.log.time", "2006-01-02 15:04:05.000")
	v.SetDefault("pktkit.log.file.filename", "")
	v.SetDefault("pktkit.log.file.max_size", 100)
	v.SetDefault("pktkit.log.file.max_backups", 5)
	v.SetDefault("pktkit.log.file.max_age", 30)
	v.SetDefault("pktkit.log.file.compress", true)

	// Decoder defaults
	v.SetDefault("pktkit.decoder.max_depth", DefaultMaxDepth)
	v.SetDefault("pktkit.decoder.plugins.mode", "static")
	v.SetDefault("pktkit.decoder.plugins.path", "")
	v.SetDefault("pktkit.decoder.plugins.patterns", []string{"*.so"})

	// Pipeline defaults
	v.SetDefault("pktkit.pipeline.workers", 0)
	v.SetDefault("pktkit.pipeline.queue_size", DefaultQueueSize)

	// Metrics defaults
	v.SetDefault("pktkit.metrics.listen", "")
	v.SetDefault("pktkit.metrics.path", "/metrics")
}

// Marshal renders the configuration as YAML under the `pktkit:` root key.
func Marshal(cfg *Config) ([]byte, error) {
	out, err := yaml.Marshal(configRoot{Pktkit: *cfg})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return out, nil
}
