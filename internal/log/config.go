package log

const (
	DefaultPattern = "%time [%level] %field %msg\n"
	DefaultTime    = "2006-01-02 15:04:05.000"
	DefaultLevel   = "info"
)

type LoggerConfig struct {
	Level   string `mapstructure:"level" yaml:"level"`
	Pattern string `mapstructure:"pattern" yaml:"pattern"`
	Time    string `mapstructure:"time" yaml:"time"`
	// File enables a rotating file appender next to stdout when Filename is set.
	File FileAppenderOpt `mapstructure:"file" yaml:"file"`
	// Loki pushes every line to Grafana Loki when Endpoint is set.
	Loki LokiAppenderOpt `mapstructure:"loki" yaml:"loki"`
}

func (c *LoggerConfig) applyDefaults() {
	if c.Level == "" {
		c.Level = DefaultLevel
	}
	if c.Pattern == "" {
		c.Pattern = DefaultPattern
	}
	if c.Time == "" {
		c.Time = DefaultTime
	}
}
