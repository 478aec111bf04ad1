// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/pktkit/internal/config"
	"firestige.xyz/pktkit/internal/log"
	iplugin "firestige.xyz/pktkit/internal/plugin"
	"firestige.xyz/pktkit/pkg/plugin"
)

var (
	// Global flags
	configFile string
	logLevel   string

	// cfg is loaded before any subcommand runs.
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pktkit",
	Short: "pktkit - capture file reader and layered packet dissector",
	Long: `pktkit reads PCAP and PCAPNG capture files and dissects every frame
into a chain of protocol layers.

Features:
  - PCAP (microsecond and nanosecond, both byte orders) and PCAPNG sections
  - Link, network, transport, tunnel and application layer dissectors
  - Extensible registry keyed by (kind, code), e.g. udp.port/53
  - Parallel dissection with results kept in frame order`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := setup(configFile, logLevel, plugin.Default())
		if err != nil {
			return err
		}
		cfg = c
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). SIGINT and SIGTERM cancel the running command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults and PKTKIT_* environment when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"override log level (trace, debug, info, warn, error)")
}

// setup loads the configuration, initializes logging and prepares the
// registry: configured bindings first, then dynamically loaded plugins.
func setup(path, level string, reg plugin.Registry) (*config.Config, error) {
	c, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level != "" {
		c.Log.Level = level
	}
	log.Init(&c.Log)

	if err := iplugin.ApplyBindings(reg, c.Decoder.Bindings); err != nil {
		return nil, fmt.Errorf("apply decoder bindings: %w", err)
	}
	if err := iplugin.NewLoader(c.Decoder.Plugins.LoaderConfig(), reg).Load(); err != nil {
		return nil, fmt.Errorf("load dissector plugins: %w", err)
	}
	return c, nil
}
