package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/pktkit/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults, the config file and PKTKIT_*
environment overrides have been applied, as YAML.

Examples:
  pktkit config > pktkit.yml
  PKTKIT_DECODER_MAX_DEPTH=8 pktkit config`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfig(cfg, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(c *config.Config, out io.Writer) error {
	data, err := config.Marshal(c)
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}
