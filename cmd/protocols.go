package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"firestige.xyz/pktkit/internal/core"
	"firestige.xyz/pktkit/pkg/plugin"
)

// EntryLister is the part of the registry the protocols command needs.
type EntryLister interface {
	Entries() []plugin.Descriptor
}

var protocolsCmd = &cobra.Command{
	Use:   "protocols",
	Short: "List registered dissectors",
	Long: `List every (kind, code) binding of the dissector registry, including
bindings added by the config file and loaded plugins.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProtocols(plugin.Default(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(protocolsCmd)
}

func runProtocols(reg EntryLister, out io.Writer) error {
	entries := reg.Entries()
	if len(entries) == 0 {
		return fmt.Errorf("no dissectors registered")
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tCODE\tPROTOCOL\tSTRATUM")
	for _, e := range entries {
		stratum := string(e.Dissector.Stratum())
		if stratum == "" {
			stratum = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Kind, formatCode(e.Kind, e.Code),
			core.DisplayName(e.Dissector.Name()), stratum)
	}
	return tw.Flush()
}

// formatCode prints EtherTypes in hex, as they are usually written.
func formatCode(kind core.Kind, code core.Code) string {
	if kind == core.KindEtherType {
		return fmt.Sprintf("0x%04x", uint32(code))
	}
	return fmt.Sprintf("%d", uint32(code))
}
