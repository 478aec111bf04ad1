package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/google/gopacket/layers"
	"github.com/spf13/cobra"

	"firestige.xyz/pktkit/internal/core"
	"firestige.xyz/pktkit/pkg/capture"
)

var headerCmd = &cobra.Command{
	Use:   "header <file>",
	Short: "Show the capture file header",
	Long: `Show the format, version, byte order, snapshot length and link type of a
capture file. For PCAPNG every interface of the capture is listed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHeader(args[0], cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(headerCmd)
}

func runHeader(path string, out io.Writer) error {
	r, err := capture.OpenFile(path)
	if err != nil {
		return err
	}
	defer r.Close()

	// PCAPNG interfaces are declared by blocks, so the whole file is read.
	c, readErr := r.ReadAll()
	hdr := c.Header

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Format:\t%s %d.%d\n", hdr.Format, hdr.VersionMajor, hdr.VersionMinor)
	fmt.Fprintf(tw, "Byte order:\t%s\n", hdr.ByteOrder)
	fmt.Fprintf(tw, "Snapshot length:\t%d\n", hdr.SnapLen)
	fmt.Fprintf(tw, "Link type:\t%s\n", linkTypeName(hdr.LinkType))
	fmt.Fprintf(tw, "Resolution:\t%v\n", hdr.Resolution)
	fmt.Fprintf(tw, "Frames:\t%d\n", len(c.Frames))
	for i, iface := range hdr.Interfaces {
		name := iface.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(tw, "Interface %d:\t%s %s snaplen=%d resolution=%v\n",
			i, name, linkTypeName(iface.LinkType), iface.SnapLen, iface.Resolution)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if readErr != nil {
		return fmt.Errorf("read %s: %w", path, readErr)
	}
	return nil
}

// linkTypeName renders e.g. "Ethernet (1)". gopacket only names 8-bit link types.
func linkTypeName(lt core.LinkType) string {
	if lt > 0xff {
		return fmt.Sprintf("LinkType(%d)", uint32(lt))
	}
	return fmt.Sprintf("%s (%d)", layers.LinkType(lt), uint32(lt))
}
