package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/pktkit/internal/config"
	"firestige.xyz/pktkit/internal/filter"
	"firestige.xyz/pktkit/internal/log"
	"firestige.xyz/pktkit/internal/metrics"
	ipipeline "firestige.xyz/pktkit/internal/pipeline"
	"firestige.xyz/pktkit/internal/sink/console"
	"firestige.xyz/pktkit/internal/sink/pcapfile"
	"firestige.xyz/pktkit/internal/sink/record"
	"firestige.xyz/pktkit/internal/source/file"
	"firestige.xyz/pktkit/pkg/pipeline"
	"firestige.xyz/pktkit/pkg/plugin"
)

type dissectOptions struct {
	Path     string
	Workers  int
	MaxDepth int
	Limit    int
	Write    string // export accepted frames to this PCAP file
	Records  string // export dissection results to this file
	Verbose  bool
	Quiet    bool
}

var dissectOpts dissectOptions

var dissectCmd = &cobra.Command{
	Use:   "dissect <file>",
	Short: "Dissect every frame of a capture file",
	Long: `Read a PCAP or PCAPNG file and print the protocol chain of every frame,
followed by a summary.

Frames are dissected in parallel and printed in capture order. The filter
section of the config file selects which frames are dissected.

Examples:
  pktkit dissect trace.pcapng
  pktkit dissect -v --limit 10 trace.pcap
  pktkit dissect -q --write dns.pcap -c dns-only.yml trace.pcap`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := dissectOpts
		opts.Path = args[0]
		return runDissect(cmd.Context(), cfg, plugin.Default(), opts, cmd.OutOrStdout())
	},
}

func init() {
	dissectCmd.Flags().IntVarP(&dissectOpts.Workers, "workers", "w", 0,
		"dissection workers (overrides pipeline.workers)")
	dissectCmd.Flags().IntVar(&dissectOpts.MaxDepth, "max-depth", 0,
		"maximum layers per frame (overrides decoder.max_depth)")
	dissectCmd.Flags().IntVarP(&dissectOpts.Limit, "limit", "n", 0,
		"stop after this many frames")
	dissectCmd.Flags().StringVar(&dissectOpts.Write, "write", "",
		"write accepted frames to a PCAP file")
	dissectCmd.Flags().StringVar(&dissectOpts.Records, "records", "",
		"write one length-delimited protobuf record per dissected frame to a file")
	dissectCmd.Flags().BoolVarP(&dissectOpts.Verbose, "verbose", "v", false,
		"print the fields of every layer")
	dissectCmd.Flags().BoolVarP(&dissectOpts.Quiet, "quiet", "q", false,
		"print the summary only")

	rootCmd.AddCommand(dissectCmd)
}

// runDissect runs one file through the pipeline, extracted for testing.
// The registry is sealed once dissection starts.
func runDissect(ctx context.Context, cfg *config.Config, reg plugin.Registry, opts dissectOptions, out io.Writer) error {
	src, err := file.NewSource(&file.FileCfg{FilePath: opts.Path, Limit: opts.Limit})
	if err != nil {
		return err
	}
	if err := src.Start(ctx); err != nil {
		return err
	}
	defer src.Stop()

	filters, err := filter.FromConfig(cfg.Filter)
	if err != nil {
		return fmt.Errorf("invalid filter: %w", err)
	}

	var sinks []pipeline.Sink
	if !opts.Quiet {
		sinks = append(sinks, console.NewSink(out, opts.Verbose))
	}
	var export *pcapfile.Sink
	if opts.Write != "" {
		hdr := src.Info()
		export, err = pcapfile.NewSink(opts.Write, hdr.LinkType, hdr.SnapLen)
		if err != nil {
			return err
		}
		defer export.Close()
		sinks = append(sinks, export)
	}
	var records *recordFile
	if opts.Records != "" {
		records, err = openRecords(opts.Records)
		if err != nil {
			return err
		}
		defer records.Close()
		sinks = append(sinks, records.Sink)
	}

	b := ipipeline.NewBuilder().
		WithConfig(cfg).
		WithRegistry(reg).
		WithSource(src).
		WithFilters(filters...).
		WithSinks(sinks...)
	if opts.Workers > 0 {
		b.WithWorkers(opts.Workers)
	}
	if opts.MaxDepth > 0 {
		b.WithMaxDepth(opts.MaxDepth)
	}
	p := b.Build()

	if cfg.Metrics.Listen != "" {
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := srv.Start(ctx); err != nil {
			return err
		}
		defer srv.Stop(context.Background())
	}

	runErr := p.Run(ctx)

	printSummary(out, p.Stats())
	src.Stats().PrintStats(out)

	if export != nil {
		if err := export.Close(); err != nil && runErr == nil {
			runErr = err
		}
		fmt.Fprintf(out, "Exported %d frames to %s\n", export.Written(), opts.Write)
	}
	if records != nil {
		if err := records.Close(); err != nil && runErr == nil {
			runErr = err
		}
		fmt.Fprintf(out, "Wrote %d records to %s\n", records.Written(), opts.Records)
	}
	if runErr != nil {
		log.GetLogger().WithError(runErr).WithField("path", opts.Path).Warn("dissection stopped early")
	}
	return runErr
}

// recordFile owns the file behind a record sink.
type recordFile struct {
	*record.Sink
	file *os.File
	buf  *bufio.Writer
}

func openRecords(path string) (*recordFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	buf := bufio.NewWriter(f)
	return &recordFile{Sink: record.NewSink(buf), file: f, buf: buf}, nil
}

func (r *recordFile) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.buf.Flush()
	if cerr := r.file.Close(); err == nil {
		err = cerr
	}
	r.file = nil
	return err
}

func printSummary(out io.Writer, s ipipeline.Stats) {
	fmt.Fprintf(out, "\n[DISSECTION SUMMARY]\n")
	fmt.Fprintf(out, "  Frames Read:       %d\n", s.Received)
	fmt.Fprintf(out, "  Filtered Out:      %d\n", s.Filtered)
	fmt.Fprintf(out, "  Dissected:         %d\n", s.Dissected)
	fmt.Fprintf(out, "  Complete:          %d\n", s.Complete)
	fmt.Fprintf(out, "  Complete-Unknown:  %d\n", s.CompleteUnknown)
	fmt.Fprintf(out, "  Aborted:           %d\n", s.Aborted)
	if s.SinkErrors > 0 {
		fmt.Fprintf(out, "  Sink Errors:       %d\n", s.SinkErrors)
	}
}
