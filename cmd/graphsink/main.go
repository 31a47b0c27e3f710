package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ajitpratap0/graphsink/pkg/sink"

	// Register every built in sink
	_ "github.com/ajitpratap0/graphsink/pkg/sink/all"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()

	if err != nil {
		var reported *reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "graphsink",
		Short: "graphsink - write connector records into a graph store",
		Long: `graphsink is a destination connector. It reads RECORD and STATE messages
from stdin, converts each record into graph entities and upserts them into
the configured store, echoing STATE messages once the data before them is
written.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "graphsink v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "converters",
		Short: "List registered converters and sinks",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := newConverterRegistry("default", nil)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Converters:")
			for _, info := range registry.List() {
				fmt.Fprintf(out, "  - %s/%s\n", info.Source, info.Stream)
			}
			fmt.Fprintln(out, "\nSinks:")
			for _, name := range sink.List() {
				fmt.Fprintf(out, "  - %s\n", name)
			}
			return nil
		},
	})

	var opts writeOptions
	writeCmd := &cobra.Command{
		Use:   "write",
		Short: "Write records from stdin to the destination",
		Long: `Read protocol messages from stdin and write the converted entities to the
sink named in the configuration. Output is protocol messages on stdout.

Example:
  extractor read ... | graphsink write --config destination.yaml --catalog catalog.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	writeCmd.Flags().StringVar(&opts.configPath, "config", "", "Path to destination configuration (JSON or YAML, required)")
	writeCmd.Flags().StringVar(&opts.catalogPath, "catalog", "", "Path to configured catalog (required)")
	writeCmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Convert and count records without writing them")
	writeCmd.Flags().StringVar(&opts.stateFile, "state-file", "", "SQLite file persisting the last advanced checkpoint")
	_ = writeCmd.MarkFlagRequired("config")
	_ = writeCmd.MarkFlagRequired("catalog")
	root.AddCommand(writeCmd)

	return root
}
