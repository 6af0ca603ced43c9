package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mash-protocol/objreg/cmd/objreg/commands"
)

var logFilter commands.FilterOptions

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View, filter, export and summarize event log files",
	// Reading a log file needs no registry configuration.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
}

var logViewCmd = &cobra.Command{
	Use:   "view <file.olog>",
	Short: "View log file in human-readable format",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := logFilter.Build()
		if err != nil {
			return err
		}
		return commands.RunView(args[0], filter, cmd.OutOrStdout())
	},
}

var logStatsCmd = &cobra.Command{
	Use:   "stats <file.olog>",
	Short: "Show statistics about the log file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return commands.RunStats(args[0], cmd.OutOrStdout())
	},
}

var filterOutput string

var logFilterCmd = &cobra.Command{
	Use:   "filter -o <out.olog> <file.olog>",
	Short: "Filter log file and write to new file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := logFilter.Build()
		if err != nil {
			return err
		}
		n, err := commands.RunFilter(args[0], filterOutput, filter)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Filtered %d events to %s\n", n, filterOutput)
		return nil
	},
}

var (
	exportFormat string
	exportOutput string
)

var logExportCmd = &cobra.Command{
	Use:   "export <file.olog>",
	Short: "Export log file to JSON lines or CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := logFilter.Build()
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if exportOutput != "" {
			f, err := os.Create(exportOutput)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()
			w = f
		}
		return commands.RunExport(args[0], exportFormat, filter, w)
	},
}

func init() {
	for _, c := range []*cobra.Command{logViewCmd, logFilterCmd, logExportCmd} {
		c.Flags().StringVar(&logFilter.RegistryID, "registry", "", "Filter by registry ID")
		c.Flags().StringVar(&logFilter.Category, "category", "", "Filter by category (uevent, state, error)")
		c.Flags().StringVar(&logFilter.Action, "action", "", "Filter notifications by action")
		c.Flags().StringVar(&logFilter.Path, "path", "", "Filter by path prefix")
		c.Flags().StringVar(&logFilter.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
		c.Flags().StringVar(&logFilter.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	}
	logFilterCmd.Flags().StringVarP(&filterOutput, "output", "o", "", "Output file (required)")
	_ = logFilterCmd.MarkFlagRequired("output")
	logExportCmd.Flags().StringVar(&exportFormat, "format", "jsonl", "Output format (jsonl, csv)")
	logExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")

	logCmd.AddCommand(logViewCmd, logStatsCmd, logFilterCmd, logExportCmd)
}
