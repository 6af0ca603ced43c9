// Command objreg builds and inspects object registries.
//
// Usage:
//
//	objreg <command> [flags]
//
// Commands:
//
//	apply    Build a registry from a manifest and print its notifications
//	shell    Interactive registry shell
//	log      View, filter, export and summarize event log files
//
// Configuration is read from the file given with --config and from
// OBJREG_* environment variables, e.g. OBJREG_HELPER_PATH=/sbin/hotplug.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mash-protocol/objreg/internal/config"
)

var (
	version = "dev"
	cfgFile string
	verbose bool
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:           "objreg",
	Short:         "Reference-counted object registry with lifecycle notifications",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Log.Level = "debug"
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable debug logging")

	rootCmd.AddCommand(applyCmd, shellCmd, logCmd)
}

// newLogger builds the operational logger from the configured level.
func newLogger() *slog.Logger {
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
