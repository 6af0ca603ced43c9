package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mash-protocol/objreg/cmd/objreg/shell"
	"github.com/mash-protocol/objreg/internal/app"
	"github.com/mash-protocol/objreg/pkg/manifest"
)

var shellFile string

var shellCmd = &cobra.Command{
	Use:   "shell [-f tree.yaml]",
	Short: "Interactive registry shell",
	Args:  cobra.NoArgs,
	RunE:  runShell,
}

func init() {
	shellCmd.Flags().StringVarP(&shellFile, "file", "f", "", "manifest to apply before the prompt")
}

func runShell(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, app.Options{Events: os.Stdout, Logger: newLogger()})
	if err != nil {
		return err
	}
	defer a.Close()

	if addr, err := a.ServeMetrics(); err != nil {
		return err
	} else if addr != nil {
		fmt.Printf("Metrics: http://%s/metrics\n", addr)
	}

	sh := shell.New(a.Registry, a.FS, os.Stdout)
	defer sh.Close()

	if shellFile != "" {
		m, err := manifest.Load(shellFile)
		if err != nil {
			return err
		}
		res, err := manifest.Apply(a.Registry, m, nil)
		if err != nil {
			return err
		}
		for _, p := range res.Paths {
			sh.Adopt(res.Nodes[p])
		}
	}

	if err := sh.Run(ctx); err != nil {
		return err
	}
	return a.SaveState()
}
