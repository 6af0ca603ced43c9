package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mash-protocol/objreg/internal/app"
	"github.com/mash-protocol/objreg/pkg/manifest"
)

var (
	applyFile string
	applyKeep bool
)

var applyCmd = &cobra.Command{
	Use:   "apply -f <tree.yaml>",
	Short: "Build a registry from a manifest",
	Long: `Apply registers every node of the manifest, emits the events it lists,
prints each delivered notification and the resulting tree, then tears the
tree down again unless --keep is given.`,
	Args: cobra.NoArgs,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringVarP(&applyFile, "file", "f", "", "manifest file (required)")
	applyCmd.Flags().BoolVar(&applyKeep, "keep", false, "skip teardown and its remove notifications")
	_ = applyCmd.MarkFlagRequired("file")
}

func runApply(cmd *cobra.Command, args []string) error {
	m, err := manifest.Load(applyFile)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	a, err := app.New(cfg, app.Options{Events: out, Logger: newLogger()})
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := manifest.Apply(a.Registry, m, nil)
	if err != nil {
		return err
	}

	a.Registry.Notifier().Flush()
	fmt.Fprintf(out, "\n%d nodes, %d manifest events\n\n", len(res.Paths), res.Events)
	fmt.Fprint(out, a.FS.Tree())

	if applyKeep {
		return a.SaveState()
	}
	fmt.Fprintln(out)
	for _, p := range res.Paths {
		if n := res.Nodes[p]; a.Registry.Parent(n) == nil {
			a.Registry.Remove(n)
		}
	}
	res.Release()
	return a.Close()
}
