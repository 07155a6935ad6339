package main

import (
	"fmt"

	events "github.com/docker/go-events"
	"github.com/spf13/cobra"

	"github.com/zeroinstall/zeroinstall/manifest"
	"github.com/zeroinstall/zeroinstall/selections"
)

// clearCmd removes only the entries a previously deployed manifest
// recorded, spec §4.8's ClearDirectory — it never rm -rf's path wholesale,
// so anything a user dropped alongside the deployment survives.
var clearCmd = &cobra.Command{
	Use:   "clear <manifest-source-dir> <deployed-dir>",
	Short: "Atomically remove a previously deployed directory's entries",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		manifestSrc, deployed := args[0], args[1]

		tree, err := manifest.ScanDirectory(manifestSrc, manifest.SHA256New)
		if err != nil {
			return fmt.Errorf("scan %s: %w", manifestSrc, err)
		}

		sink := events.Sink(loggingSink{cmd})
		if err := selections.ClearDirectory(ctx, tree, deployed, selections.NoopRestartManager{}, sink); err != nil {
			return fmt.Errorf("clear %s: %w", deployed, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", deployed)
		return nil
	},
}
