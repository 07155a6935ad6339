package main

import (
	"fmt"

	events "github.com/docker/go-events"
	"github.com/spf13/cobra"

	"github.com/zeroinstall/zeroinstall/manifest"
	"github.com/zeroinstall/zeroinstall/selections"
)

// deployCmd stages src (an already-fetched implementation directory, or
// any directory whose manifest is worth deploying atomically) into dst,
// spec §4.8's DeployDirectory.
var deployCmd = &cobra.Command{
	Use:   "deploy <src-dir> <dst-dir>",
	Short: "Atomically deploy a directory's contents into place",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		src, dst := args[0], args[1]

		tree, err := manifest.ScanDirectory(src, manifest.SHA256New)
		if err != nil {
			return fmt.Errorf("scan %s: %w", src, err)
		}

		sink := events.Sink(loggingSink{cmd})
		if err := selections.DeployDirectory(ctx, tree, src, dst, selections.NoopRestartManager{}, sink); err != nil {
			return fmt.Errorf("deploy %s -> %s: %w", src, dst, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deployed %s -> %s\n", src, dst)
		return nil
	},
}

// loggingSink prints every selections.DeployEvent it receives, the
// simplest events.Sink a command-line caller needs.
type loggingSink struct {
	cmd *cobra.Command
}

func (s loggingSink) Write(event events.Event) error {
	fmt.Fprintf(s.cmd.OutOrStdout(), "%v\n", event)
	return nil
}

func (s loggingSink) Close() error { return nil }
