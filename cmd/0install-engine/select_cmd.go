package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zeroinstall/zeroinstall/feed"
	"github.com/zeroinstall/zeroinstall/model"
	"github.com/zeroinstall/zeroinstall/selections"
	"github.com/zeroinstall/zeroinstall/solver"
)

var (
	selectCommand   string
	selectLanguages []string
	selectSource    bool
	selectOffline   bool
	selectTestingOK bool
	selectOut       string
)

func init() {
	selectCmd.Flags().StringVar(&selectCommand, "command", "run", "the <command> name to select within the root interface")
	selectCmd.Flags().StringSliceVar(&selectLanguages, "lang", nil, "acceptable languages, most preferred first")
	selectCmd.Flags().BoolVar(&selectSource, "source", false, "select source implementations instead of binaries")
	selectCmd.Flags().BoolVar(&selectOffline, "offline", false, "don't consult Refresher for stale feeds")
	selectCmd.Flags().BoolVar(&selectTestingOK, "testing", false, "accept testing-stability candidates")
	selectCmd.Flags().StringVar(&selectOut, "out", "", "write the resulting Selections document to this path (selections.Save) instead of only printing it")
}

// selectCmd runs the Solver (spec §4.7) over a single root interface and
// prints the resulting Selections as a dependency tree, the same shape
// treeCmd prints for an already-persisted selections document.
var selectCmd = &cobra.Command{
	Use:   "select <interface-uri>",
	Short: "Solve a root interface into a Selections document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		uri, err := model.NewFeedURI(args[0])
		if err != nil {
			return fmt.Errorf("parse interface uri: %w", err)
		}

		cache := feed.New(cacheDir + "/interfaces")

		s := &solver.Solver{
			Feeds: cache,
			Host:  model.HostArchitecture(),
			Policy: solver.Policy{
				NetworkOffline:  selectOffline,
				HelpWithTesting: selectTestingOK,
			},
		}
		if selectSource {
			s.Host = model.Architecture{OS: s.Host.OS, CPU: "src"}
		}

		reqs := model.Requirements{
			InterfaceURI: uri,
			Command:      selectCommand,
			Architecture: s.Host,
			Languages:    selectLanguages,
			Source:       selectSource,
		}

		sel, err := s.Solve(ctx, reqs)
		if err != nil {
			return fmt.Errorf("solve %s: %w", uri, err)
		}

		printTree(cmd, sel)

		if selectOut != "" {
			f, err := os.Create(selectOut)
			if err != nil {
				return fmt.Errorf("create %s: %w", selectOut, err)
			}
			defer f.Close()
			if err := selections.Save(f, sel); err != nil {
				return fmt.Errorf("save selections to %s: %w", selectOut, err)
			}
		}
		return nil
	},
}
