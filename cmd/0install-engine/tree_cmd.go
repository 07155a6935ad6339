package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zeroinstall/zeroinstall/model"
	"github.com/zeroinstall/zeroinstall/selections"
)

// treeCmd loads a previously saved selections document (see selectCmd's
// --out) and prints it the same way selectCmd prints its own fresh
// solve result.
var treeCmd = &cobra.Command{
	Use:   "tree <selections-file>",
	Short: "Print a saved Selections document as a dependency tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sel, err := loadSelections(args[0])
		if err != nil {
			return err
		}
		printTree(cmd, sel)
		return nil
	},
}

// loadSelections reads a selections document written by selections.Save.
func loadSelections(path string) (model.Selections, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Selections{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	sel, err := selections.Load(f)
	if err != nil {
		return model.Selections{}, fmt.Errorf("load %s: %w", path, err)
	}
	return sel, nil
}

// printTree renders selections.GetTree(sel) depth-indented, two spaces per level.
func printTree(cmd *cobra.Command, sel model.Selections) {
	out := cmd.OutOrStdout()
	for _, entry := range selections.GetTree(sel) {
		indent := strings.Repeat("  ", entry.Depth)
		fmt.Fprintf(out, "%s%s %s (%s)\n",
			indent,
			entry.Selection.InterfaceURI,
			entry.Selection.Version,
			entry.Selection.ID,
		)
	}
}
