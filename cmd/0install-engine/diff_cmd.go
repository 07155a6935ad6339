package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zeroinstall/zeroinstall/model"
	"github.com/zeroinstall/zeroinstall/selections"
)

// diffCmd prints the per-interface change set (spec's get_diff) between
// two saved selections documents, e.g. before and after a re-solve.
var diffCmd = &cobra.Command{
	Use:   "diff <old-selections-file> <new-selections-file>",
	Short: "Diff two saved Selections documents",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		oldSel, err := loadSelections(args[0])
		if err != nil {
			return err
		}
		newSel, err := loadSelections(args[1])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		changed := 0
		for _, e := range selections.Diff(oldSel, newSel) {
			switch e.Kind {
			case model.DiffAdded:
				changed++
				fmt.Fprintf(out, "+ %s %s\n", e.InterfaceURI, e.NewVersion)
			case model.DiffRemoved:
				changed++
				fmt.Fprintf(out, "- %s %s\n", e.InterfaceURI, e.OldVersion)
			case model.DiffVersionChanged:
				changed++
				fmt.Fprintf(out, "~ %s %s -> %s\n", e.InterfaceURI, e.OldVersion, e.NewVersion)
			}
		}
		if changed == 0 {
			fmt.Fprintln(out, "no changes")
		}
		return nil
	},
}
