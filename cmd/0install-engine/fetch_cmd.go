package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zeroinstall/zeroinstall/feed"
	"github.com/zeroinstall/zeroinstall/fetch"
	"github.com/zeroinstall/zeroinstall/selections"
)

// fetchCmd materializes every not-yet-cached implementation of a saved
// Selections document into the engine's implementation store, the
// Fetcher & Recipe Engine (spec component C6) driven by selections.
// GetUncached and selections.GetImplementations.
var fetchCmd = &cobra.Command{
	Use:   "fetch <selections-file>",
	Short: "Download and verify every uncached implementation of a Selections document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		sel, err := loadSelections(args[0])
		if err != nil {
			return err
		}

		sp := storeSearchPath()
		uncached := selections.GetUncached(sel, sp)
		if len(uncached) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "nothing to fetch")
			return nil
		}

		cache := feed.New(cacheDir + "/interfaces")
		f := fetch.New(sp, nil)

		for _, s := range uncached {
			feedDoc, _ := cache.GetFeed(ctx, s.FromFeed)
			path, err := f.Fetch(ctx, feedDoc, s.Implementation)
			if err != nil {
				return fmt.Errorf("fetch %s %s: %w", s.InterfaceURI, s.Version, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s -> %s\n", s.InterfaceURI, s.Version, path)
		}
		return nil
	},
}
