// Package selections implements the post-solve helpers of spec component
// C8: presenting a Solver's Selections document to a caller (which
// implementations still need fetching, their originating Implementation
// records, a tree for display, a diff against a prior run) and the
// atomic directory operations that install or remove one onto disk.
//
// The lookup helpers follow the same small-collaborator-interface shape
// trust.CheckTrust and solver.Solver use; the directory operations mirror
// the Store's atomic stage-then-rename commit (store/store.go), extended
// to the teacher's filesystem storage driver's temp-file-and-Move pattern
// (registry/storage/driver/filesystem/driver.go).
package selections

import (
	"context"
	"sort"

	"github.com/zeroinstall/zeroinstall/model"
)

// Cache is the subset of the Store search path GetUncached needs: a
// presence probe per digest.
type Cache interface {
	Contains(digest model.ManifestDigest) bool
}

// GetUncached returns the subset of sel whose ManifestDigest isn't present
// in cache, in the order they appear in sel. Local-path implementations
// (LocalPath set) are never reported as uncached; they bypass the store
// entirely.
func GetUncached(sel model.Selections, cache Cache) []model.ImplementationSelection {
	var out []model.ImplementationSelection
	for _, s := range sel.Selections {
		if s.IsLocal() {
			continue
		}
		if !cache.Contains(s.ManifestDigest) {
			out = append(out, s)
		}
	}
	return out
}

// FeedLookup is the subset of a feed cache GetImplementations needs: the
// same candidate-provider role the Solver consults when ranking
// candidates, here used in reverse to re-resolve a selection's
// originating Implementation (including any group-inherited defaults
// applied at parse time) from the feed actually used to produce it.
type FeedLookup interface {
	GetFeed(ctx context.Context, uri model.FeedURI) (*model.Feed, bool)
}

// GetImplementations back-maps every entry of sel to the Implementation
// record in its FromFeed that shares its ID, keyed by InterfaceURI. A
// selection whose FromFeed is no longer cached, or whose ID no longer
// appears in it (the feed changed since the solve), falls back to the
// Implementation embedded in the selection itself — the last known good
// copy — so a caller can still render or deploy it.
func GetImplementations(ctx context.Context, sel model.Selections, feeds FeedLookup) map[string]model.Implementation {
	out := make(map[string]model.Implementation, len(sel.Selections))
	for _, s := range sel.Selections {
		impl := s.Implementation
		if doc, ok := feeds.GetFeed(ctx, s.FromFeed); ok {
			for _, candidate := range doc.Implementations {
				if candidate.ID == s.ID {
					impl = candidate
					break
				}
			}
		}
		out[s.InterfaceURI.String()] = impl
	}
	return out
}

// TreeEntry is one line of a GetTree listing: sel at the given depth
// below the root requirement (root is depth 0).
type TreeEntry struct {
	Depth     int
	Selection model.ImplementationSelection
}

// GetTree performs a topological DFS of sel starting at its root
// interface, following each selection's Dependency edges (essential and
// recommended alike, since both were honored during the solve) and
// yielding (depth, selection) pairs in visitation order for display. An
// interface reachable by more than one path is only emitted once, at the
// depth of its first visit; dependency cycles (which a correctly solved
// Selections document should never contain) are broken by the same
// visited set.
func GetTree(sel model.Selections) []TreeEntry {
	byIface := make(map[string]model.ImplementationSelection, len(sel.Selections))
	for _, s := range sel.Selections {
		byIface[s.InterfaceURI.String()] = s
	}

	var out []TreeEntry
	visited := make(map[string]bool)
	var visit func(iface string, depth int)
	visit = func(iface string, depth int) {
		if visited[iface] {
			return
		}
		visited[iface] = true
		s, ok := byIface[iface]
		if !ok {
			return
		}
		out = append(out, TreeEntry{Depth: depth, Selection: s})

		deps := make([]string, 0, len(s.Dependencies))
		for _, dep := range s.Dependencies {
			deps = append(deps, dep.InterfaceURI.String())
		}
		sort.Strings(deps)
		for _, d := range deps {
			visit(d, depth+1)
		}
	}
	visit(sel.InterfaceURI.String(), 0)
	return out
}

// Diff re-exports model.Diff under the package callers reach for when
// they already hold two Selections documents and want the per-interface
// change set (get_diff).
func Diff(oldSel, newSel model.Selections) []model.DiffEntry {
	return model.Diff(oldSel, newSel)
}
