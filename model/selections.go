package model

// ImplementationSelection is one entry of a Selections document: it has
// the same shape as Implementation but additionally records FromFeed, the
// feed actually consulted to produce the selection (which may differ from
// InterfaceURI when a <feed-for> redirected the lookup).
type ImplementationSelection struct {
	Implementation
	InterfaceURI FeedURI
	FromFeed     FeedURI
}

// Selections is the Solver's output: the interface/command requested and
// the ordered, topologically-sorted list of chosen implementations.
type Selections struct {
	InterfaceURI FeedURI
	Command      string
	Selections   []ImplementationSelection
}

// ByInterface returns the selection for the given interface URI, if any.
func (s Selections) ByInterface(iface FeedURI) (ImplementationSelection, bool) {
	for _, sel := range s.Selections {
		if sel.InterfaceURI.Equal(iface) {
			return sel, true
		}
	}
	return ImplementationSelection{}, false
}

// DiffKind classifies one entry of a Selections diff.
type DiffKind int

const (
	DiffAdded DiffKind = iota
	DiffRemoved
	DiffVersionChanged
	DiffUnchanged
)

// DiffEntry is one interface's change between two Selections documents.
type DiffEntry struct {
	InterfaceURI FeedURI
	Kind         DiffKind
	OldVersion   ImplementationVersion
	NewVersion   ImplementationVersion
}

// Diff computes the per-interface difference between an old and a new
// Selections document.
func Diff(oldSel, newSel Selections) []DiffEntry {
	oldByIface := make(map[string]ImplementationSelection)
	for _, s := range oldSel.Selections {
		oldByIface[s.InterfaceURI.String()] = s
	}
	newByIface := make(map[string]ImplementationSelection)
	for _, s := range newSel.Selections {
		newByIface[s.InterfaceURI.String()] = s
	}

	var out []DiffEntry
	for iface, newS := range newByIface {
		oldS, existed := oldByIface[iface]
		switch {
		case !existed:
			out = append(out, DiffEntry{InterfaceURI: newS.InterfaceURI, Kind: DiffAdded, NewVersion: newS.Version})
		case !oldS.Version.Equal(newS.Version):
			out = append(out, DiffEntry{InterfaceURI: newS.InterfaceURI, Kind: DiffVersionChanged, OldVersion: oldS.Version, NewVersion: newS.Version})
		default:
			out = append(out, DiffEntry{InterfaceURI: newS.InterfaceURI, Kind: DiffUnchanged, OldVersion: oldS.Version, NewVersion: newS.Version})
		}
	}
	for iface, oldS := range oldByIface {
		if _, ok := newByIface[iface]; !ok {
			out = append(out, DiffEntry{InterfaceURI: oldS.InterfaceURI, Kind: DiffRemoved, OldVersion: oldS.Version})
		}
	}
	return out
}
