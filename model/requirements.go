package model

// Requirements is the input to the Solver: the interface to satisfy, the
// command to run, the host architecture, acceptable languages, and
// per-interface version overrides.
type Requirements struct {
	InterfaceURI       FeedURI
	Command            string // defaults to "run"
	Architecture       Architecture
	Languages          []string
	ExtraRestrictions  map[string]VersionRange // interface URI string -> range
	Source             bool
}

// CommandOrDefault returns r.Command, defaulting to "run".
func (r Requirements) CommandOrDefault() string {
	if r.Command == "" {
		return "run"
	}
	return r.Command
}

// RestrictionFor returns the extra restriction configured for the given
// interface, or an empty (unrestricted) VersionRange.
func (r Requirements) RestrictionFor(iface string) VersionRange {
	if r.ExtraRestrictions == nil {
		return VersionRange{}
	}
	return r.ExtraRestrictions[iface]
}
