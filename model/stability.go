package model

import "fmt"

// Stability is a total order over how much an implementation is trusted
// to work. Zero value is Unset.
type Stability int

const (
	Unset Stability = iota
	Insecure
	Buggy
	Developer
	Testing
	Stable
	Packaged
	Preferred
)

var stabilityNames = map[Stability]string{
	Unset:     "unset",
	Insecure:  "insecure",
	Buggy:     "buggy",
	Developer: "developer",
	Testing:   "testing",
	Stable:    "stable",
	Packaged:  "packaged",
	Preferred: "preferred",
}

func (s Stability) String() string {
	if n, ok := stabilityNames[s]; ok {
		return n
	}
	return "unset"
}

// ParseStability parses a <implementation stability=…> attribute value.
func ParseStability(s string) (Stability, error) {
	for st, n := range stabilityNames {
		if n == s {
			return st, nil
		}
	}
	return Unset, fmt.Errorf("model: unknown stability %q", s)
}
