// Package model defines the core data types shared across the engine:
// feed URIs, versions and version ranges, implementations, requirements,
// and selections. It has no dependency on any other engine package, so
// that the solver, store, trust, and fetch packages can all depend on it
// without import cycles.
package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Modifier is the separator preceding a run of version digits, ordered
// pre < rc < (none) < post.
type Modifier int

const (
	ModifierPre Modifier = iota
	ModifierRC
	ModifierNone
	ModifierPost
)

func (m Modifier) String() string {
	switch m {
	case ModifierPre:
		return "-pre"
	case ModifierRC:
		return "-rc"
	case ModifierPost:
		return "-post"
	default:
		return "-"
	}
}

func parseModifier(s string) (Modifier, bool) {
	switch s {
	case "pre":
		return ModifierPre, true
	case "rc":
		return ModifierRC, true
	case "post":
		return ModifierPost, true
	case "":
		return ModifierNone, true
	default:
		return ModifierNone, false
	}
}

// component is one modifier-prefixed run of dotted-decimal digits.
type component struct {
	modifier Modifier
	digits   []int
}

// ImplementationVersion is a dotted-decimal version with named modifiers,
// e.g. "1.2-pre3", "2.0-post1.4".
type ImplementationVersion struct {
	raw        string
	components []component
}

// ParseVersion parses s per the grammar: digits (modifier digits)*.
func ParseVersion(s string) (ImplementationVersion, error) {
	if s == "" {
		return ImplementationVersion{}, fmt.Errorf("model: empty version")
	}

	v := ImplementationVersion{raw: s}
	rest := s
	mod := ModifierNone
	first := true
	for {
		end := strings.IndexAny(rest, "-")
		digitsPart := rest
		if end >= 0 {
			digitsPart = rest[:end]
		}
		if digitsPart == "" && !first {
			return ImplementationVersion{}, fmt.Errorf("model: invalid version %q: empty digit run", s)
		}
		digits, err := parseDigitRun(digitsPart)
		if err != nil {
			return ImplementationVersion{}, fmt.Errorf("model: invalid version %q: %w", s, err)
		}
		v.components = append(v.components, component{modifier: mod, digits: digits})
		first = false
		if end < 0 {
			break
		}
		rest = rest[end+1:]
		// The modifier name is the leading alphabetic run; what follows
		// (possibly empty) is the next digit run.
		i := 0
		for i < len(rest) && (rest[i] < '0' || rest[i] > '9') {
			i++
		}
		name := rest[:i]
		rest = rest[i:]
		m, ok := parseModifier(name)
		if !ok {
			return ImplementationVersion{}, fmt.Errorf("model: invalid version %q: unknown modifier %q", s, name)
		}
		mod = m
	}
	return v, nil
}

func parseDigitRun(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ".")
	digits := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("bad digit group %q", p)
		}
		digits[i] = n
	}
	return digits, nil
}

// String returns the original parsed text.
func (v ImplementationVersion) String() string { return v.raw }

// IsZero reports whether v is the zero value (not produced by ParseVersion).
func (v ImplementationVersion) IsZero() bool { return v.components == nil && v.raw == "" }

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater
// than other. Components are compared pairwise; a missing trailing
// component compares as 0 within the same modifier, and modifiers compare
// by their declared order (pre < rc < none < post) before digits do.
func (v ImplementationVersion) Compare(other ImplementationVersion) int {
	n := len(v.components)
	if len(other.components) > n {
		n = len(other.components)
	}
	for i := 0; i < n; i++ {
		var a, b component
		hasA, hasB := i < len(v.components), i < len(other.components)
		if hasA {
			a = v.components[i]
		} else {
			a = component{modifier: ModifierNone}
		}
		if hasB {
			b = other.components[i]
		} else {
			b = component{modifier: ModifierNone}
		}
		if !hasA && !hasB {
			continue
		}
		if !hasA {
			// Missing component sorts below ModifierNone's digits=0 only
			// when b's modifier is ModifierNone; otherwise the earlier
			// present component already decided the order via modifier.
			return -compareComponent(b, a)
		}
		if !hasB {
			return compareComponent(a, b)
		}
		if c := compareComponent(a, b); c != 0 {
			return c
		}
	}
	return 0
}

func compareComponent(a, b component) int {
	if a.modifier != b.modifier {
		if a.modifier < b.modifier {
			return -1
		}
		return 1
	}
	return compareDigits(a.digits, b.digits)
}

func compareDigits(a, b []int) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		var x, y int
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Less reports whether v sorts before other.
func (v ImplementationVersion) Less(other ImplementationVersion) bool {
	return v.Compare(other) < 0
}

// Equal reports whether v and other compare equal.
func (v ImplementationVersion) Equal(other ImplementationVersion) bool {
	return v.Compare(other) == 0
}
