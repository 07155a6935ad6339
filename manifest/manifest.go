// Package manifest implements the Manifest Engine (spec component C1): a
// canonical, deterministic textual representation of a directory tree,
// and the digest functions computed over it. Every store directory name
// is "<algorithm>=<digest>" (or "<algorithm>_<digest>" for sha256new),
// and recomputing the manifest over that directory's contents must
// reproduce the same digest — this package is the one piece of code that
// both the Store (C2) and the Fetcher (C6) call to enforce that
// invariant.
//
// The design mirrors the teacher's content-addressable path layout
// (registry/storage/paths.go) and its use of a single digest package
// (opencontainers/go-digest) across every subsystem that touches content
// hashes, generalized here to the three manifest dialects the engine
// must support side by side.
package manifest

import (
	"fmt"
	"sort"
	"strings"
)

// EntryKind distinguishes the four line kinds in the manifest grammar.
type EntryKind int

const (
	KindDirectory EntryKind = iota
	KindFile
	KindExecutable
	KindSymlink
)

// Entry is one line of a canonical manifest: a directory marker, a
// regular/executable file (digest + mtime + size), or a symlink (digest
// over its UTF-8 target bytes + size, no mtime).
type Entry struct {
	Kind   EntryKind
	Path   string // slash-separated, relative to the tree root
	Name   string // basename within its parent directory
	Digest string
	MTime  int64
	Size   int64
}

// reservedNames may never appear as a path component; they are used by
// the Store to hold the manifest itself and its executable-bit sidecar.
var reservedNames = map[string]bool{
	".manifest": true,
	".xbit":     true,
}

// line renders e per the grammar in spec §4.1. Directories use a
// leading-slash absolute path; files and symlinks are keyed by their
// basename within the D line that precedes them.
func (e Entry) line() string {
	switch e.Kind {
	case KindDirectory:
		p := e.Path
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		return fmt.Sprintf("D %s", p)
	case KindFile:
		return fmt.Sprintf("F %s %d %d %s", e.Digest, e.MTime, e.Size, e.Name)
	case KindExecutable:
		return fmt.Sprintf("X %s %d %d %s", e.Digest, e.MTime, e.Size, e.Name)
	case KindSymlink:
		return fmt.Sprintf("S %s %d %s", e.Digest, e.Size, e.Name)
	}
	return ""
}

// Render concatenates entries into the canonical manifest byte sequence:
// pre-order directories (sorted by name, ordinal byte compare so
// uppercase precedes lowercase) each immediately followed by their
// directly-contained file/symlink entries, also sorted by name.
func Render(tree *Tree) string {
	var b strings.Builder
	walkCanonical(tree.root, "", &b)
	return b.String()
}

func walkCanonical(dir *dirNode, path string, b *strings.Builder) {
	dpath := path
	if dpath == "" {
		dpath = ""
	}
	b.WriteString(Entry{Kind: KindDirectory, Path: dpath}.line())
	b.WriteByte('\n')

	names := make([]string, 0, len(dir.children))
	for name := range dir.children {
		names = append(names, name)
	}
	sort.Sort(ordinalStrings(names))

	var subdirs []string
	for _, name := range names {
		child := dir.children[name]
		if child.sub != nil {
			subdirs = append(subdirs, name)
			continue
		}
		b.WriteString(child.entry.line())
		b.WriteByte('\n')
	}
	for _, name := range subdirs {
		childPath := name
		if path != "" {
			childPath = path + "/" + name
		}
		walkCanonical(dir.children[name].sub, childPath, b)
	}
}

// Entries returns every entry of tree — directories included — in the
// same canonical pre-order Render uses, so a caller walking the tree to
// stage files on disk creates each directory before the entries it
// contains. Paths are slash-separated and relative to the tree root;
// the root directory itself is reported with Path "".
func Entries(tree *Tree) []Entry {
	var out []Entry
	collectCanonical(tree.root, "", &out)
	return out
}

func collectCanonical(dir *dirNode, path string, out *[]Entry) {
	*out = append(*out, Entry{Kind: KindDirectory, Path: path})

	names := make([]string, 0, len(dir.children))
	for name := range dir.children {
		names = append(names, name)
	}
	sort.Sort(ordinalStrings(names))

	var subdirs []string
	for _, name := range names {
		child := dir.children[name]
		if child.sub != nil {
			subdirs = append(subdirs, name)
			continue
		}
		entry := child.entry
		entry.Path = joinRel(path, name)
		*out = append(*out, entry)
	}
	for _, name := range subdirs {
		collectCanonical(dir.children[name].sub, joinRel(path, name), out)
	}
}

func joinRel(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

// ordinalStrings sorts by signed-byte ordinal compare, matching the
// reference implementation's ordering (uppercase ASCII before lowercase).
type ordinalStrings []string

func (s ordinalStrings) Len() int      { return len(s) }
func (s ordinalStrings) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s ordinalStrings) Less(i, j int) bool {
	a, b := s[i], s[j]
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for k := 0; k < n; k++ {
		ca, cb := int8(a[k]), int8(b[k])
		if ca != cb {
			return ca < cb
		}
	}
	return len(a) < len(b)
}
