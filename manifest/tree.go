package manifest

import (
	"fmt"
	"strings"
)

// node is either a subdirectory (sub != nil) or a leaf entry.
type node struct {
	sub   *dirNode
	entry Entry
}

type dirNode struct {
	children map[string]*node
}

func newDirNode() *dirNode {
	return &dirNode{children: make(map[string]*node)}
}

// Tree is the in-memory representation a ManifestBuilder mutates and that
// Render serializes canonically.
type Tree struct {
	root *dirNode
}

// NewTree returns an empty tree (just the root directory).
func NewTree() *Tree {
	return &Tree{root: newDirNode()}
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// validateComponent rejects newline/NUL/slash and the reserved filenames
// used by the Store's manifest sidecars.
func validateComponent(name string) error {
	if name == "" {
		return fmt.Errorf("manifest: empty path component")
	}
	if strings.ContainsAny(name, "\n\x00/") {
		return fmt.Errorf("manifest: invalid characters in path component %q", name)
	}
	if reservedNames[name] {
		return fmt.Errorf("manifest: reserved name %q", name)
	}
	return nil
}

// dirAt returns the dirNode for path, creating ancestors (and the final
// component, if create is true) implicitly as plain directories.
func (t *Tree) dirAt(path string, create bool) (*dirNode, error) {
	cur := t.root
	for _, comp := range splitPath(path) {
		if err := validateComponent(comp); err != nil {
			return nil, err
		}
		n, ok := cur.children[comp]
		switch {
		case ok && n.sub != nil:
			cur = n.sub
		case ok && n.sub == nil:
			return nil, fmt.Errorf("manifest: %q already exists as a non-directory", path)
		case !ok && create:
			sub := newDirNode()
			cur.children[comp] = &node{sub: sub}
			cur = sub
		default:
			return nil, fmt.Errorf("manifest: %w", errNotFound(path))
		}
	}
	return cur, nil
}

type errNotFound string

func (e errNotFound) Error() string { return fmt.Sprintf("path not found: %s", string(e)) }

// parentAndName splits path into its parent directory path and basename.
func parentAndName(path string) (string, string) {
	path = strings.Trim(path, "/")
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}
