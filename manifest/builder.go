package manifest

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Builder accumulates a directory tree under a single digest Format,
// rejecting invalid paths, duplicate entries, and the reserved names
// ".manifest"/".xbit". It is the push-side counterpart consumed by
// archive Extractors (C5) and driven directly by the Store (C2) when
// ingesting a plain directory.
type Builder struct {
	tree   *Tree
	format Format
}

// NewBuilder returns an empty Builder hashing entries under format.
func NewBuilder(format Format) *Builder {
	return &Builder{tree: NewTree(), format: format}
}

// Tree returns the builder's underlying tree, e.g. to Render() it once
// construction is complete.
func (b *Builder) Tree() *Tree { return b.tree }

// AddDirectory ensures path exists as a directory, creating any missing
// ancestors implicitly.
func (b *Builder) AddDirectory(path string) error {
	_, err := b.tree.dirAt(path, true)
	return err
}

// AddFile reads r fully, hashes its content under the builder's format,
// and records path as a regular (or, if executable, an X-kind) file.
// mtime is whole seconds since the Unix epoch.
func (b *Builder) AddFile(path string, r io.Reader, mtime int64, executable bool) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("manifest: read %q: %w", path, err)
	}
	parent, name := parentAndName(path)
	if err := validateComponent(name); err != nil {
		return err
	}
	dir, err := b.tree.dirAt(parent, true)
	if err != nil {
		return err
	}
	if _, exists := dir.children[name]; exists {
		return fmt.Errorf("manifest: conflict: %q already exists", path)
	}
	kind := KindFile
	if executable {
		kind = KindExecutable
	}
	dir.children[name] = &node{entry: Entry{
		Kind:   kind,
		Path:   path,
		Name:   name,
		Digest: b.format.EncodeEntryDigest(data),
		MTime:  mtime,
		Size:   int64(len(data)),
	}}
	return nil
}

// AddSymlink records path as a symlink whose digest is computed over the
// UTF-8 bytes of target.
func (b *Builder) AddSymlink(path, target string) error {
	parent, name := parentAndName(path)
	if err := validateComponent(name); err != nil {
		return err
	}
	dir, err := b.tree.dirAt(parent, true)
	if err != nil {
		return err
	}
	if _, exists := dir.children[name]; exists {
		return fmt.Errorf("manifest: conflict: %q already exists", path)
	}
	data := []byte(target)
	dir.children[name] = &node{entry: Entry{
		Kind:   KindSymlink,
		Path:   path,
		Name:   name,
		Digest: b.format.EncodeEntryDigest(data),
		Size:   int64(len(data)),
	}}
	return nil
}

// AddHardlink records dest as sharing existing's entry metadata (digest,
// mtime, size, kind); existing must already be present.
func (b *Builder) AddHardlink(dest, existing string) error {
	existingEntry, err := b.lookupFile(existing)
	if err != nil {
		return fmt.Errorf("manifest: hardlink source: %w", err)
	}
	parent, name := parentAndName(dest)
	if err := validateComponent(name); err != nil {
		return err
	}
	dir, err := b.tree.dirAt(parent, true)
	if err != nil {
		return err
	}
	if _, exists := dir.children[name]; exists {
		return fmt.Errorf("manifest: conflict: %q already exists", dest)
	}
	entry := existingEntry
	entry.Path = dest
	entry.Name = name
	dir.children[name] = &node{entry: entry}
	return nil
}

func (b *Builder) lookupFile(path string) (Entry, error) {
	parent, name := parentAndName(path)
	dir, err := b.tree.dirAt(parent, false)
	if err != nil {
		return Entry{}, err
	}
	n, ok := dir.children[name]
	if !ok || n.sub != nil {
		return Entry{}, errNotFound(path)
	}
	return n.entry, nil
}

// MarkExecutable flips an existing regular file's kind to executable.
func (b *Builder) MarkExecutable(path string) error {
	parent, name := parentAndName(path)
	dir, err := b.tree.dirAt(parent, false)
	if err != nil {
		return err
	}
	n, ok := dir.children[name]
	if !ok || n.sub != nil {
		return fmt.Errorf("manifest: %w", errNotFound(path))
	}
	n.entry.Kind = KindExecutable
	return nil
}

// TurnIntoSymlink replaces an existing file entry at path with a symlink
// entry whose target is the file's own original content. Used when an
// extractor represents symlinks as plain files holding the target text
// (an archive format quirk some legacy tar variants exhibit).
func (b *Builder) TurnIntoSymlink(path string, originalContent []byte) error {
	parent, name := parentAndName(path)
	dir, err := b.tree.dirAt(parent, false)
	if err != nil {
		return err
	}
	n, ok := dir.children[name]
	if !ok || n.sub != nil {
		return fmt.Errorf("manifest: %w", errNotFound(path))
	}
	target := bytes.TrimRight(originalContent, "\x00")
	n.entry = Entry{
		Kind:   KindSymlink,
		Path:   path,
		Name:   name,
		Digest: b.format.EncodeEntryDigest(target),
		Size:   int64(len(target)),
	}
	return nil
}

// Rename moves src to dst, recursively if src names a directory.
func (b *Builder) Rename(src, dst string) error {
	srcParent, srcName := parentAndName(src)
	srcDir, err := b.tree.dirAt(srcParent, false)
	if err != nil {
		return err
	}
	n, ok := srcDir.children[srcName]
	if !ok {
		return fmt.Errorf("manifest: %w", errNotFound(src))
	}

	dstParent, dstName := parentAndName(dst)
	if err := validateComponent(dstName); err != nil {
		return err
	}
	dstDir, err := b.tree.dirAt(dstParent, true)
	if err != nil {
		return err
	}
	if _, exists := dstDir.children[dstName]; exists {
		return fmt.Errorf("manifest: conflict: %q already exists", dst)
	}

	delete(srcDir.children, srcName)
	if n.sub == nil {
		n.entry.Path = dst
		n.entry.Name = dstName
	} else {
		retagPaths(n.sub, dst)
	}
	dstDir.children[dstName] = n
	return nil
}

func retagPaths(dir *dirNode, base string) {
	for name, n := range dir.children {
		childPath := base + "/" + name
		if n.sub != nil {
			retagPaths(n.sub, childPath)
		} else {
			n.entry.Path = childPath
		}
	}
}

// Remove deletes path, recursively if it names a directory.
func (b *Builder) Remove(path string) error {
	parent, name := parentAndName(path)
	dir, err := b.tree.dirAt(parent, false)
	if err != nil {
		return err
	}
	if _, ok := dir.children[name]; !ok {
		return fmt.Errorf("manifest: %w", errNotFound(path))
	}
	delete(dir.children, name)
	return nil
}

// TimeOffset shifts every file's mtime by deltaSeconds, used by the Store
// to harmonize timestamps recorded under a different host timezone.
func (b *Builder) TimeOffset(deltaSeconds int64) {
	offsetMTimes(b.tree.root, deltaSeconds)
}

func offsetMTimes(dir *dirNode, delta int64) {
	for _, n := range dir.children {
		if n.sub != nil {
			offsetMTimes(n.sub, delta)
			continue
		}
		if n.entry.Kind == KindFile || n.entry.Kind == KindExecutable {
			n.entry.MTime += delta
		}
	}
}

// Digest renders the tree and returns its digest string under the
// builder's format (without the algorithm prefix).
func (b *Builder) Digest() string {
	return b.format.Digest(Render(b.tree))
}

// ScanDirectory walks an on-disk directory into a Tree, hashing every
// file's content under format so the result can be Render()ed or
// Digest()ed to verify against a stored digest of that same format.
// Symlinks are recorded by their target text and never followed; the
// executable flag is set when any of the file's execute mode bits is set.
func ScanDirectory(root string, format Format) (*Tree, error) {
	b := NewBuilder(format)
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if info.Mode()&os.ModeSymlink != 0 {
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return b.AddSymlink(rel, target)
		}
		if info.IsDir() {
			return b.AddDirectory(rel)
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		executable := info.Mode()&0o111 != 0
		return b.AddFile(rel, f, info.ModTime().Unix(), executable)
	})
	if err != nil {
		return nil, fmt.Errorf("manifest: scan directory %s: %w", root, err)
	}
	return b.Tree(), nil
}
