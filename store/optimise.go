package store

import (
	"io"
	"os"
	"path/filepath"

	"github.com/zeroinstall/zeroinstall/errcode"
	"github.com/zeroinstall/zeroinstall/manifest"
)

// Optimise scans every implementation directory under the store root and
// replaces files that share identical content with hardlinks to a single
// copy, returning the number of bytes saved. It adapts the teacher's
// garbage-collector's mark-and-sweep sweep over content (registry/storage/
// garbagecollect.go) to a dedup pass instead of a deletion pass: here the
// "mark" phase groups files by (size, content hash) across every
// implementation directory, and the "sweep" phase relinks every file in a
// group beyond the first to the first's inode. Filesystems without
// hardlink support report an error from the first os.Link attempt, at
// which point Optimise stops and returns the savings accumulated so far.
func (s *Store) Optimise() (int64, error) {
	groups := make(map[string][]string) // content hash -> file paths

	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errcode.Wrap(errcode.IO, err, "list store root %s", s.Root)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		implRoot := filepath.Join(s.Root, e.Name())
		err := filepath.Walk(implRoot, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.Mode().IsRegular() {
				key, err := contentKey(path, info.Size())
				if err != nil {
					return err
				}
				groups[key] = append(groups[key], path)
			}
			return nil
		})
		if err != nil {
			return 0, errcode.Wrap(errcode.IO, err, "scan implementation %s", e.Name())
		}
	}

	var saved int64
	for _, paths := range groups {
		if len(paths) < 2 {
			continue
		}
		original := paths[0]
		originalInfo, err := os.Stat(original)
		if err != nil {
			continue
		}
		for _, dup := range paths[1:] {
			dupInfo, err := os.Lstat(dup)
			if err != nil || !dupInfo.Mode().IsRegular() {
				continue
			}
			if os.SameFile(originalInfo, dupInfo) {
				continue // already linked together
			}
			tmp := dup + ".relink.tmp"
			if err := os.Link(original, tmp); err != nil {
				return saved, nil // filesystem lacks hardlink support; stop, keep savings so far
			}
			if err := os.Rename(tmp, dup); err != nil {
				os.Remove(tmp)
				continue
			}
			saved += dupInfo.Size()
		}
	}
	return saved, nil
}

// contentKey hashes a file's bytes into a short, content-addressed
// grouping key. It reuses the store's sha256new entry hashing rather than
// introducing a fourth hash function.
func contentKey(path string, size int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errcode.Wrap(errcode.IO, err, "open %s", path)
	}
	defer f.Close()
	data := make([]byte, size)
	if _, err := io.ReadFull(f, data); err != nil {
		return "", errcode.Wrap(errcode.IO, err, "read %s", path)
	}
	return manifest.SHA256New.EncodeEntryDigest(data), nil
}
