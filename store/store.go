// Package store implements the Content-Addressed Implementation Store
// (spec component C2): a search path of directories, each holding
// subdirectories named "<algorithm>=<digest>" (or "<algorithm>_<digest>"
// for sha256new) whose contents reproduce that digest under the Manifest
// Engine. Ingestion is atomic: every write lands in a sibling
// ".staging.<token>" directory first, and the single commit point is an
// os.Rename, mirroring the teacher's filesystem storage driver's Move
// (registry/storage/driver/filesystem/driver.go) and its blob-ingestion
// staging directories (registry/storage/blobwriter.go).
package store

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/zeroinstall/zeroinstall/errcode"
	"github.com/zeroinstall/zeroinstall/internal/dcontext"
	"github.com/zeroinstall/zeroinstall/internal/uuid"
	"github.com/zeroinstall/zeroinstall/manifest"
	"github.com/zeroinstall/zeroinstall/metrics"
	"github.com/zeroinstall/zeroinstall/model"
)

const stagingPrefix = ".staging."

// Store is a single on-disk implementation cache rooted at Root.
type Store struct {
	Root string

	mu sync.Mutex // serializes commit-time rename races within this process
}

// New returns a Store rooted at root. The directory is not created; call
// EnsureRoot before the first write if it may not exist yet.
func New(root string) *Store {
	return &Store{Root: root}
}

// EnsureRoot creates the store root directory if missing.
func (s *Store) EnsureRoot() error {
	if err := os.MkdirAll(s.Root, 0o755); err != nil {
		return errcode.Wrap(errcode.IO, err, "create store root %s", s.Root)
	}
	return nil
}

// dirName returns the canonical directory name for a digest bag, and an
// error if it carries no recognized algorithm.
func dirName(digest model.ManifestDigest) (string, error) {
	name, ok := digest.DirName()
	if !ok {
		return "", errcode.New(errcode.NotSupported, "manifest digest has no supported algorithm")
	}
	return name, nil
}

// Contains reports whether digest is already present under this store.
func (s *Store) Contains(digest model.ManifestDigest) bool {
	name, err := dirName(digest)
	if err != nil {
		return false
	}
	info, err := os.Stat(filepath.Join(s.Root, name))
	return err == nil && info.IsDir()
}

// Path returns the directory holding digest's contents, if present.
func (s *Store) Path(digest model.ManifestDigest) (string, bool) {
	name, err := dirName(digest)
	if err != nil {
		return "", false
	}
	p := filepath.Join(s.Root, name)
	if info, err := os.Stat(p); err == nil && info.IsDir() {
		return p, true
	}
	return "", false
}

// stagingDir returns a fresh sibling staging directory path under Root,
// suffixed with a random token so concurrent writers never collide.
func (s *Store) stagingDir() string {
	return filepath.Join(s.Root, stagingPrefix+uuid.NewString())
}

// commit renames staging to its final "<algorithm>=<digest>" name. If the
// destination already exists (a concurrent writer finished first), commit
// discards staging silently — "first to complete wins" per spec §4.2.
func (s *Store) commit(ctx context.Context, staging string, digest model.ManifestDigest) (string, error) {
	name, err := dirName(digest)
	if err != nil {
		os.RemoveAll(staging)
		return "", err
	}
	final := filepath.Join(s.Root, name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if info, err := os.Stat(final); err == nil && info.IsDir() {
		os.RemoveAll(staging)
		dcontext.GetLogger(ctx).Debugf("store: %s already committed by another writer, discarding staging copy", name)
		return final, nil
	}
	if err := os.Rename(staging, final); err != nil {
		if info, statErr := os.Stat(final); statErr == nil && info.IsDir() {
			os.RemoveAll(staging)
			return final, nil
		}
		return "", errcode.Wrap(errcode.IO, err, "commit store entry %s", name)
	}
	return final, nil
}

// ReapStaging removes any ".staging.*" directories left behind by a
// process that crashed between creating staging and committing it.
func (s *Store) ReapStaging(ctx context.Context) error {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errcode.Wrap(errcode.IO, err, "list store root %s", s.Root)
	}
	for _, e := range entries {
		if !e.IsDir() || len(e.Name()) < len(stagingPrefix) || e.Name()[:len(stagingPrefix)] != stagingPrefix {
			continue
		}
		full := filepath.Join(s.Root, e.Name())
		dcontext.GetLogger(ctx).Infof("store: reaping orphaned staging directory %s", full)
		if err := os.RemoveAll(full); err != nil {
			return errcode.Wrap(errcode.IO, err, "reap staging directory %s", full)
		}
	}
	return nil
}

// Remove deletes digest's directory. Missing entries are not an error.
func (s *Store) Remove(digest model.ManifestDigest) error {
	name, err := dirName(digest)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(s.Root, name)); err != nil {
		return errcode.Wrap(errcode.IO, err, "remove store entry %s", name)
	}
	return nil
}

// ListAll returns the directory names of every implementation present.
func (s *Store) ListAll() ([]string, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errcode.Wrap(errcode.IO, err, "list store root %s", s.Root)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, _, ok := model.ParseDirName(e.Name()); ok {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Verify recomputes the manifest of digest's on-disk directory and
// reports a DigestMismatch error if it diverges.
func (s *Store) Verify(digest model.ManifestDigest) error {
	path, ok := s.Path(digest)
	if !ok {
		return errcode.New(errcode.NotFound, "implementation %v not present", digest)
	}
	alg, want, _ := digest.Best()
	tree, err := scanDirectory(path, alg)
	if err != nil {
		return err
	}
	ok2, err := manifest.Verify(tree, alg, want)
	if err != nil {
		return err
	}
	if !ok2 {
		return errcode.New(errcode.DigestMismatch, "recomputed manifest for %s does not match", path)
	}
	return nil
}

// scanDirectory walks an on-disk directory into a manifest.Tree, hashing
// its entries under algorithm (an algorithm name as returned by
// model.ManifestDigest.Best, e.g. "sha256new"); see manifest.ScanDirectory.
func scanDirectory(root, algorithm string) (*manifest.Tree, error) {
	format, err := manifest.ParseFormat(algorithm)
	if err != nil {
		return nil, err
	}
	tree, err := manifest.ScanDirectory(root, format)
	if err != nil {
		return nil, errcode.Wrap(errcode.IO, err, "scan directory %s", root)
	}
	return tree, nil
}

// copyTree copies src into a fresh staging directory, preserving
// executable bits, file mtimes and symlinks, and returns the staging path.
func (s *Store) copyTree(src string) (string, error) {
	staging := s.stagingDir()
	if err := copyRecursive(src, staging); err != nil {
		os.RemoveAll(staging)
		return "", err
	}
	return staging, nil
}

func copyRecursive(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(src)
		if err != nil {
			return err
		}
		return os.Symlink(target, dst)
	}
	if info.IsDir() {
		if err := os.MkdirAll(dst, info.Mode().Perm()); err != nil {
			return err
		}
		entries, err := os.ReadDir(src)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := copyRecursive(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
				return err
			}
		}
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

// AddDirectory copies src into the store under digest, verifying that the
// recomputed manifest (under digest's best algorithm) matches before
// committing. Returns the final path.
func (s *Store) AddDirectory(ctx context.Context, src string, digest model.ManifestDigest) (string, error) {
	staging, err := s.copyTree(src)
	if err != nil {
		return "", err
	}
	alg, want, ok := digest.Best()
	if !ok {
		os.RemoveAll(staging)
		metrics.StoreAdds.WithValues("rejected").Inc(1)
		return "", errcode.New(errcode.NotSupported, "manifest digest has no supported algorithm")
	}
	tree, err := scanDirectory(staging, alg)
	if err != nil {
		os.RemoveAll(staging)
		metrics.StoreAdds.WithValues("rejected").Inc(1)
		return "", err
	}
	matched, err := manifest.Verify(tree, alg, want)
	if err != nil {
		os.RemoveAll(staging)
		metrics.StoreAdds.WithValues("rejected").Inc(1)
		return "", err
	}
	if !matched {
		os.RemoveAll(staging)
		metrics.StoreAdds.WithValues("rejected").Inc(1)
		return "", errcode.New(errcode.DigestMismatch, "copied directory does not match declared digest %s=%s", alg, want)
	}
	path, err := s.commit(ctx, staging, digest)
	if err != nil {
		metrics.StoreAdds.WithValues("rejected").Inc(1)
		return "", err
	}
	metrics.StoreAdds.WithValues("added").Inc(1)
	return path, nil
}
