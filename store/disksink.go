package store

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/zeroinstall/zeroinstall/errcode"
)

// DiskSink implements manifest.Sink by writing real files under Root, in
// archive order. The Fetcher overlays several archives by extracting them
// into the same DiskSink one after another (later archives may overwrite
// files an earlier one placed). After every source has been applied, the
// caller rescans Root with scanDirectory to compute the manifest actually
// produced, matching the disk content exactly.
type DiskSink struct {
	Root string
}

func (d DiskSink) abs(path string) string {
	return filepath.Join(d.Root, filepath.FromSlash(path))
}

func (d DiskSink) AddDirectory(path string) error {
	if err := os.MkdirAll(d.abs(path), 0o755); err != nil {
		return errcode.Wrap(errcode.IO, err, "create directory %s", path)
	}
	return nil
}

func (d DiskSink) AddFile(path string, r io.Reader, mtime int64, executable bool) error {
	full := d.abs(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errcode.Wrap(errcode.IO, err, "create parent directory for %s", path)
	}
	mode := os.FileMode(0o644)
	if executable {
		mode = 0o755
	}
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return errcode.Wrap(errcode.IO, err, "create file %s", path)
	}
	_, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil {
		return errcode.Wrap(errcode.IO, copyErr, "write file %s", path)
	}
	if closeErr != nil {
		return errcode.Wrap(errcode.IO, closeErr, "close file %s", path)
	}
	t := time.Unix(mtime, 0)
	if err := os.Chtimes(full, t, t); err != nil {
		return errcode.Wrap(errcode.IO, err, "set mtime on %s", path)
	}
	return nil
}

func (d DiskSink) AddSymlink(path, target string) error {
	full := d.abs(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errcode.Wrap(errcode.IO, err, "create parent directory for %s", path)
	}
	os.Remove(full)
	if err := os.Symlink(target, full); err != nil {
		return errcode.Wrap(errcode.IO, err, "create symlink %s", path)
	}
	return nil
}

func (d DiskSink) AddHardlink(dest, existing string) error {
	full := d.abs(dest)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errcode.Wrap(errcode.IO, err, "create parent directory for %s", dest)
	}
	if err := os.Link(d.abs(existing), full); err != nil {
		return errcode.Wrap(errcode.IO, err, "create hardlink %s -> %s", dest, existing)
	}
	return nil
}
