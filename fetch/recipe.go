package fetch

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/zeroinstall/zeroinstall/archive"
	"github.com/zeroinstall/zeroinstall/errcode"
	"github.com/zeroinstall/zeroinstall/manifest"
	"github.com/zeroinstall/zeroinstall/model"
	"github.com/zeroinstall/zeroinstall/store"
)

// runRecipe executes recipe's steps into a fresh working directory and
// commits the result through store.AddDirectory. feedDoc resolves
// CopyFromStep siblings; it may be nil if the recipe has none.
func (f *Fetcher) runRecipe(ctx context.Context, feedDoc *model.Feed, impl model.Implementation, recipe model.Recipe) (string, error) {
	work, err := os.MkdirTemp("", "zeroinstall-recipe-")
	if err != nil {
		return "", errcode.Wrap(errcode.IO, err, "create recipe working directory")
	}
	defer os.RemoveAll(work)

	sink := store.DiskSink{Root: work}
	for _, step := range recipe.Steps {
		if err := ctx.Err(); err != nil {
			return "", errcode.Wrap(errcode.Canceled, err, "recipe for %s", impl.ID)
		}
		if err := f.applyStep(ctx, feedDoc, impl, sink, work, step); err != nil {
			return "", err
		}
	}
	return f.Store.AddDirectory(ctx, work, impl.ManifestDigest)
}

func (f *Fetcher) applyStep(ctx context.Context, feedDoc *model.Feed, impl model.Implementation, sink store.DiskSink, work string, step model.Step) error {
	switch s := step.(type) {
	case model.Archive:
		return f.extractArchiveStep(ctx, impl, sink, s)
	case model.SingleFile:
		return f.placeSingleFile(ctx, impl.ManifestDigest, work, s)
	case model.RenameStep:
		return renameStep(work, s)
	case model.RemoveStep:
		return removeStep(work, s)
	case model.CopyFromStep:
		return f.copyFromStep(ctx, feedDoc, work, s)
	default:
		return errcode.New(errcode.NotSupported, "unsupported recipe step %T", step)
	}
}

func (f *Fetcher) extractArchiveStep(ctx context.Context, impl model.Implementation, sink store.DiskSink, a model.Archive) error {
	body, err := f.download(ctx, impl.ManifestDigest, a.Href, a.Size)
	if err != nil {
		return err
	}
	var target manifest.Sink = sink
	if a.Destination != "" {
		target = manifest.PrefixSink{Prefix: a.Destination, Sink: sink}
	}
	if err := archive.Extract(a.MimeType, bytes.NewReader(body), target, a.Extract); err != nil {
		return err
	}
	f.rememberChunks(ctx, impl.ManifestDigest, body)
	return nil
}

// placeSingleFile downloads sf and writes it to work/sf.Destination.
func (f *Fetcher) placeSingleFile(ctx context.Context, digest model.ManifestDigest, work string, sf model.SingleFile) error {
	body, err := f.download(ctx, digest, sf.Href, sf.Size)
	if err != nil {
		return err
	}
	full := filepath.Join(work, filepath.FromSlash(sf.Destination))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errcode.Wrap(errcode.IO, err, "create parent directory for %s", sf.Destination)
	}
	mode := os.FileMode(0o644)
	if sf.Executable {
		mode = 0o755
	}
	if err := os.WriteFile(full, body, mode); err != nil {
		return errcode.Wrap(errcode.IO, err, "write %s", sf.Destination)
	}
	return nil
}

func renameStep(work string, s model.RenameStep) error {
	src := filepath.Join(work, filepath.FromSlash(s.Src))
	dst := filepath.Join(work, filepath.FromSlash(s.Dst))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errcode.Wrap(errcode.IO, err, "create parent directory for %s", s.Dst)
	}
	if err := os.Rename(src, dst); err != nil {
		return errcode.Wrap(errcode.IO, err, "rename %s to %s", s.Src, s.Dst)
	}
	return nil
}

func removeStep(work string, s model.RemoveStep) error {
	target := filepath.Join(work, filepath.FromSlash(s.Path))
	if err := os.RemoveAll(target); err != nil {
		return errcode.Wrap(errcode.IO, err, "remove %s", s.Path)
	}
	return nil
}

// copyFromStep resolves s.ID to a sibling Implementation within feedDoc,
// fetching it recursively if not yet in the store, then copies Src from
// its directory into work/Dst.
func (f *Fetcher) copyFromStep(ctx context.Context, feedDoc *model.Feed, work string, s model.CopyFromStep) error {
	if feedDoc == nil {
		return errcode.New(errcode.NotSupported, "copy-from step requires a feed to resolve id %s", s.ID)
	}
	var sibling model.Implementation
	found := false
	for _, cand := range feedDoc.Implementations {
		if cand.ID == s.ID {
			sibling, found = cand, true
			break
		}
	}
	if !found {
		return errcode.New(errcode.NotFound, "copy-from step: implementation %s not found in feed", s.ID)
	}
	siblingPath, err := f.Fetch(ctx, feedDoc, sibling)
	if err != nil {
		return errcode.Wrap(errcode.NotFound, err, "fetch copy-from source %s", s.ID)
	}
	src := filepath.Join(siblingPath, filepath.FromSlash(s.Src))
	dst := filepath.Join(work, filepath.FromSlash(s.Dst))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errcode.Wrap(errcode.IO, err, "create parent directory for %s", s.Dst)
	}
	return copyRecursive(src, dst)
}

func copyRecursive(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return errcode.Wrap(errcode.IO, err, "stat copy-from source %s", src)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(src)
		if err != nil {
			return errcode.Wrap(errcode.IO, err, "read symlink %s", src)
		}
		return os.Symlink(target, dst)
	}
	if info.IsDir() {
		if err := os.MkdirAll(dst, info.Mode().Perm()); err != nil {
			return errcode.Wrap(errcode.IO, err, "create directory %s", dst)
		}
		entries, err := os.ReadDir(src)
		if err != nil {
			return errcode.Wrap(errcode.IO, err, "list directory %s", src)
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
		return errcode.Wrap(errcode.IO, err, "open copy-from source %s", src)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return errcode.Wrap(errcode.IO, err, "create %s", dst)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return errcode.Wrap(errcode.IO, err, "copy %s to %s", src, dst)
	}
	return nil
}
