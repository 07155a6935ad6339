package selections

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	events "github.com/docker/go-events"

	"github.com/zeroinstall/zeroinstall/errcode"
	"github.com/zeroinstall/zeroinstall/internal/uuid"
	"github.com/zeroinstall/zeroinstall/manifest"
)

// deployEventKind classifies one deployEvent posted to a DeployDirectory
// or ClearDirectory caller's Sink, the same per-entry progress shape
// fetch.taskEvent uses for per-implementation fetch lifecycle
// (fetch/progress.go), here retargeted to per-path staging progress.
type deployEventKind int

const (
	entryStaged deployEventKind = iota
	entryCommitted
	entryFailed
)

// DeployEvent reports progress on one manifest entry during a
// DeployDirectory or ClearDirectory call.
type DeployEvent struct {
	Kind deployEventKind
	Path string
	Err  error
}

func emit(sink events.Sink, kind deployEventKind, path string, err error) {
	if sink == nil {
		return
	}
	_ = sink.Write(DeployEvent{Kind: kind, Path: path, Err: err})
}

// RestartManager closes any process holding an open handle on the files
// about to be replaced, so a rename can succeed even on platforms (namely
// Windows) that deny renaming an open file. Reopen undoes Close, unless
// the caller set NoRestart — 0install's own restart-manager semantics.
// The only real implementation is Windows-specific system API the Go
// standard library and this corpus have no binding for; NoopRestartManager
// is the cross-platform default everywhere else.
type RestartManager interface {
	// Close stops every process with an open handle on any of paths,
	// returning a Reopen func that restarts them.
	Close(ctx context.Context, paths []string) (reopen func(), err error)
}

// NoopRestartManager implements RestartManager for platforms (everywhere
// but Windows) with no restart-manager facility: there is nothing to
// close, so nothing needs reopening either.
type NoopRestartManager struct{}

func (NoopRestartManager) Close(context.Context, []string) (func(), error) {
	return func() {}, nil
}

// StagedOperation is the two-phase stage/commit/rollback pattern shared by
// DeployDirectory and ClearDirectory (spec §4.8), mirroring the Store's
// atomic stage-then-rename commit (store/store.go's stagingDir/commit)
// generalized from "one digest directory" to "every entry of a manifest".
type StagedOperation struct {
	sink events.Sink

	// pending records one rename-on-commit per staged entry: Tmp is the
	// path written (deploy) or moved aside (clear) during stage; Final
	// is where it lands (deploy); for clear, Final is empty and commit
	// just removes Tmp.
	pending []pendingRename
}

type pendingRename struct {
	path  string // deploy: the manifest-relative path, for progress reporting. clear: the full original path, which rollback restores.
	tmp   string
	final string // deploy: destination path. clear: empty (commit deletes tmp).
}

// newStagedOperation verifies dst has sub-second mtime granularity (a
// coarser filesystem would make later manifest verification, which
// compares at one-second resolution, indistinguishable from tampering)
// and asks restart to free any handles on paths before staging begins.
func newStagedOperation(ctx context.Context, restart RestartManager, sink events.Sink, dst string, paths []string) (*StagedOperation, func(), error) {
	if restart == nil {
		restart = NoopRestartManager{}
	}
	if err := verifyTimestampGranularity(dst); err != nil {
		return nil, nil, err
	}
	reopen, err := restart.Close(ctx, paths)
	if err != nil {
		return nil, nil, errcode.Wrap(errcode.IO, err, "restart manager: close handles under %s", dst)
	}
	return &StagedOperation{sink: sink}, reopen, nil
}

func (op *StagedOperation) commit() error {
	for i, p := range op.pending {
		if p.final == "" {
			// ClearDirectory: commit deletes the aside file.
			if err := os.RemoveAll(p.tmp); err != nil {
				op.rollbackFrom(i)
				return errcode.Wrap(errcode.IO, err, "remove %s", p.path)
			}
		} else {
			if err := os.Rename(p.tmp, p.final); err != nil {
				op.rollbackFrom(i)
				return errcode.Wrap(errcode.IO, err, "commit %s", p.path)
			}
		}
		emit(op.sink, entryCommitted, p.path, nil)
	}
	return nil
}

// rollbackFrom reverses stage for every not-yet-committed entry starting
// at index i; entries before i already landed at their final name and,
// per spec, are not undone by this rollback.
func (op *StagedOperation) rollbackFrom(i int) {
	for _, p := range op.pending[i:] {
		if p.final == "" {
			// ClearDirectory: move the aside file back to its original name.
			_ = os.Rename(p.tmp, p.path)
		} else {
			_ = os.Remove(p.tmp)
		}
	}
}

func (op *StagedOperation) rollback() {
	op.rollbackFrom(0)
}

func tmpName(path string) string {
	return path + "." + uuid.NewString() + ".tmp"
}

// DeployDirectory stages every entry of tree from src onto dst, then
// commits the staged copies into place. On any staging or commit error
// the operation rolls back and dst is left as it was (save for entries
// already renamed into place at commit time, which are not undone).
func DeployDirectory(ctx context.Context, tree *manifest.Tree, src, dst string, restart RestartManager, sink events.Sink) error {
	entries := manifest.Entries(tree)

	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Kind != manifest.KindDirectory {
			paths = append(paths, filepath.Join(dst, filepath.FromSlash(e.Path)))
		}
	}

	if err := os.MkdirAll(dst, 0o755); err != nil {
		return errcode.Wrap(errcode.IO, err, "create deployment root %s", dst)
	}
	op, reopen, err := newStagedOperation(ctx, restart, sink, dst, paths)
	if err != nil {
		return err
	}
	defer reopen()

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			op.rollback()
			return errcode.Wrap(errcode.Canceled, err, "deploy %s", dst)
		}

		dstPath := filepath.Join(dst, filepath.FromSlash(e.Path))
		if e.Kind == manifest.KindDirectory {
			if err := os.MkdirAll(dstPath, 0o755); err != nil {
				op.rollback()
				return errcode.Wrap(errcode.IO, err, "create directory %s", dstPath)
			}
			continue
		}

		srcPath := filepath.Join(src, filepath.FromSlash(e.Path))
		tmp := tmpName(dstPath)
		if err := stageEntry(e, srcPath, tmp); err != nil {
			emit(sink, entryFailed, e.Path, err)
			op.rollback()
			return errcode.Wrap(errcode.IO, err, "stage %s", e.Path)
		}
		op.pending = append(op.pending, pendingRename{path: e.Path, tmp: tmp, final: dstPath})
		emit(sink, entryStaged, e.Path, nil)
	}

	if err := op.commit(); err != nil {
		return err
	}
	return nil
}

// stageEntry writes srcPath's content (or symlink target) to tmp,
// preserving the executable bit.
func stageEntry(e manifest.Entry, srcPath, tmp string) error {
	switch e.Kind {
	case manifest.KindSymlink:
		target, err := os.Readlink(srcPath)
		if err != nil {
			return err
		}
		return os.Symlink(target, tmp)
	default:
		mode := os.FileMode(0o644)
		if e.Kind == manifest.KindExecutable {
			mode = 0o755
		}
		in, err := os.Open(srcPath)
		if err != nil {
			return err
		}
		defer in.Close()
		out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, in); err != nil {
			out.Close()
			os.Remove(tmp)
			return err
		}
		return out.Close()
	}
}

// ClearDirectory stages the removal of every non-directory entry tree
// lists under path, by moving each aside, then commits the removal.
// Entries the manifest lists but path doesn't have are silently skipped;
// entries present under path but not listed in tree are left untouched.
func ClearDirectory(ctx context.Context, tree *manifest.Tree, path string, restart RestartManager, sink events.Sink) error {
	entries := manifest.Entries(tree)

	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Kind != manifest.KindDirectory {
			paths = append(paths, filepath.Join(path, filepath.FromSlash(e.Path)))
		}
	}

	op, reopen, err := newStagedOperation(ctx, restart, sink, path, paths)
	if err != nil {
		return err
	}
	defer reopen()

	for _, e := range entries {
		if e.Kind == manifest.KindDirectory {
			continue
		}
		if err := ctx.Err(); err != nil {
			op.rollback()
			return errcode.Wrap(errcode.Canceled, err, "clear %s", path)
		}

		target := filepath.Join(path, filepath.FromSlash(e.Path))
		if _, err := os.Lstat(target); os.IsNotExist(err) {
			continue
		}
		tmp := tmpName(target)
		if err := os.Rename(target, tmp); err != nil {
			emit(sink, entryFailed, e.Path, err)
			op.rollback()
			return errcode.Wrap(errcode.IO, err, "stage removal of %s", e.Path)
		}
		op.pending = append(op.pending, pendingRename{path: target, tmp: tmp})
		emit(sink, entryStaged, e.Path, nil)
	}

	return op.commit()
}

// verifyTimestampGranularity reports an error if dir's filesystem only
// records whole-second mtimes. A coarser clock would make two distinct
// writes within the same second indistinguishable, breaking a manifest
// comparison that relies on one-second resolution.
func verifyTimestampGranularity(dir string) error {
	f, err := os.CreateTemp(dir, ".zi-granularity-*")
	if err != nil {
		return errcode.Wrap(errcode.IO, err, "probe filesystem timestamp granularity under %s", dir)
	}
	name := f.Name()
	f.Close()
	defer os.Remove(name)

	info, err := os.Stat(name)
	if err != nil {
		return errcode.Wrap(errcode.IO, err, "stat granularity probe %s", name)
	}
	if info.ModTime().Round(time.Second).Equal(info.ModTime()) {
		return errcode.New(errcode.NotSupported, "filesystem under %s only records whole-second timestamps", dir)
	}
	return nil
}
