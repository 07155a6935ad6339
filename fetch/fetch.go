// Package fetch implements the Fetcher & Recipe Engine (spec component
// C6): given an Implementation not yet present in the Content-Addressed
// Implementation Store, it materializes one by ranking the
// implementation's retrieval methods, downloading and verifying whichever
// succeeds first, and handing the result to the store. It follows the
// teacher's proxy blob store's local-then-remote fallback shape
// (registry/proxy/proxyblobstore.go): check local storage first, fetch
// remotely on a miss, and commit the verified result to the store before
// returning.
package fetch

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"sort"

	events "github.com/docker/go-events"
	"github.com/opencontainers/go-digest"

	"github.com/zeroinstall/zeroinstall/errcode"
	"github.com/zeroinstall/zeroinstall/internal/chunkcache"
	"github.com/zeroinstall/zeroinstall/internal/dcontext"
	"github.com/zeroinstall/zeroinstall/metrics"
	"github.com/zeroinstall/zeroinstall/model"
	"github.com/zeroinstall/zeroinstall/store"
)

// PackageHandler resolves implementations whose ID names a native package
// (model.IsPackageID) rather than a content-addressed digest.
type PackageHandler interface {
	// Confirm asks the user (or an unattended policy) whether to proceed
	// with installing pkg at version via the system package manager.
	Confirm(ctx context.Context, manager, pkg, version string) (bool, error)
	// Install invokes the native installer. The returned path, if any, is
	// the package's resolved install root; packages that install into a
	// well-known system location may return "".
	Install(ctx context.Context, manager, pkg, version string) (string, error)
}

// Fetcher materializes implementations into a store search path.
type Fetcher struct {
	Store     *store.SearchPath
	Client    *http.Client
	Mirror    string // base URL for archive mirror fallback, e.g. "https://0install.example/mirror"
	Chunks    *chunkcache.Cache
	Sink      events.Sink // progress events; nil disables progress reporting
	Package   PackageHandler
	Discovery *Discovery // optional peer-store lookup, consulted before HTTP

	dedup downloadDedup
}

// New returns a Fetcher writing into sp. client defaults to
// http.DefaultClient when nil.
func New(sp *store.SearchPath, client *http.Client) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{Store: sp, Client: client}
}

// Fetch materializes impl, returning its on-disk path. feed is consulted
// only to resolve CopyFromStep siblings within Recipe retrieval methods;
// it may be nil for implementations with no Recipe steps.
func (f *Fetcher) Fetch(ctx context.Context, feedDoc *model.Feed, impl model.Implementation) (string, error) {
	if impl.IsLocal() {
		metrics.FetchOutcomes.WithValues("local").Inc(1)
		return impl.LocalPath, nil
	}
	if path, ok := f.Store.Path(impl.ManifestDigest); ok {
		metrics.FetchOutcomes.WithValues("cache-hit").Inc(1)
		return path, nil
	}

	if model.IsPackageID(impl.ID) {
		return f.fetchPackage(ctx, impl)
	}

	f.emit(taskEvent{Kind: taskStarted, ImplID: impl.ID})
	methods := rankRetrievalMethods(impl.RetrievalMethods)
	if len(methods) == 0 {
		err := errcode.New(errcode.NotSupported, "implementation %s has no retrieval methods", impl.ID)
		f.emit(taskEvent{Kind: taskFailed, ImplID: impl.ID, Err: err})
		return "", err
	}

	var lastErr error
	for _, m := range methods {
		if err := ctx.Err(); err != nil {
			return "", errcode.Wrap(errcode.Canceled, err, "fetch %s", impl.ID)
		}
		path, err := f.tryMethod(ctx, feedDoc, impl, m)
		if err == nil {
			f.emit(taskEvent{Kind: taskDone, ImplID: impl.ID})
			metrics.FetchOutcomes.WithValues("downloaded").Inc(1)
			return path, nil
		}
		dcontext.GetLogger(ctx).Warnf("fetch: retrieval method for %s failed: %v", impl.ID, err)
		lastErr = err
	}
	f.emit(taskEvent{Kind: taskFailed, ImplID: impl.ID, Err: lastErr})
	metrics.FetchOutcomes.WithValues("error").Inc(1)
	return "", errcode.Wrap(errcode.NotFound, lastErr, "no retrieval method succeeded for %s", impl.ID)
}

func (f *Fetcher) fetchPackage(ctx context.Context, impl model.Implementation) (string, error) {
	method, ok := packageMethod(impl)
	if !ok || f.Package == nil {
		return "", errcode.New(errcode.NotSupported, "no package handler configured for %s", impl.ID)
	}
	confirmed, err := f.Package.Confirm(ctx, method.PackageManager, method.PackageName, impl.Version.String())
	if err != nil {
		return "", errcode.Wrap(errcode.Canceled, err, "confirm package install for %s", impl.ID)
	}
	if !confirmed {
		return "", errcode.New(errcode.Canceled, "package install declined for %s", impl.ID)
	}
	return f.Package.Install(ctx, method.PackageManager, method.PackageName, impl.Version.String())
}

func packageMethod(impl model.Implementation) (model.ExternalRetrievalMethod, bool) {
	for _, m := range impl.RetrievalMethods {
		if ext, ok := m.(model.ExternalRetrievalMethod); ok {
			return ext, true
		}
	}
	return model.ExternalRetrievalMethod{}, false
}

// tryMethod attempts one retrieval method, returning the committed store
// path on success.
func (f *Fetcher) tryMethod(ctx context.Context, feedDoc *model.Feed, impl model.Implementation, m model.RetrievalMethod) (string, error) {
	switch v := m.(type) {
	case model.Archive:
		return f.fetchSingleArchive(ctx, impl, v)
	case model.SingleFile:
		return f.fetchSingleFile(ctx, impl, v)
	case model.Recipe:
		return f.runRecipe(ctx, feedDoc, impl, v)
	default:
		return "", errcode.New(errcode.NotSupported, "unsupported retrieval method %T", m)
	}
}

// fetchSingleArchive is the fast path for an implementation whose
// retrieval method is exactly one archive: stream straight into
// store.AddArchives, skipping an intermediate extraction directory.
func (f *Fetcher) fetchSingleArchive(ctx context.Context, impl model.Implementation, a model.Archive) (string, error) {
	body, err := f.download(ctx, impl.ManifestDigest, a.Href, a.Size)
	if err != nil {
		return "", err
	}
	src := store.ArchiveSource{
		Stream:      bytes.NewReader(body),
		MimeType:    a.MimeType,
		SubDir:      a.Extract,
		Destination: a.Destination,
	}
	path, err := f.Store.AddArchives(ctx, []store.ArchiveSource{src}, impl.ManifestDigest)
	if err != nil {
		return "", err
	}
	f.rememberChunks(ctx, impl.ManifestDigest, body)
	return path, nil
}

// fetchSingleFile downloads one file into a fresh working directory and
// commits it through store.AddDirectory, since AddArchives has no notion
// of a bare, unarchived file.
func (f *Fetcher) fetchSingleFile(ctx context.Context, impl model.Implementation, sf model.SingleFile) (string, error) {
	work, err := os.MkdirTemp("", "zeroinstall-fetch-")
	if err != nil {
		return "", errcode.Wrap(errcode.IO, err, "create working directory")
	}
	defer os.RemoveAll(work)

	if err := f.placeSingleFile(ctx, impl.ManifestDigest, work, sf); err != nil {
		return "", err
	}
	return f.Store.AddDirectory(ctx, work, impl.ManifestDigest)
}

func (f *Fetcher) emit(e taskEvent) {
	if f.Sink == nil {
		return
	}
	_ = f.Sink.Write(e)
}

func (f *Fetcher) rememberChunks(ctx context.Context, d model.ManifestDigest, data []byte) {
	if f.Chunks == nil {
		return
	}
	alg, want, ok := d.Best()
	if !ok {
		return
	}
	if err := f.Chunks.Put(digest.NewDigestFromEncoded(digest.Algorithm(alg), want), data); err != nil {
		dcontext.GetLogger(ctx).Debugf("fetch: chunk cache put failed: %v", err)
	}
}

// rankRetrievalMethods orders methods per spec: any download (Archive,
// SingleFile) before any Recipe; among downloads, smaller size first;
// among recipes, fewer steps first; otherwise stable on input order.
func rankRetrievalMethods(methods []model.RetrievalMethod) []model.RetrievalMethod {
	ranked := make([]model.RetrievalMethod, 0, len(methods))
	for _, m := range methods {
		if _, ok := m.(model.ExternalRetrievalMethod); ok {
			continue
		}
		ranked = append(ranked, m)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return lessRetrievalMethod(ranked[i], ranked[j])
	})
	return ranked
}

func lessRetrievalMethod(a, b model.RetrievalMethod) bool {
	aDown, bDown := isDownload(a), isDownload(b)
	if aDown != bDown {
		return aDown
	}
	if aDown {
		return sizeOf(a) < sizeOf(b)
	}
	return stepCountOf(a) < stepCountOf(b)
}

func isDownload(m model.RetrievalMethod) bool {
	switch m.(type) {
	case model.Archive, model.SingleFile:
		return true
	default:
		return false
	}
}

func sizeOf(m model.RetrievalMethod) int64 {
	switch v := m.(type) {
	case model.Archive:
		return v.Size
	case model.SingleFile:
		return v.Size
	default:
		return 0
	}
}

func stepCountOf(m model.RetrievalMethod) int {
	if r, ok := m.(model.Recipe); ok {
		return len(r.Steps)
	}
	return 0
}
