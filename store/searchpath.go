package store

import (
	"context"
	"sync"

	"github.com/zeroinstall/zeroinstall/errcode"
	"github.com/zeroinstall/zeroinstall/model"
)

// SearchPath is an ordered list of Stores consulted for reads; writes
// target the first one, without a check that it is writable. This mirrors the engine's real-world
// layout of a system-wide store, a per-user store, and any ad-hoc stores
// added on the command line.
type SearchPath struct {
	stores []*Store

	mu          sync.RWMutex
	negativeHit map[string]bool // digest dir name -> confirmed absent, cleared by Flush
}

// NewSearchPath returns a SearchPath over stores, in lookup order.
func NewSearchPath(stores ...*Store) *SearchPath {
	return &SearchPath{stores: stores, negativeHit: make(map[string]bool)}
}

// Flush clears the in-memory negative-lookup cache. The engine calls this
// before every post-download lookup, since a successful fetch may have
// populated a store entry that a prior Contains/Path call had cached as
// absent.
func (sp *SearchPath) Flush() {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.negativeHit = make(map[string]bool)
}

// Contains reports whether digest is present in any store on the path.
func (sp *SearchPath) Contains(digest model.ManifestDigest) bool {
	_, ok := sp.Path(digest)
	return ok
}

// Path returns the first directory on the path holding digest, consulting
// (and populating) the negative cache to avoid re-statting every store
// root on repeated misses within one run.
func (sp *SearchPath) Path(digest model.ManifestDigest) (string, bool) {
	name, err := dirName(digest)
	if err != nil {
		return "", false
	}

	sp.mu.RLock()
	miss := sp.negativeHit[name]
	sp.mu.RUnlock()
	if miss {
		return "", false
	}

	for _, s := range sp.stores {
		if p, ok := s.Path(digest); ok {
			return p, true
		}
	}

	sp.mu.Lock()
	sp.negativeHit[name] = true
	sp.mu.Unlock()
	return "", false
}

// Writable returns the first store on the path, which is where all writes
// land. Returns an error if the path is empty.
func (sp *SearchPath) Writable() (*Store, error) {
	if len(sp.stores) == 0 {
		return nil, errcode.New(errcode.NotFound, "no store configured")
	}
	return sp.stores[0], nil
}

// AddDirectory delegates to the writable store, clearing the negative
// cache on success so a subsequent Path/Contains sees the new entry.
func (sp *SearchPath) AddDirectory(ctx context.Context, src string, digest model.ManifestDigest) (string, error) {
	w, err := sp.Writable()
	if err != nil {
		return "", err
	}
	path, err := w.AddDirectory(ctx, src, digest)
	if err != nil {
		return "", err
	}
	sp.Flush()
	return path, nil
}

// AddArchives delegates to the writable store, clearing the negative
// cache on success.
func (sp *SearchPath) AddArchives(ctx context.Context, sources []ArchiveSource, digest model.ManifestDigest) (string, error) {
	w, err := sp.Writable()
	if err != nil {
		return "", err
	}
	path, err := w.AddArchives(ctx, sources, digest)
	if err != nil {
		return "", err
	}
	sp.Flush()
	return path, nil
}
