// Package feed implements the Feed Cache & Parser (spec component C4):
// an on-disk mirror of every feed ever fetched, indexed by escaped
// FeedURI, with a tolerant XML parser that never lets a corrupt cache
// entry break unrelated operations. The atomic-write cache layout follows
// the teacher's content-addressable path conventions (registry/storage/
// paths.go) generalized from digest-keyed blobs to escaped-URI-keyed
// feed documents.
package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/zeroinstall/zeroinstall/errcode"
	"github.com/zeroinstall/zeroinstall/model"
)

// maxFilenameLength is conservative across the platforms the engine
// targets (Windows MAX_PATH components included); above it, Cache falls
// back to a hashed alternate name recorded in the sidecar index.
const maxFilenameLength = 200

// Cache is an on-disk feed cache rooted at Dir.
type Cache struct {
	Dir string
}

// New returns a Cache rooted at dir.
func New(dir string) *Cache {
	return &Cache{Dir: dir}
}

// sidecarIndex maps a hashed alternate filename back to its original
// escaped name, for escaped URIs too long for the host filesystem.
type sidecarIndex struct {
	path string
}

func (c *Cache) sidecar() sidecarIndex {
	return sidecarIndex{path: filepath.Join(c.Dir, ".index.json")}
}

func (s sidecarIndex) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, errcode.Wrap(errcode.IO, err, "read feed cache index")
	}
	m := make(map[string]string)
	if err := json.Unmarshal(data, &m); err != nil {
		return make(map[string]string), nil // corrupt sidecar: treat as empty, never fatal
	}
	return m, nil
}

func (s sidecarIndex) save(m map[string]string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errcode.Wrap(errcode.IO, err, "marshal feed cache index")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errcode.Wrap(errcode.IO, err, "write feed cache index")
	}
	return os.Rename(tmp, s.path)
}

// filename returns the on-disk filename for uri: its escaped form, unless
// that exceeds maxFilenameLength, in which case a hashed alternate is
// used and recorded in the sidecar index.
func (c *Cache) filename(uri model.FeedURI) (string, error) {
	escaped := uri.Escape()
	if len(escaped) <= maxFilenameLength {
		return escaped, nil
	}
	sum := sha256.Sum256([]byte(escaped))
	hashed := "sha256-" + hex.EncodeToString(sum[:])

	idx := c.sidecar()
	m, err := idx.load()
	if err != nil {
		return "", err
	}
	if _, exists := m[hashed]; !exists {
		m[hashed] = escaped
		if err := idx.save(m); err != nil {
			return "", err
		}
	}
	return hashed, nil
}

func (c *Cache) path(uri model.FeedURI) (string, error) {
	name, err := c.filename(uri)
	if err != nil {
		return "", err
	}
	return filepath.Join(c.Dir, name), nil
}

// Contains reports whether uri is present in the cache, or — for a local
// file: uri — whether the referenced file itself exists.
func (c *Cache) Contains(uri model.FeedURI) bool {
	if uri.IsLocal() {
		_, err := os.Stat(localPathOf(uri))
		return err == nil
	}
	p, err := c.path(uri)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

func localPathOf(uri model.FeedURI) string {
	s := uri.String()
	for _, prefix := range []string{"file://", "file:"} {
		if len(s) > len(prefix) && s[:len(prefix)] == prefix {
			return s[len(prefix):]
		}
	}
	return s
}

// Raw returns the exact bytes fetched for uri, including any signature
// trailer.
func (c *Cache) Raw(uri model.FeedURI) ([]byte, error) {
	if uri.IsLocal() {
		data, err := os.ReadFile(localPathOf(uri))
		if err != nil {
			return nil, errcode.Wrap(errcode.IO, err, "read local feed %s", uri)
		}
		return data, nil
	}
	p, err := c.path(uri)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, errcode.Wrap(errcode.NotFound, err, "feed %s not cached", uri)
	}
	return data, nil
}
