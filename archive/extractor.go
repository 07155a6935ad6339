// Package archive implements the abstract Archive Extractor/Builder
// contract (spec component C5): a uniform stream-to-ManifestBuilder
// bridge for every archive format a feed's <archive> or Recipe Archive
// step may reference. Concrete formats register themselves by MIME type,
// following the same "parameterized constructor behind a string key"
// registration idiom the teacher uses for storage drivers
// (registry/storage/driver/factory).
package archive

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/zeroinstall/zeroinstall/errcode"
	"github.com/zeroinstall/zeroinstall/manifest"
)

// Extractor consumes a stream, without requiring it to be seekable, and
// drives a manifest.Sink in archive order.
type Extractor interface {
	// Extract reads all of r and calls sink.AddDirectory/AddFile/
	// AddSymlink/AddHardlink for every entry. If subDir is non-empty, only
	// entries under that prefix are emitted, with the prefix stripped; if
	// subDir names a path that turns out to be a file rather than a
	// directory, Extract yields no entries at all rather than the file.
	Extract(r io.Reader, sink manifest.Sink, subDir string) error
}

var (
	mu         sync.RWMutex
	extractors = make(map[string]Extractor)
)

// Register associates an Extractor with a MIME type. Called from each
// format's init().
func Register(mimeType string, e Extractor) {
	mu.Lock()
	defer mu.Unlock()
	extractors[mimeType] = e
}

// Lookup returns the Extractor registered for mimeType.
func Lookup(mimeType string) (Extractor, error) {
	mu.RLock()
	defer mu.RUnlock()
	e, ok := extractors[mimeType]
	if !ok {
		return nil, errcode.New(errcode.NotSupported, "unsupported archive MIME type %q", mimeType)
	}
	return e, nil
}

// Supported returns every registered MIME type, sorted, for diagnostics.
func Supported() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(extractors))
	for k := range extractors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// stripSubDir applies the spec's sub_dir-stripping rule to a single
// archive entry path, returning the entry's effective path and whether it
// should be emitted at all.
func stripSubDir(name, subDir string) (string, bool) {
	if subDir == "" {
		return name, true
	}
	prefix := strings.TrimSuffix(subDir, "/") + "/"
	if !strings.HasPrefix(name, prefix) {
		return "", false
	}
	rest := name[len(prefix):]
	if rest == "" {
		return "", false
	}
	return rest, true
}

// Extract looks up the Extractor for mimeType and runs it.
func Extract(mimeType string, r io.Reader, sink manifest.Sink, subDir string) error {
	e, err := Lookup(mimeType)
	if err != nil {
		return err
	}
	if err := e.Extract(r, sink, subDir); err != nil {
		return fmt.Errorf("archive: extract %s: %w", mimeType, err)
	}
	return nil
}
