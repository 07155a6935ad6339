package store

import (
	"context"
	"io"
	"os"

	ocidigest "github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/zeroinstall/zeroinstall/archive"
	"github.com/zeroinstall/zeroinstall/errcode"
	"github.com/zeroinstall/zeroinstall/internal/dcontext"
	"github.com/zeroinstall/zeroinstall/manifest"
	"github.com/zeroinstall/zeroinstall/model"
)

// ArchiveSource is one archive to overlay into a staging directory:
// MimeType selects the Extractor, SubDir is stripped per the archive's
// declared extract= attribute, and Destination nests the archive's
// contents under a further path prefix (the archive's dest= attribute).
type ArchiveSource struct {
	Stream      io.Reader
	MimeType    string
	SubDir      string
	Destination string
}

// AddArchives streams each archive in order through its Extractor onto a
// single staging directory (later archives overlay earlier ones, as
// Recipe Archive steps do), verifies the result against digest, and
// commits. If every source happens to be a single ArchiveSource, this is
// also the fast path Fetcher uses when a Recipe is just one Archive step.
func (s *Store) AddArchives(ctx context.Context, sources []ArchiveSource, digest model.ManifestDigest) (string, error) {
	alg, want, ok := digest.Best()
	if !ok {
		return "", errcode.New(errcode.NotSupported, "manifest digest has no supported algorithm")
	}

	staging := s.stagingDir()
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return "", errcode.Wrap(errcode.IO, err, "create staging directory")
	}

	sink := manifest.Sink(DiskSink{Root: staging})
	for _, src := range sources {
		target := sink
		if src.Destination != "" {
			target = manifest.PrefixSink{Prefix: src.Destination, Sink: sink}
		}
		if err := archive.Extract(src.MimeType, src.Stream, target, src.SubDir); err != nil {
			os.RemoveAll(staging)
			return "", err
		}
	}

	tree, err := scanDirectory(staging, alg)
	if err != nil {
		os.RemoveAll(staging)
		return "", err
	}
	matched, err := manifest.Verify(tree, alg, want)
	if err != nil {
		os.RemoveAll(staging)
		return "", err
	}
	if !matched {
		os.RemoveAll(staging)
		return "", errcode.New(errcode.DigestMismatch, "assembled archive contents do not match declared digest %s=%s", alg, want)
	}
	path, err := s.commit(ctx, staging, digest)
	if err != nil {
		return "", err
	}
	dcontext.GetLogger(ctx).Debugf("store: assembled archive step %+v", archiveStepDescriptor(sources, alg, want))
	return path, nil
}

// archiveStepDescriptor reports an assembled Recipe Archive step (spec
// component C5) using the OCI Content Descriptor shape: MediaType is the
// step's own declared MIME type (or, with more than one overlaid source,
// the first one) and Digest describes the verified result; Size is left
// zero. A multi-archive Recipe thus logs the same descriptor fields a
// registry would use to describe a manifest layer.
func archiveStepDescriptor(sources []ArchiveSource, alg, want string) v1.Descriptor {
	mediaType := "application/octet-stream"
	if len(sources) > 0 {
		mediaType = sources[0].MimeType
	}
	return v1.Descriptor{
		MediaType: mediaType,
		Digest:    ocidigest.Digest(alg + ":" + want),
	}
}
