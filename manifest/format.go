package manifest

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
)

// Format identifies a digest algorithm and its serialization dialect: the
// algorithm determines both the per-entry digest hash and the hash over
// the rendered manifest text, and the encoding of the final digest
// string. Supported formats are sha1new, sha256, and sha256new.
type Format struct {
	name string
}

var (
	SHA1New    = Format{name: "sha1new"}
	SHA256     = Format{name: "sha256"}
	SHA256New  = Format{name: "sha256new"}
)

// Formats lists every supported Format, in the teacher-style "known
// formats" table idiom (cf. registry/storage/driver/factory's registered
// drivers).
var Formats = map[string]Format{
	SHA1New.name:   SHA1New,
	SHA256.name:    SHA256,
	SHA256New.name: SHA256New,
}

// ParseFormat looks up a Format by its on-disk algorithm name.
func ParseFormat(name string) (Format, error) {
	f, ok := Formats[name]
	if !ok {
		return Format{}, fmt.Errorf("manifest: unsupported format %q", name)
	}
	return f, nil
}

func (f Format) String() string { return f.name }

// newHash returns a fresh hash.Hash for per-entry and whole-manifest
// digests under this format.
func (f Format) newHash() hash.Hash {
	if f.name == "sha1new" {
		return sha1.New()
	}
	return sha256.New()
}

// EncodeEntryDigest hashes data (a file's contents, or a symlink target)
// and returns the digest text used on an individual F/X/S manifest line.
// sha1new and sha256 lines use lowercase hex; sha256new lines also use
// hex for the per-entry digest (only the final whole-manifest digest is
// base32) per the reference encoder.
func (f Format) EncodeEntryDigest(data []byte) string {
	h := f.newHash()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

var base32NoPad = base32.StdEncoding.WithPadding(base32.NoPadding)

// Digest hashes the rendered manifest text and encodes the result per
// format: lowercase hex for sha1new, uppercase hex for sha256, lowercase
// base32 without padding for sha256new.
func (f Format) Digest(manifestText string) string {
	h := f.newHash()
	h.Write([]byte(manifestText))
	sum := h.Sum(nil)
	switch f.name {
	case "sha1new":
		return hex.EncodeToString(sum)
	case "sha256":
		return strings.ToUpper(hex.EncodeToString(sum))
	case "sha256new":
		return strings.ToLower(base32NoPad.EncodeToString(sum))
	}
	return hex.EncodeToString(sum)
}
