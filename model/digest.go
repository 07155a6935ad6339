package model

// ManifestDigest is a bag of (algorithm -> digest string) entries
// identifying a directory's contents. The zero value has no entries.
type ManifestDigest map[string]string

// algorithmRank orders supported algorithms from weakest to strongest;
// Best prefers the last (strongest) entry present.
var algorithmRank = []string{"sha1new", "sha256", "sha256new"}

// Best returns the strongest algorithm present and its digest, preferring
// sha256new > sha256 > sha1new. Returns ("", "", false) if empty.
func (d ManifestDigest) Best() (algorithm, digest string, ok bool) {
	for i := len(algorithmRank) - 1; i >= 0; i-- {
		alg := algorithmRank[i]
		if v, present := d[alg]; present {
			return alg, v, true
		}
	}
	return "", "", false
}

// DirName returns the canonical store directory name for the best digest:
// "<algorithm>=<digest>" for sha1new/sha256, "<algorithm>_<digest>" for
// sha256new (which uses base32 and therefore a '_' separator, since '='
// is a valid base32 padding character).
func (d ManifestDigest) DirName() (string, bool) {
	alg, digest, ok := d.Best()
	if !ok {
		return "", false
	}
	if alg == "sha256new" {
		return alg + "_" + digest, true
	}
	return alg + "=" + digest, true
}

// ParseDirName splits a store directory name back into (algorithm, digest).
func ParseDirName(name string) (algorithm, digest string, ok bool) {
	for i, c := range name {
		if c == '=' || c == '_' {
			return name[:i], name[i+1:], true
		}
	}
	return "", "", false
}

// Equal reports whether d and other share at least one algorithm with a
// matching digest (two ManifestDigests identify the same content if they
// agree on any algorithm they have in common).
func (d ManifestDigest) Equal(other ManifestDigest) bool {
	for alg, v := range d {
		if ov, ok := other[alg]; ok {
			return v == ov
		}
	}
	return false
}
