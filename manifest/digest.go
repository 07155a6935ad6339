package manifest

import "github.com/zeroinstall/zeroinstall/model"

// ComputeDigest renders tree and hashes it under every format in formats,
// returning a model.ManifestDigest bag suitable for comparison against an
// Implementation's declared digest or for naming a store directory.
func ComputeDigest(tree *Tree, formats ...Format) model.ManifestDigest {
	text := Render(tree)
	out := make(model.ManifestDigest, len(formats))
	for _, f := range formats {
		out[f.name] = f.Digest(text)
	}
	return out
}

// Verify recomputes tree's digest under the format named by algorithm and
// reports whether it equals want.
func Verify(tree *Tree, algorithm, want string) (bool, error) {
	f, err := ParseFormat(algorithm)
	if err != nil {
		return false, err
	}
	return f.Digest(Render(tree)) == want, nil
}
