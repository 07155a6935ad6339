package selections

import (
	"context"
	"testing"

	"github.com/zeroinstall/zeroinstall/model"
)

type fakeCache map[string]bool

func (c fakeCache) Contains(digest model.ManifestDigest) bool {
	name, ok := digest.DirName()
	return ok && c[name]
}

type fakeFeeds map[string]*model.Feed

func (f fakeFeeds) GetFeed(ctx context.Context, uri model.FeedURI) (*model.Feed, bool) {
	doc, ok := f[uri.String()]
	return doc, ok
}

func mustURI(t *testing.T, s string) model.FeedURI {
	t.Helper()
	u, err := model.NewFeedURI(s)
	if err != nil {
		t.Fatalf("NewFeedURI(%q) = %v", s, err)
	}
	return u
}

func mustVersion(t *testing.T, s string) model.ImplementationVersion {
	t.Helper()
	v, err := model.ParseVersion(s)
	if err != nil {
		t.Fatalf("ParseVersion(%q) = %v", s, err)
	}
	return v
}

func selAt(t *testing.T, iface model.FeedURI, id, version string, digest model.ManifestDigest) model.ImplementationSelection {
	t.Helper()
	return model.ImplementationSelection{
		Implementation: model.Implementation{ID: id, Version: mustVersion(t, version), ManifestDigest: digest},
		InterfaceURI:   iface,
		FromFeed:       iface,
	}
}

func TestGetUncachedSkipsPresentAndLocal(t *testing.T) {
	a := mustURI(t, "http://example.com/a.xml")
	b := mustURI(t, "http://example.com/b.xml")
	c := mustURI(t, "http://example.com/c.xml")

	present := selAt(t, a, "a-1.0", "1.0", model.ManifestDigest{"sha256new": "present"})
	missing := selAt(t, b, "b-1.0", "1.0", model.ManifestDigest{"sha256new": "missing"})
	local := selAt(t, c, "c-1.0", "1.0", model.ManifestDigest{"sha256new": "unused"})
	local.LocalPath = "/opt/c"

	sel := model.Selections{InterfaceURI: a, Selections: []model.ImplementationSelection{present, missing, local}}
	cache := fakeCache{}
	name, _ := present.ManifestDigest.DirName()
	cache[name] = true

	got := GetUncached(sel, cache)
	if len(got) != 1 || got[0].ID != "b-1.0" {
		t.Fatalf("GetUncached() = %+v, want only b-1.0", got)
	}
}

func TestGetImplementationsResolvesFromFeedAndFallsBack(t *testing.T) {
	a := mustURI(t, "http://example.com/a.xml")
	b := mustURI(t, "http://example.com/b.xml")

	// a's feed is still cached and carries a refreshed command set for the
	// same ID; b's feed has since disappeared from the cache.
	refreshed := model.Implementation{ID: "a-1.0", Version: mustVersion(t, "1.0"), Commands: map[string]model.Command{"run": {Path: "bin/a"}}}
	feeds := fakeFeeds{a.String(): {URI: a, Implementations: []model.Implementation{refreshed}}}

	aSel := selAt(t, a, "a-1.0", "1.0", nil)
	bSel := selAt(t, b, "b-1.0", "1.0", nil)
	sel := model.Selections{InterfaceURI: a, Selections: []model.ImplementationSelection{aSel, bSel}}

	impls := GetImplementations(context.Background(), sel, feeds)
	if _, hasRun := impls[a.String()].Commands["run"]; !hasRun {
		t.Errorf("GetImplementations()[a] = %+v, want the refreshed feed copy with a run command", impls[a.String()])
	}
	if impls[b.String()].ID != "b-1.0" {
		t.Errorf("GetImplementations()[b] = %+v, want the embedded fallback", impls[b.String()])
	}
}

func TestGetTreeOrdersDependenciesBelowRootAndDedupsDiamonds(t *testing.T) {
	root := mustURI(t, "http://example.com/root.xml")
	mid := mustURI(t, "http://example.com/mid.xml")
	leaf := mustURI(t, "http://example.com/leaf.xml")

	rootSel := selAt(t, root, "root-1.0", "1.0", nil)
	rootSel.Dependencies = []model.Dependency{
		{InterfaceURI: mid, Importance: model.ImportanceEssential},
		{InterfaceURI: leaf, Importance: model.ImportanceEssential}, // diamond: also reachable via mid
	}
	midSel := selAt(t, mid, "mid-1.0", "1.0", nil)
	midSel.Dependencies = []model.Dependency{{InterfaceURI: leaf, Importance: model.ImportanceEssential}}
	leafSel := selAt(t, leaf, "leaf-1.0", "1.0", nil)

	sel := model.Selections{
		InterfaceURI: root,
		Selections:   []model.ImplementationSelection{rootSel, midSel, leafSel},
	}

	tree := GetTree(sel)
	if len(tree) != 3 {
		t.Fatalf("GetTree() len = %d, want 3 (each interface visited once)", len(tree))
	}
	if tree[0].Depth != 0 || !tree[0].Selection.InterfaceURI.Equal(root) {
		t.Fatalf("GetTree()[0] = %+v, want root at depth 0", tree[0])
	}
	for _, entry := range tree[1:] {
		if entry.Depth == 0 {
			t.Errorf("non-root entry %v reported at depth 0", entry.Selection.InterfaceURI)
		}
	}
}
