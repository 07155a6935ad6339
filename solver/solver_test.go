package solver

import (
	"context"
	"testing"

	"github.com/zeroinstall/zeroinstall/errcode"
	"github.com/zeroinstall/zeroinstall/model"
)

type fakeFeeds map[string]*model.Feed

func (f fakeFeeds) GetFeed(ctx context.Context, uri model.FeedURI) (*model.Feed, bool) {
	doc, ok := f[uri.String()]
	return doc, ok
}

type fakePreferences struct {
	iface map[string]model.InterfacePreferences
	impl  map[string]model.ImplementationPreferences
}

func (p fakePreferences) FeedPreferences(model.FeedURI) model.FeedPreferences { return model.FeedPreferences{} }
func (p fakePreferences) InterfacePreferences(uri model.FeedURI) model.InterfacePreferences {
	return p.iface[uri.String()]
}
func (p fakePreferences) ImplementationPreferences(id string) model.ImplementationPreferences {
	return p.impl[id]
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

func mustRange(t *testing.T, s string) model.VersionRange {
	t.Helper()
	r, err := model.ParseVersionRange(s)
	if err != nil {
		t.Fatalf("ParseVersionRange(%q) = %v", s, err)
	}
	return r
}

func implAt(t *testing.T, id, version string) model.Implementation {
	t.Helper()
	return model.Implementation{
		ID:        id,
		Version:   mustVersion(t, version),
		Stability: model.Stable,
	}
}

func TestSolveVersionRangePicksHighestSatisfying(t *testing.T) {
	iface := mustURI(t, "http://example.com/prog.xml")
	versions := []string{"0.9", "1.0", "1.1", "2.0", "2.1"}
	var impls []model.Implementation
	for _, v := range versions {
		impls = append(impls, implAt(t, "sha256new="+v, v))
	}
	feeds := fakeFeeds{iface.String(): &model.Feed{URI: iface, Implementations: impls}}
	s := &Solver{Feeds: feeds, Preferences: fakePreferences{}}

	reqs := model.Requirements{
		InterfaceURI:      iface,
		ExtraRestrictions: map[string]model.VersionRange{iface.String(): mustRange(t, "..!2.0")},
	}
	sel, err := s.Solve(context.Background(), reqs)
	if err != nil {
		t.Fatalf("Solve() = %v", err)
	}
	got, ok := sel.ByInterface(iface)
	if !ok || got.Version.String() != "1.1" {
		t.Fatalf("selected version = %v, want 1.1", got.Version)
	}

	reqs.ExtraRestrictions[iface.String()] = mustRange(t, "..!1.1")
	sel, err = s.Solve(context.Background(), reqs)
	if err != nil {
		t.Fatalf("Solve() = %v", err)
	}
	got, _ = sel.ByInterface(iface)
	if got.Version.String() != "1.0" {
		t.Fatalf("selected version = %v, want 1.0", got.Version)
	}
}

func TestSolveOrdersDependenciesBeforeDependents(t *testing.T) {
	lib := mustURI(t, "http://example.com/lib.xml")
	app := mustURI(t, "http://example.com/app.xml")

	libImpl := implAt(t, "lib-1.0", "1.0")
	appImpl := implAt(t, "app-1.0", "1.0")
	appImpl.Dependencies = []model.Dependency{{InterfaceURI: lib, Importance: model.ImportanceEssential}}

	feeds := fakeFeeds{
		app.String(): {URI: app, Implementations: []model.Implementation{appImpl}},
		lib.String(): {URI: lib, Implementations: []model.Implementation{libImpl}},
	}
	s := &Solver{Feeds: feeds, Preferences: fakePreferences{}}

	sel, err := s.Solve(context.Background(), model.Requirements{InterfaceURI: app})
	if err != nil {
		t.Fatalf("Solve() = %v", err)
	}
	if len(sel.Selections) != 2 {
		t.Fatalf("len(Selections) = %d, want 2", len(sel.Selections))
	}
	if !sel.Selections[0].InterfaceURI.Equal(lib) {
		t.Errorf("Selections[0] = %s, want lib first (dependency before dependent)", sel.Selections[0].InterfaceURI.String())
	}
	if !sel.Selections[1].InterfaceURI.Equal(app) {
		t.Errorf("Selections[1] = %s, want app last", sel.Selections[1].InterfaceURI.String())
	}
}

func TestSolveRejectsArchitectureMismatch(t *testing.T) {
	iface := mustURI(t, "http://example.com/prog.xml")
	impl := implAt(t, "win-only", "1.0")
	impl.Architecture = model.ParseArchitecture("Windows-x86_64")

	feeds := fakeFeeds{iface.String(): {URI: iface, Implementations: []model.Implementation{impl}}}
	s := &Solver{
		Feeds:       feeds,
		Preferences: fakePreferences{},
		Host:        model.ParseArchitecture("Linux-x86_64"),
	}

	_, err := s.Solve(context.Background(), model.Requirements{InterfaceURI: iface})
	if errcode.Of(err) != errcode.SolverError {
		t.Fatalf("Solve() err = %v, want SolverError", err)
	}
	var detail []Rejection
	if e, ok := err.(*errcode.Error); ok {
		detail, _ = e.Detail.([]Rejection)
	}
	if len(detail) == 0 {
		t.Fatalf("expected rejection detail recorded on the SolverError")
	}
}

func TestSolveHonorsBackwardRestriction(t *testing.T) {
	a := mustURI(t, "http://example.com/a.xml")
	b := mustURI(t, "http://example.com/b.xml")
	root := mustURI(t, "http://example.com/root.xml")

	aImpl := implAt(t, "a-1.0", "1.0")
	bImpl := implAt(t, "b-1.0", "1.0")
	bImpl.Restrictions = []model.Restriction{{InterfaceURI: a, Versions: mustRange(t, "!1.0")}}

	rootImpl := implAt(t, "root-1.0", "1.0")
	rootImpl.Dependencies = []model.Dependency{
		{InterfaceURI: a, Importance: model.ImportanceEssential},
		{InterfaceURI: b, Importance: model.ImportanceEssential},
	}

	feeds := fakeFeeds{
		root.String(): {URI: root, Implementations: []model.Implementation{rootImpl}},
		a.String():    {URI: a, Implementations: []model.Implementation{aImpl}},
		b.String():    {URI: b, Implementations: []model.Implementation{bImpl}},
	}
	s := &Solver{Feeds: feeds, Preferences: fakePreferences{}}

	_, err := s.Solve(context.Background(), model.Requirements{InterfaceURI: root})
	if errcode.Of(err) != errcode.SolverError {
		t.Fatalf("Solve() err = %v, want SolverError (b's restriction conflicts with a's only version)", err)
	}
}

func TestSolveRejectsBuggyAndInsecureByDefault(t *testing.T) {
	iface := mustURI(t, "http://example.com/prog.xml")
	buggy := implAt(t, "buggy-2.0", "2.0")
	buggy.Stability = model.Buggy
	good := implAt(t, "good-1.0", "1.0")
	good.Stability = model.Stable

	feeds := fakeFeeds{iface.String(): {URI: iface, Implementations: []model.Implementation{buggy, good}}}
	s := &Solver{Feeds: feeds, Preferences: fakePreferences{}}

	sel, err := s.Solve(context.Background(), model.Requirements{InterfaceURI: iface})
	if err != nil {
		t.Fatalf("Solve() = %v", err)
	}
	got, _ := sel.ByInterface(iface)
	if got.Version.String() != "1.0" {
		t.Fatalf("selected %v, want the non-buggy 1.0 despite lower version", got.Version)
	}
}
