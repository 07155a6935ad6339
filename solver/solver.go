// Package solver implements the Dependency Solver (spec component C7): it
// picks one Implementation per interface reachable from a Requirements
// value such that every version/architecture/language/stability
// constraint is satisfied, preferring the "best" assignment under a
// deterministic ranking. It follows the shape of trust.CheckTrust — a
// handful of small collaborator interfaces plus one algorithm function —
// rather than a large stateful engine, since the solve itself is a pure,
// single-shot computation over its inputs.
package solver

import (
	"context"
	"sort"
	"time"

	"github.com/zeroinstall/zeroinstall/errcode"
	"github.com/zeroinstall/zeroinstall/metrics"
	"github.com/zeroinstall/zeroinstall/model"
)

// FeedProvider resolves a feed URI to its parsed document, consulting the
// Feed Cache (and, on a stale cache entry, triggering a refresh) the way
// spec §4.7's "Freshness" paragraph describes.
type FeedProvider interface {
	GetFeed(ctx context.Context, uri model.FeedURI) (*model.Feed, bool)
}

// Refresher is consulted when a cached feed is stale and network use is
// allowed; Refresh should update the cache in the background and must not
// block the solve. Optional: a FeedProvider that doesn't need background
// refreshing (e.g. an in-memory test double) can omit it.
type Refresher interface {
	Refresh(ctx context.Context, uri model.FeedURI)
}

// FeedForLister finds feeds whose <feed-for> declares iface, the third
// source of candidates spec §4.7 step 2 calls for. Optional.
type FeedForLister interface {
	FeedsFor(ctx context.Context, iface model.FeedURI) ([]model.FeedURI, error)
}

// PackageCatalog lists native package-manager implementations available
// for an interface, the fourth candidate source of spec §4.7 step 2.
// Optional.
type PackageCatalog interface {
	PackageImplementations(ctx context.Context, iface model.FeedURI) ([]model.Implementation, error)
}

// Preferences supplies the per-feed, per-interface, and per-implementation
// user overrides spec §3 describes (FeedPreferences / InterfacePreferences
// / ImplementationPreferences).
type Preferences interface {
	FeedPreferences(uri model.FeedURI) model.FeedPreferences
	InterfacePreferences(iface model.FeedURI) model.InterfacePreferences
	ImplementationPreferences(implID string) model.ImplementationPreferences
}

// Policy carries the solve-wide settings spec §4.7 reads from
// configuration: feed freshness, network use, and whether to prefer
// "testing"-stability candidates.
type Policy struct {
	Freshness       time.Duration
	NetworkOffline  bool
	HelpWithTesting bool
	// RolloutSeed salts the rollout-percentage dice roll so the same
	// machine makes the same staged-rollout choice across solves; empty
	// is fine for single-user / test use.
	RolloutSeed string
}

// defaultStabilityPolicy returns the floor a candidate's effective
// stability must meet, absent a per-interface override.
func (p Policy) defaultStabilityPolicy() model.Stability {
	if p.HelpWithTesting {
		return model.Testing
	}
	return model.Stable
}

// Solver assigns implementations to interfaces.
type Solver struct {
	Feeds       FeedProvider
	Refresh     Refresher
	FeedFor     FeedForLister
	Packages    PackageCatalog
	Preferences Preferences
	Host        model.Architecture
	Policy      Policy
}

// Rejection records why one candidate of a failing interface was
// discarded, for the SolverError's diagnostic detail.
type Rejection struct {
	Interface string
	Candidate string
	Reason    string
}

// solveState is threaded through the recursive search.
type solveState struct {
	ctx         context.Context
	assignments map[string]model.Implementation // interface string -> chosen impl
	order       []model.FeedURI                 // post-order: dependencies before dependents
	rejections  []Rejection
	candidates  map[string][]model.Implementation // memoized per interface+command scope

	// restrictions accumulates every Restriction (not Dependency) carried
	// by an already-chosen implementation, keyed by the interface it
	// narrows — spec §4.7's "backward restrictions introduced later" that
	// must be honored even though a Restriction alone never forces that
	// interface to be solved.
	restrictions map[string]model.VersionRange
}

// restrictionFor combines reqs' own extra_restrictions for iface with any
// backward restriction accumulated from already-chosen implementations.
func (st *solveState) restrictionFor(iface string, reqs model.Requirements) model.VersionRange {
	combined := reqs.RestrictionFor(iface)
	if g, ok := st.restrictions[iface]; ok {
		combined = combined.Intersect(g)
	}
	return combined
}

// applyRestrictions merges impl's own Restrictions into st.restrictions,
// failing (ok=false) if one narrows an already-chosen implementation's
// interface below its assigned version. The returned rollback undoes the
// merge, for the caller's backtracking.
func (st *solveState) applyRestrictions(rs []model.Restriction) (rollback func(), ok bool) {
	type saved struct {
		key string
		had bool
		val model.VersionRange
	}
	var snaps []saved
	rollback = func() {
		for _, s := range snaps {
			if s.had {
				st.restrictions[s.key] = s.val
			} else {
				delete(st.restrictions, s.key)
			}
		}
	}
	for _, r := range rs {
		key := r.InterfaceURI.String()
		if key == "" {
			continue
		}
		old, had := st.restrictions[key]
		snaps = append(snaps, saved{key: key, had: had, val: old})
		merged := r.Versions
		if had {
			merged = old.Intersect(r.Versions)
		}
		st.restrictions[key] = merged
		if existing, assigned := st.assignments[key]; assigned && !merged.Contains(existing.Version) {
			return rollback, false
		}
	}
	return rollback, true
}

// Solve implements spec §4.7: candidate generation, hard filters, ranking,
// and a backtracking search, returning a topologically sorted Selections
// (dependencies before dependents) or a SolverError carrying every
// candidate's Rejection reason for the interface that could not be
// satisfied.
func (s *Solver) Solve(ctx context.Context, reqs model.Requirements) (model.Selections, error) {
	st := &solveState{
		ctx:          ctx,
		assignments:  make(map[string]model.Implementation),
		candidates:   make(map[string][]model.Implementation),
		restrictions: make(map[string]model.VersionRange),
	}

	if !s.assign(st, reqs.InterfaceURI, reqs, reqs.CommandOrDefault()) {
		metrics.Solves.WithValues("error").Inc(1)
		return model.Selections{}, s.solverError(reqs.InterfaceURI, st)
	}

	sel := model.Selections{InterfaceURI: reqs.InterfaceURI, Command: reqs.CommandOrDefault()}
	for _, iface := range st.order {
		impl := st.assignments[iface.String()]
		sel.Selections = append(sel.Selections, model.ImplementationSelection{
			Implementation: impl,
			InterfaceURI:   iface,
			FromFeed:       impl.FromFeed,
		})
	}
	metrics.Solves.WithValues("ok").Inc(1)
	return sel, nil
}

func (s *Solver) solverError(root model.FeedURI, st *solveState) error {
	err := errcode.New(errcode.SolverError, "no implementation of %s satisfies all requirements", root.String())
	return err.WithDetail(st.rejections)
}

// assign tries to pick an implementation for iface (under the version
// restriction in reqs/extra) and recursively satisfy its dependencies. It
// returns false, recording rejections, if every candidate fails.
func (s *Solver) assign(st *solveState, iface model.FeedURI, reqs model.Requirements, command string) bool {
	if ctx := st.ctx; ctx.Err() != nil {
		return false
	}
	if existing, ok := st.assignments[iface.String()]; ok {
		return st.restrictionFor(iface.String(), reqs).Contains(existing.Version)
	}

	candidates := s.candidatesFor(st, iface, reqs)
	for _, impl := range candidates {
		if !st.restrictionFor(iface.String(), reqs).Contains(impl.Version) {
			st.rejections = append(st.rejections, Rejection{Interface: iface.String(), Candidate: impl.ID, Reason: "outside extra_restrictions"})
			continue
		}

		rollback, ok := st.applyRestrictions(impl.Restrictions)
		if !ok {
			rollback()
			st.rejections = append(st.rejections, Rejection{Interface: iface.String(), Candidate: impl.ID, Reason: "restriction conflicts with an already-chosen implementation"})
			continue
		}

		st.assignments[iface.String()] = impl
		if s.satisfyDependencies(st, impl, reqs, command) {
			st.order = append(st.order, iface)
			return true
		}
		delete(st.assignments, iface.String())
		rollback()
	}
	return false
}

// satisfyDependencies recursively assigns every interface impl's chosen
// command (and the command's runner, if any) and essential dependencies
// require.
func (s *Solver) satisfyDependencies(st *solveState, impl model.Implementation, reqs model.Requirements, command string) bool {
	for _, dep := range impl.Dependencies {
		if dep.Importance != model.ImportanceEssential {
			continue
		}
		if !s.assignDependency(st, dep, reqs) {
			return false
		}
	}

	cmd, ok := impl.Commands[command]
	if !ok {
		// No command of this name: acceptable for a library dependency
		// that is never run directly (command defaults to "run" only at
		// the root interface).
		return true
	}
	for _, dep := range cmd.Dependencies {
		if dep.Importance != model.ImportanceEssential {
			continue
		}
		if !s.assignDependency(st, dep, reqs) {
			return false
		}
	}
	if cmd.Runner != nil {
		runnerReqs := reqs
		runnerReqs.InterfaceURI = cmd.Runner.InterfaceURI
		if runnerReqs.ExtraRestrictions != nil {
			merged := make(map[string]model.VersionRange, len(reqs.ExtraRestrictions))
			for k, v := range reqs.ExtraRestrictions {
				merged[k] = v
			}
			if cur, ok := merged[cmd.Runner.InterfaceURI.String()]; ok {
				merged[cmd.Runner.InterfaceURI.String()] = cur.Intersect(cmd.Runner.Restriction.Versions)
			} else {
				merged[cmd.Runner.InterfaceURI.String()] = cmd.Runner.Restriction.Versions
			}
			runnerReqs.ExtraRestrictions = merged
		}
		if !s.assign(st, cmd.Runner.InterfaceURI, runnerReqs, cmd.Runner.Command) {
			return false
		}
	}
	return true
}

func (s *Solver) assignDependency(st *solveState, dep model.Dependency, reqs model.Requirements) bool {
	depReqs := reqs
	depReqs.InterfaceURI = dep.InterfaceURI
	if !dep.Restriction.Versions.IsEmpty() {
		merged := make(map[string]model.VersionRange, len(reqs.ExtraRestrictions)+1)
		for k, v := range reqs.ExtraRestrictions {
			merged[k] = v
		}
		if cur, ok := merged[dep.InterfaceURI.String()]; ok {
			merged[dep.InterfaceURI.String()] = cur.Intersect(dep.Restriction.Versions)
		} else {
			merged[dep.InterfaceURI.String()] = dep.Restriction.Versions
		}
		depReqs.ExtraRestrictions = merged
	}
	return s.assign(st, dep.InterfaceURI, depReqs, "run")
}

// candidatesFor generates and ranks iface's candidates, filtering by
// reqs and s.Host (spec §4.7 steps 1-5), memoized per interface.
func (s *Solver) candidatesFor(st *solveState, iface model.FeedURI, reqs model.Requirements) []model.Implementation {
	if cached, ok := st.candidates[iface.String()]; ok {
		return cached
	}

	raw := s.generateCandidates(st.ctx, iface)
	policy := s.stabilityPolicyFor(iface)

	survivors := make([]candidate, 0, len(raw))
	for _, impl := range raw {
		effective := impl.Stability
		if s.Preferences != nil {
			effective = s.Preferences.ImplementationPreferences(impl.ID).EffectiveStability(impl.Stability)
		}
		if reason, ok := s.hardFilterReject(impl, effective, reqs); ok {
			st.rejections = append(st.rejections, Rejection{Interface: iface.String(), Candidate: impl.ID, Reason: reason})
			continue
		}
		survivors = append(survivors, candidate{impl: impl, effectiveStability: effective})
	}
	sort.SliceStable(survivors, func(i, j int) bool {
		return less(survivors[i], survivors[j], s.Host, policy, reqs.Languages, s.Policy.RolloutSeed)
	})

	out := make([]model.Implementation, len(survivors))
	for i, c := range survivors {
		out[i] = c.impl
	}
	st.candidates[iface.String()] = out
	return out
}

// stabilityPolicyFor returns the floor a candidate's effective stability
// must meet for iface: a per-interface override if set, else the solve's
// default policy.
func (s *Solver) stabilityPolicyFor(iface model.FeedURI) model.Stability {
	if s.Preferences != nil {
		if p := s.Preferences.InterfacePreferences(iface).StabilityPolicy; p != model.Unset {
			return p
		}
	}
	return s.Policy.defaultStabilityPolicy()
}

// generateCandidates implements spec §4.7 step 1-3: fetch the interface's
// own feed (respecting freshness), union in extra feeds and feed-for
// redirects and package candidates, and flatten each feed's group
// inheritance (already done at parse time — see model.Group.ApplyTo).
func (s *Solver) generateCandidates(ctx context.Context, iface model.FeedURI) []model.Implementation {
	var out []model.Implementation

	feeds := []model.FeedURI{iface}
	if s.Preferences != nil {
		feeds = append(feeds, s.Preferences.InterfacePreferences(iface).ExtraFeeds...)
	}

	if primary, ok := s.Feeds.GetFeed(ctx, iface); ok {
		s.maybeRefresh(ctx, iface)
		feeds = append(feeds, primary.Feeds...)
	}
	if s.FeedFor != nil {
		if extra, err := s.FeedFor.FeedsFor(ctx, iface); err == nil {
			feeds = append(feeds, extra...)
		}
	}

	seen := make(map[string]bool)
	for _, f := range feeds {
		if seen[f.String()] {
			continue
		}
		seen[f.String()] = true
		doc, ok := s.Feeds.GetFeed(ctx, f)
		if !ok {
			continue
		}
		for _, impl := range doc.Implementations {
			if impl.FromFeed.String() == "" {
				impl.FromFeed = f
			}
			out = append(out, impl)
		}
	}

	if s.Packages != nil {
		if pkgs, err := s.Packages.PackageImplementations(ctx, iface); err == nil {
			for _, impl := range pkgs {
				impl.FromFeed = iface
				out = append(out, impl)
			}
		}
	}

	return out
}

func (s *Solver) maybeRefresh(ctx context.Context, iface model.FeedURI) {
	if s.Refresh == nil || s.Policy.NetworkOffline {
		return
	}
	var prefs model.FeedPreferences
	if s.Preferences != nil {
		prefs = s.Preferences.FeedPreferences(iface)
	}
	if prefs.Stale(s.Policy.Freshness, time.Now()) {
		s.Refresh.Refresh(ctx, iface)
	}
}

// hardFilterReject implements spec §4.7 step 4. ok is true when impl must
// be discarded, with reason explaining why.
func (s *Solver) hardFilterReject(impl model.Implementation, effectiveStability model.Stability, reqs model.Requirements) (reason string, ok bool) {
	if !impl.Architecture.RunsOnHost(s.Host) {
		return "architecture does not run on host", true
	}
	if len(reqs.Languages) > 0 && !langMatches(reqs.Languages, impl.Languages) {
		return "language not in requested set", true
	}
	if effectiveStability == model.Buggy || effectiveStability == model.Insecure {
		return "user stability override is buggy or insecure", true
	}
	if reqs.Source != impl.Architecture.IsSource() {
		return "source/binary mismatch against requirements.source", true
	}
	return "", false
}
