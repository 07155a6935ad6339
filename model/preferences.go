package model

import "time"

// FeedPreferences tracks per-feed bookkeeping the Solver consults before
// trusting a cached copy (spec §4.7 "Freshness").
type FeedPreferences struct {
	LastChecked time.Time
}

// Stale reports whether a feed last checked at p.LastChecked is older than
// freshness.
func (p FeedPreferences) Stale(freshness time.Duration, now time.Time) bool {
	if p.LastChecked.IsZero() {
		return true
	}
	return now.Sub(p.LastChecked) > freshness
}

// InterfacePreferences holds the user's per-interface overrides consulted
// during candidate generation and ranking (spec §4.7 steps 2 and 5):
// additional feeds to union in beyond the interface's own, and a stability
// floor overriding the default policy.
type InterfacePreferences struct {
	ExtraFeeds      []FeedURI
	StabilityPolicy Stability // Unset defers to the solver's default policy
}

// ImplementationPreferences holds a user's per-implementation override,
// keyed by Implementation.ID by the caller.
type ImplementationPreferences struct {
	UserStability Stability // Unset means "use the feed's declared stability"
}

// EffectiveStability returns p's override if set, else declared.
func (p ImplementationPreferences) EffectiveStability(declared Stability) Stability {
	if p.UserStability != Unset {
		return p.UserStability
	}
	return declared
}
