package solver

import (
	"hash/fnv"
	"strings"

	"github.com/zeroinstall/zeroinstall/model"
)

// candidate pairs an implementation with its effective stability (after
// any ImplementationPreferences override), computed once per solve so
// ranking never has to re-ask Preferences.
type candidate struct {
	impl               model.Implementation
	effectiveStability model.Stability
}

// less implements spec §4.7 step 5's ranking order: preferred
// (stability >= policy) first, then higher version, then a closer
// architecture match, then a closer language match, then the
// rollout-percentage dice roll, and finally insertion order (left to the
// caller's sort.SliceStable).
func less(a, b candidate, host model.Architecture, policy model.Stability, requestedLangs []string, rolloutSeed string) bool {
	aPreferred := a.effectiveStability >= policy
	bPreferred := b.effectiveStability >= policy
	if aPreferred != bPreferred {
		return aPreferred
	}

	if cmp := a.impl.Version.Compare(b.impl.Version); cmp != 0 {
		return cmp > 0
	}

	if aScore, bScore := a.impl.Architecture.MatchScore(host), b.impl.Architecture.MatchScore(host); aScore != bScore {
		return aScore > bScore
	}

	if aScore, bScore := languageScore(a.impl.Languages, requestedLangs), languageScore(b.impl.Languages, requestedLangs); aScore != bScore {
		return aScore > bScore
	}

	if aRoll, bRoll := rolloutEligible(a.impl, rolloutSeed), rolloutEligible(b.impl, rolloutSeed); aRoll != bRoll {
		return aRoll
	}

	return false
}

// languageScore favors an exact requested-tag match over a primary-subtag
// match over no match at all.
func languageScore(implLangs, requested []string) int {
	if len(requested) == 0 || len(implLangs) == 0 {
		return 0
	}
	best := -1
	for _, want := range requested {
		for _, have := range implLangs {
			score := 0
			switch {
			case have == want:
				score = 2
			case primarySubtag(have) == primarySubtag(want):
				score = 1
			}
			if score > best {
				best = score
			}
		}
	}
	return best
}

// langMatches implements the hard filter of spec §4.7 step 4: at least
// one requested language must match an implementation's declared
// languages, by primary subtag or full tag. An implementation declaring
// no languages at all is treated as unrestricted (matches anything), the
// same default the feed format uses when <implementation langs="…"> is
// absent.
func langMatches(requested, implLangs []string) bool {
	if len(implLangs) == 0 {
		return true
	}
	for _, want := range requested {
		for _, have := range implLangs {
			if have == want || primarySubtag(have) == primarySubtag(want) {
				return true
			}
		}
	}
	return false
}

func primarySubtag(tag string) string {
	if idx := strings.IndexAny(tag, "_-"); idx >= 0 {
		return tag[:idx]
	}
	return tag
}

// rolloutEligible reports whether impl passes its staged-rollout dice
// roll: always true at 0 or 100 (the common case of no staged rollout),
// otherwise a stable hash of (seed, impl.ID) decides so the same machine
// makes the same choice across solves.
func rolloutEligible(impl model.Implementation, seed string) bool {
	pct := impl.RolloutPercentage
	if pct <= 0 || pct >= 100 {
		return true
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(seed))
	_, _ = h.Write([]byte(impl.ID))
	roll := int(h.Sum32() % 100)
	return roll < pct
}
