// Package models defines the core data types shared across buckperf.
package models

import "time"

// Revision is an opaque VCS revision identifier. The benchmark never
// interprets its structure; it only passes it back to the VCS.
type Revision string

// Side identifies which of the two compared buck versions a build uses.
type Side string

const (
	SideOld Side = "old"
	SideNew Side = "new"
)

// CacheMode selects how a build may interact with the directory cache.
type CacheMode string

const (
	CacheModeReadOnly  CacheMode = "readonly"
	CacheModeReadWrite CacheMode = "readwrite"
)

// CacheOutcome classifies how a single build rule interacted with the cache.
// The vocabulary is owned by buck, so the type stays an open string; the
// constants below are only the tags the benchmark's invariants reason about.
type CacheOutcome string

const (
	CacheOutcomeDirHit            CacheOutcome = "DIR_HIT"
	CacheOutcomeLocalKeyUnchanged CacheOutcome = "LOCAL_KEY_UNCHANGED_HIT"
	CacheOutcomeMiss              CacheOutcome = "MISS"
	CacheOutcomeIgnored           CacheOutcome = "IGNORED"
)

// RuleKey pairs a rule's content fingerprint with its debug description.
type RuleKey struct {
	Fingerprint string
	Debug       string
}

// RuleRecord is one build rule's outcome in one build invocation.
type RuleRecord struct {
	RuleName    string
	Outcome     CacheOutcome
	Fingerprint string
	Debug       string
}

// BuildResult captures everything the benchmark needs from one build
// invocation. It is immutable after construction.
type BuildResult struct {
	// Elapsed is the wall-clock duration of the buck invocation.
	Elapsed time.Duration

	// CacheResults groups rule records by cache outcome, preserving the
	// order in which buck logged them.
	CacheResults map[CacheOutcome][]RuleRecord

	// RuleKeys maps rule name to its fingerprint and debug description.
	// When a rule name repeats in the log, the last entry wins.
	RuleKeys map[string]RuleKey
}

// CacheCounts returns the number of rule records per cache outcome.
func (r *BuildResult) CacheCounts() map[CacheOutcome]int {
	counts := make(map[CacheOutcome]int, len(r.CacheResults))
	for outcome, records := range r.CacheResults {
		counts[outcome] = len(records)
	}
	return counts
}
