// Package evaluator is the scheduler proper. For one tick it walks the
// selected assets in topological order, evaluates each asset's automation
// condition over its candidate partitions, and returns the partitions to
// request together with each asset's new cursor and evaluation record.
//
// # Walk
//
// Assets are evaluated parents first, ties broken by key, so a condition
// that reads the requests of its parents (AnyParentRequested,
// AnyParentMissing) sees results computed earlier in the same tick and never
// results computed later. Disjoint connected components of the selection
// share nothing but the read-only graph and the per-tick caches, so they are
// evaluated concurrently.
//
// # Candidates
//
// On an asset's first evaluation, or after its condition changed, every
// valid partition is a candidate. Afterwards candidates are bounded to the
// delta since the previous tick: newly valid partitions, partitions whose
// parents were requested this tick or materialized since the previous tick,
// the asset's own recent materializations, and partitions held in any stored
// node true set. A passed cron tick makes every partition a candidate.
//
// # Combinators
//
// And evaluates each operand only on the partitions still true after the
// previous operands. Or evaluates each operand only on the partitions not yet
// true. Not complements within its candidates. Since keeps its previous true
// set minus Reset, plus Trigger; partitions outside the current candidates
// keep their latched state.
//
// # Policies
//
// Assets without a condition are decided by their scheduling policy. After
// the walk, requests propagate to policy-driven neighbours whose
// ReactToUpstreamRequest or ReactToDownstreamRequest includes them, until no
// new partitions are added.
package evaluator
