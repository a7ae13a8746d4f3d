// Package condition defines automation conditions: a closed expression tree
// of leaf predicates over asset partitions joined by And, Or, Not and Since.
//
// The package holds data only. Evaluation lives in internal/evaluator, which
// type-switches over the variants declared here. Adding a variant means
// adding a case there.
//
// Every node has a stable id derived from its parent's id, its position
// among its siblings and its own description (see ID). Evaluation state is
// keyed by these ids, so editing part of a tree resets the state of the
// edited nodes and their descendants while untouched siblings keep theirs.
package condition
