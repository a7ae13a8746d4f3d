package condition

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/assetsched/internal/ir"
)

// Kind names a condition variant. It is also the tag used by Decode.
type Kind string

const (
	KindMissing            Kind = "missing"
	KindInProgress         Kind = "in_progress"
	KindOutdated           Kind = "outdated"
	KindParentUpdated      Kind = "parent_updated"
	KindAnyParentRequested Kind = "any_parent_requested"
	KindAnyParentMissing   Kind = "any_parent_missing"
	KindCronTickPassed     Kind = "cron_tick_passed"
	KindInLatestTimeWindow Kind = "in_latest_time_window"
	KindNewlyRequested     Kind = "newly_requested"
	KindNewlyMaterialized  Kind = "newly_materialized"
	KindDataOlderThan      Kind = "data_older_than"
	KindAnd                Kind = "and"
	KindOr                 Kind = "or"
	KindNot                Kind = "not"
	KindSince              Kind = "since"
)

// Condition is a node of an automation condition tree. The set of
// implementations is closed.
type Condition interface {
	Kind() Kind
	// Children returns operands in evaluation order.
	Children() []Condition
	// Describe is a short human label. It feeds node ids, so two nodes with
	// different semantics must never share a description.
	Describe() string
	sealed()
}

// Missing is true for partitions that have never been materialized.
type Missing struct{}

// InProgress is true for partitions targeted by a queued or started run.
type InProgress struct{}

// Outdated is true for partitions that are stale relative to their parents.
type Outdated struct{}

// ParentUpdated is true when any parent partition was materialized more
// recently than the partition itself.
type ParentUpdated struct{}

// AnyParentRequested is true when a parent partition was requested earlier in the same tick.
type AnyParentRequested struct{}

// AnyParentMissing is true when any parent partition has never been materialized.
type AnyParentMissing struct{}

// CronTickPassed is true for every candidate when a tick of Cron fell in
// (previous evaluation time, now].
type CronTickPassed struct {
	Cron     string
	Timezone string
}

// InLatestTimeWindow is true for the latest Lookback valid partitions.
// Unpartitioned assets always satisfy it. A Lookback below 1 means 1.
type InLatestTimeWindow struct {
	Lookback int
}

// NewlyRequested is true for partitions requested by the previous tick.
type NewlyRequested struct{}

// NewlyMaterialized is true for partitions materialized since the previous tick.
type NewlyMaterialized struct{}

// DataOlderThan is true for partitions whose data time lags the evaluation
// time by more than Lag. A partition without a data time has no data and
// also satisfies it.
type DataOlderThan struct {
	Lag time.Duration
}

// And is the intersection of its operands.
type And struct {
	Operands []Condition
}

// Or is the union of its operands.
type Or struct {
	Operands []Condition
}

// Not is the complement of Operand within the candidate partitions.
type Not struct {
	Operand Condition
}

// Since latches Trigger until Reset: its true set is the previous true set
// minus Reset, plus Trigger. A partition true for both stays true.
type Since struct {
	Trigger Condition
	Reset   Condition
}

func (Missing) Kind() Kind            { return KindMissing }
func (InProgress) Kind() Kind         { return KindInProgress }
func (Outdated) Kind() Kind           { return KindOutdated }
func (ParentUpdated) Kind() Kind      { return KindParentUpdated }
func (AnyParentRequested) Kind() Kind { return KindAnyParentRequested }
func (AnyParentMissing) Kind() Kind   { return KindAnyParentMissing }
func (CronTickPassed) Kind() Kind     { return KindCronTickPassed }
func (InLatestTimeWindow) Kind() Kind { return KindInLatestTimeWindow }
func (NewlyRequested) Kind() Kind     { return KindNewlyRequested }
func (NewlyMaterialized) Kind() Kind  { return KindNewlyMaterialized }
func (DataOlderThan) Kind() Kind      { return KindDataOlderThan }
func (And) Kind() Kind                { return KindAnd }
func (Or) Kind() Kind                 { return KindOr }
func (Not) Kind() Kind                { return KindNot }
func (Since) Kind() Kind              { return KindSince }

func (Missing) Children() []Condition            { return nil }
func (InProgress) Children() []Condition         { return nil }
func (Outdated) Children() []Condition           { return nil }
func (ParentUpdated) Children() []Condition      { return nil }
func (AnyParentRequested) Children() []Condition { return nil }
func (AnyParentMissing) Children() []Condition   { return nil }
func (CronTickPassed) Children() []Condition     { return nil }
func (InLatestTimeWindow) Children() []Condition { return nil }
func (NewlyRequested) Children() []Condition     { return nil }
func (NewlyMaterialized) Children() []Condition  { return nil }
func (DataOlderThan) Children() []Condition      { return nil }
func (c And) Children() []Condition              { return c.Operands }
func (c Or) Children() []Condition               { return c.Operands }
func (c Not) Children() []Condition              { return []Condition{c.Operand} }
func (c Since) Children() []Condition            { return []Condition{c.Trigger, c.Reset} }

func (Missing) Describe() string            { return "missing" }
func (InProgress) Describe() string         { return "in_progress" }
func (Outdated) Describe() string           { return "outdated" }
func (ParentUpdated) Describe() string      { return "parent_updated" }
func (AnyParentRequested) Describe() string { return "any_parent_requested" }
func (AnyParentMissing) Describe() string   { return "any_parent_missing" }
func (NewlyRequested) Describe() string     { return "newly_requested" }
func (NewlyMaterialized) Describe() string  { return "newly_materialized" }
func (And) Describe() string                { return "and" }
func (Or) Describe() string                 { return "or" }
func (Not) Describe() string                { return "not" }
func (Since) Describe() string              { return "since" }

func (c CronTickPassed) Describe() string {
	tz := c.Timezone
	if tz == "" {
		tz = "UTC"
	}
	return fmt.Sprintf("cron_tick_passed(%s, %s)", c.Cron, tz)
}

func (c InLatestTimeWindow) Describe() string {
	return fmt.Sprintf("in_latest_time_window(%d)", c.LookbackOrDefault())
}

func (c DataOlderThan) Describe() string {
	return fmt.Sprintf("data_older_than(%s)", c.Lag)
}

// LookbackOrDefault returns Lookback clamped to at least 1.
func (c InLatestTimeWindow) LookbackOrDefault() int {
	return max(c.Lookback, 1)
}

func (Missing) sealed()            {}
func (InProgress) sealed()         {}
func (Outdated) sealed()           {}
func (ParentUpdated) sealed()      {}
func (AnyParentRequested) sealed() {}
func (AnyParentMissing) sealed()   {}
func (CronTickPassed) sealed()     {}
func (InLatestTimeWindow) sealed() {}
func (NewlyRequested) sealed()     {}
func (NewlyMaterialized) sealed()  {}
func (DataOlderThan) sealed()      {}
func (And) sealed()                {}
func (Or) sealed()                 {}
func (Not) sealed()                {}
func (Since) sealed()              {}

// RootID is the id of the root node of a tree.
func RootID(c Condition) string {
	return ID("", 0, c)
}

// ID returns the id of c as the index-th child of the node parentID.
func ID(parentID string, index int, c Condition) string {
	return ir.ConditionNodeID(parentID, index, c.Describe())
}

// Fingerprint identifies a whole tree. Unlike node ids it changes when any
// node of the tree is edited.
func Fingerprint(c Condition) string {
	return ir.ConditionNodeID("", 0, String(c))
}

// Visit calls fn for every node in depth-first pre-order with its id and depth.
func Visit(c Condition, fn func(id string, c Condition, depth int)) {
	var walk func(string, Condition, int)
	walk = func(id string, c Condition, depth int) {
		fn(id, c, depth)
		for i, child := range c.Children() {
			walk(ID(id, i, child), child, depth+1)
		}
	}
	walk(RootID(c), c, 0)
}

// CronTicks returns every CronTickPassed node of the tree.
func CronTicks(c Condition) []CronTickPassed {
	var out []CronTickPassed
	Visit(c, func(_ string, n Condition, _ int) {
		if ct, ok := n.(CronTickPassed); ok {
			out = append(out, ct)
		}
	})
	return out
}

// String renders c as a compact expression, for logs and reports.
func String(c Condition) string {
	var b strings.Builder
	writeExpr(&b, c)
	return b.String()
}

func writeExpr(b *strings.Builder, c Condition) {
	switch n := c.(type) {
	case And:
		writeJoined(b, n.Operands, " & ")
	case Or:
		writeJoined(b, n.Operands, " | ")
	case Not:
		b.WriteString("~")
		writeExpr(b, n.Operand)
	case Since:
		b.WriteString("since(")
		writeExpr(b, n.Trigger)
		b.WriteString(", ")
		writeExpr(b, n.Reset)
		b.WriteString(")")
	default:
		b.WriteString(c.Describe())
	}
}

func writeJoined(b *strings.Builder, ops []Condition, sep string) {
	b.WriteString("(")
	for i, op := range ops {
		if i > 0 {
			b.WriteString(sep)
		}
		writeExpr(b, op)
	}
	b.WriteString(")")
}
