package harness

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Tick     int
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "assertion failed: %s on tick %d\n", e.Type, e.Tick)
	fmt.Fprintf(&buf, "  expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  actual: %s", e.Actual)
	return buf.String()
}

func checkAssertion(r *Result, a Assertion) error {
	tick, ok := r.Tick(a.Tick)
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			Tick:     a.Tick,
			Expected: fmt.Sprintf("tick %d to have run", a.Tick),
			Actual:   fmt.Sprintf("%d ticks ran", len(r.Ticks)),
		}
	}

	switch a.Type {
	case AssertRequested:
		return assertRequested(tick, a)
	case AssertNotRequested:
		return assertNotRequested(tick, a)
	case AssertRunCount:
		return assertRunCount(tick, a)
	case AssertRunTags:
		return assertRunTags(tick, a)
	}
	return fmt.Errorf("unknown assertion type: %s", a.Type)
}

func assertRequested(tick TickTrace, a Assertion) error {
	var missing []string
	for _, p := range a.Partitions {
		if !slices.Contains(tick.Requested, p) {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Tick:     a.Tick,
		Expected: "requested " + formatPartitions(a.Partitions),
		Actual:   "requested " + formatPartitions(tick.Requested) + ", missing " + formatPartitions(missing),
	}
}

func assertNotRequested(tick TickTrace, a Assertion) error {
	var found []string
	for _, p := range a.Partitions {
		if slices.Contains(tick.Requested, p) {
			found = append(found, p)
		}
	}
	if len(found) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Tick:     a.Tick,
		Expected: "none of " + formatPartitions(a.Partitions) + " requested",
		Actual:   "requested " + formatPartitions(found),
	}
}

func assertRunCount(tick TickTrace, a Assertion) error {
	if len(tick.Runs) == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Tick:     a.Tick,
		Expected: fmt.Sprintf("%d runs", a.Count),
		Actual:   fmt.Sprintf("%d runs", len(tick.Runs)),
	}
}

func assertRunTags(tick TickTrace, a Assertion) error {
	if len(tick.Runs) == 0 {
		return &AssertionError{
			Type:     a.Type,
			Tick:     a.Tick,
			Expected: fmt.Sprintf("runs tagged %v", a.Tags),
			Actual:   "no runs",
		}
	}
	for _, run := range tick.Runs {
		for _, k := range slices.Sorted(maps.Keys(a.Tags)) {
			if got, ok := run.Tags[k]; !ok || got != a.Tags[k] {
				return &AssertionError{
					Type:     a.Type,
					Tick:     a.Tick,
					Expected: fmt.Sprintf("%s=%s on run %s", k, a.Tags[k], formatPartitions(run.Partitions)),
					Actual:   fmt.Sprintf("tags %v", run.Tags),
				}
			}
		}
	}
	return nil
}
