package condition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestIDsAreStable(t *testing.T) {
	a := Eager()
	b := Eager()

	var idsA, idsB []string
	Visit(a, func(id string, _ Condition, _ int) { idsA = append(idsA, id) })
	Visit(b, func(id string, _ Condition, _ int) { idsB = append(idsB, id) })

	assert.Equal(t, idsA, idsB)
	assert.Len(t, idsA, 8, "and, or, missing, parent_updated, not, any_parent_missing, not, in_progress")
}

func TestIDsAreUnique(t *testing.T) {
	// Identical subtrees at different positions get different ids.
	c := And{Operands: []Condition{Not{Operand: Missing{}}, Not{Operand: Missing{}}}}

	seen := make(map[string]bool)
	Visit(c, func(id string, _ Condition, _ int) {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	})
	assert.Len(t, seen, 5)
}

func TestEditingResetsOnlyChangedNodes(t *testing.T) {
	before := And{Operands: []Condition{Missing{}, Since{Trigger: CronTickPassed{Cron: "0 0 * * *"}, Reset: NewlyRequested{}}}}
	after := And{Operands: []Condition{Missing{}, Since{Trigger: CronTickPassed{Cron: "0 6 * * *"}, Reset: NewlyRequested{}}}}

	rootBefore := RootID(before)
	rootAfter := RootID(after)
	assert.Equal(t, rootBefore, rootAfter, "root description is unchanged")

	sinceBefore := ID(rootBefore, 1, before.Operands[1])
	sinceAfter := ID(rootAfter, 1, after.Operands[1])
	assert.Equal(t, sinceBefore, sinceAfter, "since node keeps its id")

	trigBefore := ID(sinceBefore, 0, before.Operands[1].Children()[0])
	trigAfter := ID(sinceAfter, 0, after.Operands[1].Children()[0])
	assert.NotEqual(t, trigBefore, trigAfter, "edited trigger gets a new id")
}

func TestString(t *testing.T) {
	assert.Equal(t,
		"((missing | parent_updated) & ~any_parent_missing & ~in_progress)",
		String(Eager()))
	assert.Equal(t,
		"since(cron_tick_passed(0 0 * * *, UTC), newly_requested)",
		String(Since{Trigger: CronTickPassed{Cron: "0 0 * * *"}, Reset: NewlyRequested{}}))
	assert.Equal(t, "~data_older_than(6h0m0s)", String(Not{Operand: DataOlderThan{Lag: 6 * time.Hour}}))
}

func TestCronTicks(t *testing.T) {
	c := Or{Operands: []Condition{
		OnCron("0 0 * * *", "UTC"),
		CronTickPassed{Cron: "0 6 * * *", Timezone: "Europe/Paris"},
	}}
	assert.Equal(t, []CronTickPassed{
		{Cron: "0 0 * * *", Timezone: "UTC"},
		{Cron: "0 6 * * *", Timezone: "Europe/Paris"},
	}, CronTicks(c))
	assert.Empty(t, CronTicks(Missing{}))
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want Condition
	}{
		{"leaf", `missing`, Missing{}},
		{"builder", `eager`, Eager()},
		{"on_missing", `on_missing`, OnMissing()},
		{"not", `{not: in_progress}`, Not{Operand: InProgress{}}},
		{
			name: "and",
			yaml: `{and: [missing, {not: any_parent_missing}]}`,
			want: And{Operands: []Condition{Missing{}, Not{Operand: AnyParentMissing{}}}},
		},
		{
			name: "since",
			yaml: `{since: {trigger: {cron_tick_passed: {cron: "0 0 * * *", timezone: UTC}}, reset: newly_requested}}`,
			want: Since{Trigger: CronTickPassed{Cron: "0 0 * * *", Timezone: "UTC"}, Reset: NewlyRequested{}},
		},
		{"cron shorthand", `{cron_tick_passed: "@daily"}`, CronTickPassed{Cron: "@daily"}},
		{"lookback", `{in_latest_time_window: {lookback: 3}}`, InLatestTimeWindow{Lookback: 3}},
		{"data lag", `{data_older_than: {lag: 6h}}`, DataOlderThan{Lag: 6 * time.Hour}},
		{"data lag shorthand", `{data_older_than: 90m}`, DataOlderThan{Lag: 90 * time.Minute}},
		{"on_cron", `{on_cron: {cron: "0 * * * *"}}`, OnCron("0 * * * *", "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw any
			require.NoError(t, yaml.Unmarshal([]byte(tt.yaml), &raw))
			got, err := Decode(raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown leaf", `sometimes`, "unknown condition"},
		{"two keys", `{and: [missing], or: [missing]}`, "exactly one key"},
		{"empty and", `{and: []}`, "at least one operand"},
		{"and not a list", `{and: missing}`, "expected a list"},
		{"since missing reset", `{since: {trigger: missing}}`, "reset"},
		{"cron without expression", `{cron_tick_passed: {timezone: UTC}}`, "cron is required"},
		{"fractional lookback", `{in_latest_time_window: {lookback: 1.5}}`, "whole number"},
		{"bad lag", `{data_older_than: {lag: soon}}`, "lag"},
		{"negative lag", `{data_older_than: -1h}`, "must not be negative"},
		{"lag not a string", `{data_older_than: {lag: 3}}`, "duration string"},
		{"number", `42`, "unsupported"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw any
			require.NoError(t, yaml.Unmarshal([]byte(tt.yaml), &raw))
			_, err := Decode(raw)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestEncodeDecode(t *testing.T) {
	for _, c := range []Condition{Eager(), OnCron("0 0 * * *", "UTC"), OnMissing(), And{Operands: []Condition{Missing{}, DataOlderThan{Lag: 6 * time.Hour}}}} {
		got, err := Decode(Encode(c))
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
}
