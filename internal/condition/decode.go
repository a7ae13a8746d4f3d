package condition

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

var leaves = map[string]Condition{
	string(KindMissing):            Missing{},
	string(KindInProgress):         InProgress{},
	string(KindOutdated):           Outdated{},
	string(KindParentUpdated):      ParentUpdated{},
	string(KindAnyParentRequested): AnyParentRequested{},
	string(KindAnyParentMissing):   AnyParentMissing{},
	string(KindNewlyRequested):     NewlyRequested{},
	string(KindNewlyMaterialized):  NewlyMaterialized{},
	string(KindInLatestTimeWindow): InLatestTimeWindow{Lookback: 1},
}

// Decode builds a condition from decoded YAML, JSON or CUE data.
//
// A leaf is a bare string ("missing"). A combinator or parameterized leaf is
// a map with exactly one key naming the variant:
//
//	and: [missing, {not: in_progress}]
//	since: {trigger: {cron_tick_passed: {cron: "0 0 * * *"}}, reset: newly_requested}
//	in_latest_time_window: {lookback: 3}
//	data_older_than: {lag: 6h}
//	on_cron: {cron: "0 * * * *", timezone: UTC}
//
// The builders eager, on_missing and on_cron are accepted as names.
func Decode(v any) (Condition, error) {
	switch val := v.(type) {
	case string:
		return decodeName(val)
	case map[string]any:
		if len(val) != 1 {
			keys := make([]string, 0, len(val))
			for k := range val {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			return nil, fmt.Errorf("condition: expected exactly one key, got [%s]", strings.Join(keys, ", "))
		}
		for k, arg := range val {
			c, err := decodeTagged(k, arg)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			return c, nil
		}
	case nil:
		return nil, fmt.Errorf("condition: empty")
	}
	return nil, fmt.Errorf("condition: unsupported value of type %T", v)
}

func decodeName(name string) (Condition, error) {
	switch name {
	case "eager":
		return Eager(), nil
	case "on_missing":
		return OnMissing(), nil
	}
	c, ok := leaves[name]
	if !ok {
		return nil, fmt.Errorf("condition: unknown condition %q", name)
	}
	return c, nil
}

func decodeTagged(tag string, arg any) (Condition, error) {
	switch Kind(tag) {
	case KindAnd, KindOr:
		ops, err := decodeList(arg)
		if err != nil {
			return nil, err
		}
		if Kind(tag) == KindAnd {
			return And{Operands: ops}, nil
		}
		return Or{Operands: ops}, nil
	case KindNot:
		op, err := Decode(arg)
		if err != nil {
			return nil, err
		}
		return Not{Operand: op}, nil
	case KindSince:
		fields, err := asMap(arg)
		if err != nil {
			return nil, err
		}
		trigger, err := Decode(fields["trigger"])
		if err != nil {
			return nil, fmt.Errorf("trigger: %w", err)
		}
		reset, err := Decode(fields["reset"])
		if err != nil {
			return nil, fmt.Errorf("reset: %w", err)
		}
		return Since{Trigger: trigger, Reset: reset}, nil
	case KindCronTickPassed:
		expr, tz, err := decodeCron(arg)
		if err != nil {
			return nil, err
		}
		return CronTickPassed{Cron: expr, Timezone: tz}, nil
	case KindInLatestTimeWindow:
		fields, err := asMap(arg)
		if err != nil {
			return nil, err
		}
		lookback, err := asInt(fields["lookback"])
		if err != nil {
			return nil, fmt.Errorf("lookback: %w", err)
		}
		return InLatestTimeWindow{Lookback: lookback}, nil
	case KindDataOlderThan:
		lag, err := decodeLag(arg)
		if err != nil {
			return nil, fmt.Errorf("lag: %w", err)
		}
		return DataOlderThan{Lag: lag}, nil
	}

	if tag == "on_cron" {
		expr, tz, err := decodeCron(arg)
		if err != nil {
			return nil, err
		}
		return OnCron(expr, tz), nil
	}
	return nil, fmt.Errorf("unknown condition")
}

func decodeList(arg any) ([]Condition, error) {
	items, ok := arg.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list, got %T", arg)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("expected at least one operand")
	}
	ops := make([]Condition, len(items))
	for i, item := range items {
		c, err := Decode(item)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		ops[i] = c
	}
	return ops, nil
}

func decodeCron(arg any) (expr, tz string, err error) {
	if s, ok := arg.(string); ok {
		return s, "", nil
	}
	fields, err := asMap(arg)
	if err != nil {
		return "", "", err
	}
	expr, _ = fields["cron"].(string)
	if expr == "" {
		return "", "", fmt.Errorf("cron is required")
	}
	if raw, ok := fields["timezone"]; ok {
		tz, ok = raw.(string)
		if !ok {
			return "", "", fmt.Errorf("timezone must be a string, got %T", raw)
		}
	}
	return expr, tz, nil
}

// decodeLag accepts a Go duration string, either bare or as {lag: ...}.
func decodeLag(arg any) (time.Duration, error) {
	if m, ok := arg.(map[string]any); ok {
		arg = m["lag"]
	}
	s, ok := arg.(string)
	if !ok {
		return 0, fmt.Errorf("expected a duration string, got %T", arg)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("must not be negative, got %s", s)
	}
	return d, nil
}

func asMap(arg any) (map[string]any, error) {
	m, ok := arg.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected a mapping, got %T", arg)
	}
	return m, nil
}

func asInt(v any) (int, error) {
	switch n := v.(type) {
	case nil:
		return 1, nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("must be a whole number, got %v", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("must be a number, got %T", v)
	}
}

// Encode is the inverse of Decode for trees built from variants. Builders
// are expanded into their variant trees.
func Encode(c Condition) any {
	switch n := c.(type) {
	case And:
		return map[string]any{string(KindAnd): encodeList(n.Operands)}
	case Or:
		return map[string]any{string(KindOr): encodeList(n.Operands)}
	case Not:
		return map[string]any{string(KindNot): Encode(n.Operand)}
	case Since:
		return map[string]any{string(KindSince): map[string]any{
			"trigger": Encode(n.Trigger),
			"reset":   Encode(n.Reset),
		}}
	case CronTickPassed:
		fields := map[string]any{"cron": n.Cron}
		if n.Timezone != "" {
			fields["timezone"] = n.Timezone
		}
		return map[string]any{string(KindCronTickPassed): fields}
	case InLatestTimeWindow:
		return map[string]any{string(KindInLatestTimeWindow): map[string]any{"lookback": n.LookbackOrDefault()}}
	case DataOlderThan:
		return map[string]any{string(KindDataOlderThan): map[string]any{"lag": n.Lag.String()}}
	default:
		return string(c.Kind())
	}
}

func encodeList(ops []Condition) []any {
	out := make([]any, len(ops))
	for i, op := range ops {
		out[i] = Encode(op)
	}
	return out
}
