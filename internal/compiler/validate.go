package compiler

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/assetsched/internal/asset"
	"github.com/roach88/assetsched/internal/condition"
	"github.com/roach88/assetsched/internal/cron"
	"github.com/roach88/assetsched/internal/policy"
	"github.com/roach88/assetsched/internal/runrequest"
)

// Definition error codes (E100-E199).
const (
	ErrSyntax = "E100" // definitions file does not parse

	// Asset errors (E101-E119)
	ErrNoAssets           = "E101" // nothing declared
	ErrInvalidKey         = "E102" // malformed asset key
	ErrDuplicateAsset     = "E103" // asset declared twice
	ErrUnknownDep         = "E104" // dependency on an undeclared asset
	ErrInvalidMapping     = "E105" // unknown partition mapping
	ErrInvalidPartitions  = "E106" // bad static or time window partitions
	ErrInvalidCondition   = "E107" // condition does not decode
	ErrConditionAndPolicy = "E108" // both condition and policy declared
	ErrUnknownPolicy      = "E109" // policy name not registered
	ErrReservedTag        = "E110" // tag uses the reserved prefix
	ErrGraph              = "E111" // graph construction failed, e.g. a cycle

	// Policy errors (E120-E129)
	ErrInvalidPolicy   = "E120" // bad cron policy
	ErrDuplicatePolicy = "E121" // policy declared twice or shadowing a built-in
)

// ValidationError is one problem found in definitions.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Source  string `json:"source,omitempty"`
}

func (e ValidationError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("[%s] %s: %s: %s", e.Code, e.Source, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors is every problem found in one pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d definition errors:\n  %s", len(e), strings.Join(msgs, "\n  "))
}

// Validate checks defs against registry, which supplies the policy names
// available besides those defs declares. It returns all errors found.
func Validate(defs *Definitions, registry *policy.Registry) []ValidationError {
	var errs []ValidationError

	if len(defs.Assets) == 0 {
		errs = append(errs, ValidationError{
			Field:   "assets",
			Message: "at least one asset is required",
			Code:    ErrNoAssets,
		})
	}

	known := make(map[string]bool)
	if registry != nil {
		for _, name := range registry.Names() {
			known[name] = true
		}
	}
	for _, name := range sortedNames(defs.Policies) {
		p := defs.Policies[name]
		field := "policies." + name
		if known[name] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("policy %q is already registered", name),
				Code:    ErrDuplicatePolicy,
			})
			continue
		}
		if _, err := cron.Default.Parse(p.Cron, p.Timezone); err != nil {
			errs = append(errs, ValidationError{Field: field + ".cron", Message: err.Error(), Code: ErrInvalidPolicy})
		}
		known[name] = true
	}

	declared := make(map[string]bool, len(defs.Assets))
	for _, a := range defs.Assets {
		declared[a.Key] = true
	}

	seen := make(map[string]bool, len(defs.Assets))
	for i, a := range defs.Assets {
		field := fmt.Sprintf("assets[%d]", i)
		if a.Key != "" {
			field = fmt.Sprintf("assets[%s]", a.Key)
		}
		add := func(sub, code, msg string) {
			errs = append(errs, ValidationError{Field: field + sub, Message: msg, Code: code, Source: a.Source.String()})
		}

		if _, err := asset.ParseKey(a.Key); err != nil {
			add(".key", ErrInvalidKey, err.Error())
		}
		if seen[a.Key] {
			add(".key", ErrDuplicateAsset, fmt.Sprintf("asset %q declared more than once", a.Key))
		}
		seen[a.Key] = true

		for j, d := range a.Deps {
			sub := fmt.Sprintf(".deps[%d]", j)
			if !declared[d.Key] {
				add(sub, ErrUnknownDep, fmt.Sprintf("unknown asset %q", d.Key))
			}
			if d.Mapping != "" && !asset.MappingKind(d.Mapping).Valid() {
				add(sub+".mapping", ErrInvalidMapping,
					fmt.Sprintf("unknown mapping %q, must be identity, all or last", d.Mapping))
			}
		}

		if a.Partitions != nil {
			if _, err := buildPartitions(a.Partitions); err != nil {
				add(".partitions", ErrInvalidPartitions, err.Error())
			}
		}

		if a.Condition != nil {
			if _, err := condition.Decode(a.Condition); err != nil {
				add(".condition", ErrInvalidCondition, err.Error())
			}
			if a.Policy != "" {
				add(".policy", ErrConditionAndPolicy, "declare either a condition or a policy, not both")
			}
		}
		if a.Policy != "" && !known[a.Policy] {
			add(".policy", ErrUnknownPolicy, fmt.Sprintf("unknown policy %q", a.Policy))
		}

		if err := runrequest.ValidateTags(a.Tags); err != nil {
			add(".tags", ErrReservedTag, err.Error())
		}
	}

	return errs
}

func buildPartitions(def *PartitionsDef) (asset.PartitionsDef, error) {
	switch {
	case def.TimeWindow != nil && len(def.Static) > 0:
		return nil, fmt.Errorf("declare either static or time_window, not both")
	case len(def.Static) > 0:
		return asset.NewStaticPartitions(def.Static)
	case def.TimeWindow != nil:
		tw := def.TimeWindow
		start, err := parseStart(tw.Start)
		if err != nil {
			return nil, err
		}
		return asset.NewTimeWindowPartitions(tw.Cron, tw.Timezone, start, tw.Format)
	}
	return nil, fmt.Errorf("declare static or time_window")
}

func parseStart(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("time_window.start is required")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("time_window.start %q: want RFC 3339 or YYYY-MM-DD", s)
	}
	return t, nil
}
