package compiler

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Definitions is the decoded, not yet validated content of one or more
// definitions files.
type Definitions struct {
	Assets   []AssetDef         `yaml:"assets" json:"assets"`
	Policies map[string]CronDef `yaml:"policies,omitempty" json:"policies,omitempty"`
}

// AssetDef declares one asset.
type AssetDef struct {
	Key         string            `yaml:"key" json:"key"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Deps        []DepDef          `yaml:"deps,omitempty" json:"deps,omitempty"`
	Partitions  *PartitionsDef    `yaml:"partitions,omitempty" json:"partitions,omitempty"`
	Condition   any               `yaml:"condition,omitempty" json:"condition,omitempty"`
	Policy      string            `yaml:"policy,omitempty" json:"policy,omitempty"`
	Tags        map[string]string `yaml:"tags,omitempty" json:"tags,omitempty"`

	// Source locates the declaration for error messages.
	Source Source `yaml:"-" json:"-"`
}

// DepDef is a dependency on a parent asset. In YAML a bare string is a
// dependency with the default mapping.
type DepDef struct {
	Key     string `yaml:"key" json:"key"`
	Mapping string `yaml:"mapping,omitempty" json:"mapping,omitempty"`
}

func (d *DepDef) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		d.Key = n.Value
		return nil
	}
	type plain DepDef
	var p plain
	if err := n.Decode(&p); err != nil {
		return err
	}
	*d = DepDef(p)
	return nil
}

// PartitionsDef declares exactly one of Static or TimeWindow.
type PartitionsDef struct {
	Static     []string       `yaml:"static,omitempty" json:"static,omitempty"`
	TimeWindow *TimeWindowDef `yaml:"time_window,omitempty" json:"time_window,omitempty"`
}

// TimeWindowDef declares cron-spaced partitions starting at Start, an
// RFC 3339 timestamp or a YYYY-MM-DD date.
type TimeWindowDef struct {
	Cron     string `yaml:"cron" json:"cron"`
	Timezone string `yaml:"timezone,omitempty" json:"timezone,omitempty"`
	Start    string `yaml:"start" json:"start"`
	Format   string `yaml:"format,omitempty" json:"format,omitempty"`
}

// CronDef declares a named cron scheduling policy.
type CronDef struct {
	Cron     string `yaml:"cron" json:"cron"`
	Timezone string `yaml:"timezone,omitempty" json:"timezone,omitempty"`
}

// Source is a position in a definitions file.
type Source struct {
	File   string
	Line   int
	Column int
}

func (s Source) String() string {
	switch {
	case s.File == "" && s.Line == 0:
		return ""
	case s.Line == 0:
		return s.File
	}
	return fmt.Sprintf("%s:%d:%d", s.File, s.Line, s.Column)
}

// Merge appends other's assets and policies to d. A policy name declared
// twice is reported and the first declaration is kept.
func (d *Definitions) Merge(other *Definitions) []ValidationError {
	var errs []ValidationError
	d.Assets = append(d.Assets, other.Assets...)
	for name, p := range other.Policies {
		if d.Policies == nil {
			d.Policies = make(map[string]CronDef)
		}
		if _, dup := d.Policies[name]; dup {
			errs = append(errs, ValidationError{
				Field:   "policies." + name,
				Message: fmt.Sprintf("policy %q declared more than once", name),
				Code:    ErrDuplicatePolicy,
			})
			continue
		}
		d.Policies[name] = p
	}
	return errs
}
