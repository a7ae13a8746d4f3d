package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/assetsched/internal/condition"
	"github.com/roach88/assetsched/internal/store"
)

// Scenario is a scripted run of the tick loop.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Definitions holds inline definitions in YAML form.
	Definitions string `yaml:"definitions,omitempty"`
	// DefinitionFiles lists definitions files or directories to load.
	DefinitionFiles []string `yaml:"definition_files,omitempty"`

	// Start is the RFC 3339 starting time of the clock. Empty means
	// 2024-01-01T00:00:00Z.
	Start string `yaml:"start,omitempty"`

	DefaultCondition any               `yaml:"default_condition,omitempty"`
	RunTags          map[string]string `yaml:"run_tags,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one action of a scenario. Exactly one field is set.
type Step struct {
	Advance      string     `yaml:"advance,omitempty"`
	Materialize  *EventStep `yaml:"materialize,omitempty"`
	Observe      *EventStep `yaml:"observe,omitempty"`
	Tick         bool       `yaml:"tick,omitempty"`
	CompleteRuns string     `yaml:"complete_runs,omitempty"`
}

// EventStep records events for an asset. No partitions means the asset is
// unpartitioned.
type EventStep struct {
	Asset       string   `yaml:"asset"`
	Partitions  []string `yaml:"partitions,omitempty"`
	DataVersion string   `yaml:"data_version,omitempty"`
}

// Assertion checks one tick of the trace.
type Assertion struct {
	Type string `yaml:"type"`
	// Tick is the tick checked, counted from 1.
	Tick int `yaml:"tick"`
	// Partitions in string form, used by requested and not_requested.
	Partitions []string `yaml:"partitions,omitempty"`
	// Count is used by run_count.
	Count int `yaml:"count,omitempty"`
	// Tags is used by run_tags.
	Tags map[string]string `yaml:"tags,omitempty"`
}

// Assertion types.
const (
	AssertRequested    = "requested"
	AssertNotRequested = "not_requested"
	AssertRunCount     = "run_count"
	AssertRunTags      = "run_tags"
)

// LoadScenario reads a scenario file. Unknown fields are rejected and
// relative definition files resolve against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	base := filepath.Dir(path)
	for i, p := range s.DefinitionFiles {
		if !filepath.IsAbs(p) {
			s.DefinitionFiles[i] = filepath.Join(base, p)
		}
	}
	return s, nil
}

// ParseScenario decodes and validates a scenario document.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Definitions == "" && len(s.DefinitionFiles) == 0 {
		return fmt.Errorf("definitions or definition_files is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.Start != "" {
		if _, err := time.Parse(time.RFC3339, s.Start); err != nil {
			return fmt.Errorf("start: %w", err)
		}
	}
	if s.DefaultCondition != nil {
		if _, err := condition.Decode(s.DefaultCondition); err != nil {
			return fmt.Errorf("default_condition: %w", err)
		}
	}

	ticks := 0
	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		if step.Tick {
			ticks++
		}
	}

	for i, a := range s.Assertions {
		if a.Tick < 1 || a.Tick > ticks {
			return fmt.Errorf("assertions[%d]: tick %d out of range (scenario runs %d ticks)", i, a.Tick, ticks)
		}
		switch a.Type {
		case AssertRequested, AssertNotRequested:
			if len(a.Partitions) == 0 {
				return fmt.Errorf("assertions[%d]: %s requires partitions", i, a.Type)
			}
		case AssertRunCount:
			if a.Count < 0 {
				return fmt.Errorf("assertions[%d]: count must not be negative", i)
			}
		case AssertRunTags:
			if len(a.Tags) == 0 {
				return fmt.Errorf("assertions[%d]: run_tags requires tags", i)
			}
		default:
			return fmt.Errorf("assertions[%d]: unknown type %q", i, a.Type)
		}
	}
	return nil
}

func validateStep(step Step) error {
	set := 0
	if step.Advance != "" {
		set++
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return fmt.Errorf("advance: %w", err)
		}
		if d < 0 {
			return fmt.Errorf("advance: duration must not be negative")
		}
	}
	if step.Materialize != nil {
		set++
		if step.Materialize.Asset == "" {
			return fmt.Errorf("materialize: asset is required")
		}
	}
	if step.Observe != nil {
		set++
		if step.Observe.Asset == "" {
			return fmt.Errorf("observe: asset is required")
		}
		if step.Observe.DataVersion == "" {
			return fmt.Errorf("observe: data_version is required")
		}
	}
	if step.Tick {
		set++
	}
	if step.CompleteRuns != "" {
		set++
		status := store.RunStatus(step.CompleteRuns)
		if !status.Valid() || status == store.RunQueued {
			return fmt.Errorf("complete_runs: invalid status %q", step.CompleteRuns)
		}
	}
	if set != 1 {
		return fmt.Errorf("exactly one action is required, got %d", set)
	}
	return nil
}
