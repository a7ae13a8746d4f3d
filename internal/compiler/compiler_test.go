package compiler

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/assetsched/internal/asset"
	"github.com/roach88/assetsched/internal/condition"
	"github.com/roach88/assetsched/internal/policy"
)

const yamlDefs = `
assets:
  - key: raw/events
    description: clickstream
    partitions:
      static: [eu, us]
    condition: on_missing
    tags:
      team: data
  - key: raw/users
    policy: hourly
  - key: marts/daily
    deps:
      - raw/events
      - key: raw/users
        mapping: all
    condition:
      and:
        - missing
        - not: in_progress
        - in_latest_time_window: {lookback: 2}
policies:
  hourly:
    cron: "0 * * * *"
    timezone: UTC
`

const cueDefs = `
assets: {
	"raw/events": {
		description: "clickstream"
		partitions: static: ["eu", "us"]
		condition: "on_missing"
		tags: team: "data"
	}
	"raw/users": {
		policy: "hourly"
	}
	"marts/daily": {
		deps: ["raw/events", {key: "raw/users", mapping: "all"}]
		condition: and: ["missing", {not: "in_progress"}, {in_latest_time_window: lookback: 2}]
	}
}
policies: hourly: {
	cron:     "0 * * * *"
	timezone: "UTC"
}
`

func TestParseYAML(t *testing.T) {
	defs, err := ParseYAML([]byte(yamlDefs), "defs.yaml")
	require.NoError(t, err)
	require.Len(t, defs.Assets, 3)

	events := defs.Assets[0]
	assert.Equal(t, "raw/events", events.Key)
	assert.Equal(t, []string{"eu", "us"}, events.Partitions.Static)
	assert.Equal(t, Source{File: "defs.yaml", Line: 3, Column: 5}, events.Source)

	daily := defs.Assets[2]
	assert.Equal(t, []DepDef{{Key: "raw/events"}, {Key: "raw/users", Mapping: "all"}}, daily.Deps)
	assert.Equal(t, CronDef{Cron: "0 * * * *", Timezone: "UTC"}, defs.Policies["hourly"])
}

func TestParseCUE_MatchesYAML(t *testing.T) {
	fromYAML, err := ParseYAML([]byte(yamlDefs), "defs.yaml")
	require.NoError(t, err)
	fromCUE, err := ParseCUE([]byte(cueDefs), "defs.cue")
	require.NoError(t, err)

	if diff := cmp.Diff(fromYAML, fromCUE, cmpopts.IgnoreFields(AssetDef{}, "Source")); diff != "" {
		t.Errorf("CUE and YAML definitions differ (-yaml +cue):\n%s", diff)
	}
	assert.Equal(t, "defs.cue", fromCUE.Assets[0].Source.File)
	assert.Positive(t, fromCUE.Assets[0].Source.Line)
}

func TestCompile(t *testing.T) {
	defs, err := ParseYAML([]byte(yamlDefs), "defs.yaml")
	require.NoError(t, err)

	project, err := Compile(defs, Options{})
	require.NoError(t, err)
	g := project.Graph

	events := asset.MustKey("raw", "events")
	users := asset.MustKey("raw", "users")
	daily := asset.MustKey("marts", "daily")
	assert.Equal(t, []asset.Key{daily, events, users}, g.Keys())

	keys, err := g.PartitionKeys(events, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"eu", "us"}, keys)

	spec, ok := g.Spec(events)
	require.True(t, ok)
	assert.Equal(t, "clickstream", spec.Description)
	assert.Equal(t, map[string]string{"team": "data"}, spec.Tags)
	assert.Equal(t, condition.String(condition.OnMissing()), condition.String(spec.Condition))

	spec, _ = g.Spec(users)
	assert.Equal(t, "hourly", spec.Policy)
	assert.Nil(t, spec.Condition)

	parents := g.Parents(daily)
	require.Len(t, parents, 2)
	assert.Equal(t, users, parents[1].Key)
	assert.Equal(t, asset.MappingAll, parents[1].Mapping)
	assert.Equal(t, "(missing & ~in_progress & in_latest_time_window(2))", condition.String(g.Condition(daily)))

	p, ok := project.Policies.Lookup("hourly")
	require.True(t, ok)
	assert.Equal(t, policy.Cron{Expression: "0 * * * *", Timezone: "UTC"}, p)
}

func TestCompile_CustomRegistry(t *testing.T) {
	registry := policy.NewRegistry()
	require.NoError(t, registry.Register("custom", policy.FollowUpstream{}))

	defs := &Definitions{Assets: []AssetDef{{Key: "a", Policy: "custom"}}}
	project, err := Compile(defs, Options{Policies: registry})
	require.NoError(t, err)
	assert.Same(t, registry, project.Policies)
}

func TestCompile_TimeWindowPartitions(t *testing.T) {
	defs := &Definitions{Assets: []AssetDef{{
		Key: "daily",
		Partitions: &PartitionsDef{TimeWindow: &TimeWindowDef{
			Cron:  "0 0 * * *",
			Start: "2024-01-01",
		}},
	}}}
	project, err := Compile(defs, Options{})
	require.NoError(t, err)

	keys, err := project.Graph.PartitionKeys("daily", time.Date(2024, 1, 4, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-03"}, keys)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		defs Definitions
		code string
	}{
		{"no assets", Definitions{}, ErrNoAssets},
		{"bad key", Definitions{Assets: []AssetDef{{Key: "a//b"}}}, ErrInvalidKey},
		{"duplicate", Definitions{Assets: []AssetDef{{Key: "a"}, {Key: "a"}}}, ErrDuplicateAsset},
		{"unknown dep", Definitions{Assets: []AssetDef{{Key: "a", Deps: []DepDef{{Key: "b"}}}}}, ErrUnknownDep},
		{"bad mapping", Definitions{Assets: []AssetDef{{Key: "a"}, {Key: "b", Deps: []DepDef{{Key: "a", Mapping: "some"}}}}}, ErrInvalidMapping},
		{"empty partitions", Definitions{Assets: []AssetDef{{Key: "a", Partitions: &PartitionsDef{}}}}, ErrInvalidPartitions},
		{"both partitions", Definitions{Assets: []AssetDef{{Key: "a", Partitions: &PartitionsDef{
			Static:     []string{"x"},
			TimeWindow: &TimeWindowDef{Cron: "0 0 * * *", Start: "2024-01-01"},
		}}}}, ErrInvalidPartitions},
		{"bad start", Definitions{Assets: []AssetDef{{Key: "a", Partitions: &PartitionsDef{
			TimeWindow: &TimeWindowDef{Cron: "0 0 * * *", Start: "yesterday"},
		}}}}, ErrInvalidPartitions},
		{"bad condition", Definitions{Assets: []AssetDef{{Key: "a", Condition: "whenever"}}}, ErrInvalidCondition},
		{"condition and policy", Definitions{Assets: []AssetDef{{Key: "a", Condition: "eager", Policy: "default"}}}, ErrConditionAndPolicy},
		{"unknown policy", Definitions{Assets: []AssetDef{{Key: "a", Policy: "nightly"}}}, ErrUnknownPolicy},
		{"reserved tag", Definitions{Assets: []AssetDef{{Key: "a", Tags: map[string]string{"assetsched/partition": "x"}}}}, ErrReservedTag},
		{"bad cron policy", Definitions{
			Assets:   []AssetDef{{Key: "a"}},
			Policies: map[string]CronDef{"nightly": {Cron: "every night"}},
		}, ErrInvalidPolicy},
		{"shadowed policy", Definitions{
			Assets:   []AssetDef{{Key: "a"}},
			Policies: map[string]CronDef{"default": {Cron: "0 0 * * *"}},
		}, ErrDuplicatePolicy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(&tt.defs, policy.NewRegistry())
			require.Len(t, errs, 1, "errors: %v", errs)
			assert.Equal(t, tt.code, errs[0].Code)
		})
	}
}

func TestValidate_CollectsAll(t *testing.T) {
	defs := &Definitions{Assets: []AssetDef{
		{Key: "a", Condition: "whenever", Source: Source{File: "defs.yaml", Line: 3, Column: 5}},
		{Key: "b", Policy: "nightly"},
	}}
	errs := Validate(defs, policy.NewRegistry())
	require.Len(t, errs, 2)
	assert.Equal(t, "defs.yaml:3:5", errs[0].Source)
	assert.Contains(t, errs[0].Error(), "[E107] defs.yaml:3:5: assets[a].condition")
	assert.Equal(t, ErrUnknownPolicy, errs[1].Code)
}

func TestCompile_Cycle(t *testing.T) {
	defs := &Definitions{Assets: []AssetDef{
		{Key: "a", Deps: []DepDef{{Key: "b"}}},
		{Key: "b", Deps: []DepDef{{Key: "a"}}},
	}}
	_, err := Compile(defs, Options{})

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	require.Len(t, verrs, 1)
	assert.Equal(t, ErrGraph, verrs[0].Code)
	assert.Contains(t, verrs[0].Message, "cycle")
}

func TestParse_SyntaxErrors(t *testing.T) {
	t.Run("yaml unknown field", func(t *testing.T) {
		_, err := ParseYAML([]byte("assets:\n  - key: a\n    when: later\n"), "defs.yaml")
		var ce *CompileError
		require.True(t, errors.As(err, &ce), "got %v", err)
		assert.Equal(t, ErrSyntax, ce.Code)
		assert.Equal(t, "defs.yaml", ce.Source.File)
	})

	t.Run("yaml malformed", func(t *testing.T) {
		_, err := ParseYAML([]byte("assets: [\n"), "defs.yaml")
		var ce *CompileError
		require.True(t, errors.As(err, &ce))
	})

	t.Run("empty yaml", func(t *testing.T) {
		defs, err := ParseYAML(nil, "empty.yaml")
		require.NoError(t, err)
		assert.Empty(t, defs.Assets)
	})

	t.Run("cue", func(t *testing.T) {
		_, err := ParseCUE([]byte("assets: {\n"), "defs.cue")
		var ce *CompileError
		require.True(t, errors.As(err, &ce), "got %v", err)
		assert.Equal(t, ErrSyntax, ce.Code)
		assert.Equal(t, "defs.cue", ce.Source.File)
	})

	t.Run("cue bad dep", func(t *testing.T) {
		_, err := ParseCUE([]byte(`assets: a: deps: [{mapping: "all"}]`), "defs.cue")
		var ce *CompileError
		require.True(t, errors.As(err, &ce), "got %v", err)
		assert.Equal(t, "deps", ce.Field)
	})
}

func TestLoad_Directory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(`
assets:
  - key: raw/events
policies:
  hourly: {cron: "0 * * * *"}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.cue"), []byte(`
assets: "marts/daily": {
	deps: ["raw/events"]
	policy: "hourly"
}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644))

	project, err := LoadProject(Options{}, dir)
	require.NoError(t, err)
	assert.Equal(t, []asset.Key{"marts/daily", "raw/events"}, project.Graph.Keys())
	assert.Equal(t, []asset.Key{"marts/daily"}, project.Graph.Children("raw/events"))
}

func TestLoad_DuplicatePolicyAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	body := []byte("assets:\n  - key: x\npolicies:\n  hourly: {cron: \"0 * * * *\"}\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), body, 0o644))
	body = []byte("assets:\n  - key: y\npolicies:\n  hourly: {cron: \"30 * * * *\"}\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), body, 0o644))

	_, err := Load(dir)
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, ErrDuplicatePolicy, verrs[0].Code)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorContains(t, err, "definitions path")

	_, err = Load(t.TempDir())
	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ErrNoAssets, ce.Code)

	path := filepath.Join(t.TempDir(), "defs.toml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))
	_, err = LoadFile(path)
	assert.ErrorContains(t, err, "unsupported extension")
}
