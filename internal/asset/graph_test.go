package asset

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deps(keys ...Key) []Dep {
	out := make([]Dep, len(keys))
	for i, k := range keys {
		out[i] = Dep{Key: k}
	}
	return out
}

func TestToposortIsStable(t *testing.T) {
	specs := []Spec{
		{Key: "d", Deps: deps("b", "c")},
		{Key: "c", Deps: deps("a")},
		{Key: "b", Deps: deps("a")},
		{Key: "a"},
		{Key: "z"},
	}

	g, err := NewGraph(specs)
	require.NoError(t, err)
	assert.Equal(t, []Key{"a", "b", "c", "d", "z"}, g.Toposort())

	// Declaration order does not matter.
	reversed := []Spec{specs[4], specs[3], specs[2], specs[1], specs[0]}
	g2, err := NewGraph(reversed)
	require.NoError(t, err)
	assert.Equal(t, g.Toposort(), g2.Toposort())
}

func TestToposortParentsFirst(t *testing.T) {
	g, err := NewGraph([]Spec{
		{Key: "a", Deps: deps("z")},
		{Key: "z"},
	})
	require.NoError(t, err)
	assert.Equal(t, []Key{"z", "a"}, g.Toposort())
	assert.True(t, g.Before("z", "a"))
	assert.True(t, g.IsRoot("z"))
	assert.False(t, g.IsRoot("a"))
}

func TestNewGraphErrors(t *testing.T) {
	tests := []struct {
		name  string
		specs []Spec
		code  string
	}{
		{
			name:  "duplicate key",
			specs: []Spec{{Key: "a"}, {Key: "a"}},
			code:  ErrDuplicateKey,
		},
		{
			name:  "unknown dependency",
			specs: []Spec{{Key: "a", Deps: deps("missing")}},
			code:  ErrUnknownDep,
		},
		{
			name:  "invalid mapping",
			specs: []Spec{{Key: "a"}, {Key: "b", Deps: []Dep{{Key: "a", Mapping: "sideways"}}}},
			code:  ErrInvalidMapping,
		},
		{
			name:  "invalid key",
			specs: []Spec{{Key: "a//b"}},
			code:  ErrInvalidKey,
		},
		{
			name:  "self loop",
			specs: []Spec{{Key: "a", Deps: deps("a")}},
			code:  ErrCycle,
		},
		{
			name: "three node cycle",
			specs: []Spec{
				{Key: "a", Deps: deps("c")},
				{Key: "b", Deps: deps("a")},
				{Key: "c", Deps: deps("b")},
			},
			code: ErrCycle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGraph(tt.specs)
			require.Error(t, err)
			var gerr *GraphError
			require.True(t, errors.As(err, &gerr))
			assert.Equal(t, tt.code, gerr.Code)
		})
	}
}

func TestCyclePathStartsAtSmallestKey(t *testing.T) {
	_, err := NewGraph([]Spec{
		{Key: "b", Deps: deps("a")},
		{Key: "a", Deps: deps("c")},
		{Key: "c", Deps: deps("b")},
	})
	var gerr *GraphError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, []Key{"a", "c", "b", "a"}, gerr.Path)
	assert.Contains(t, gerr.Error(), "a -> c -> b -> a")
}

func TestParentPartitionsDefaultMappings(t *testing.T) {
	daily, err := NewStaticPartitions([]string{"2024-01-01", "2024-01-02"})
	require.NoError(t, err)

	g, err := NewGraph([]Spec{
		{Key: "raw"},
		{Key: "daily", Partitions: daily, Deps: deps("raw")},
		{Key: "daily_clean", Partitions: daily, Deps: deps("daily")},
		{Key: "summary", Deps: deps("daily_clean")},
	})
	require.NoError(t, err)
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	got, err := g.ParentPartitions(Partition{Key: "daily", PartitionKey: "2024-01-01"}, now)
	require.NoError(t, err)
	assert.Equal(t, []Partition{{Key: "raw"}}, got, "unpartitioned parent maps to its single partition")

	got, err = g.ParentPartitions(Partition{Key: "daily_clean", PartitionKey: "2024-01-02"}, now)
	require.NoError(t, err)
	assert.Equal(t, []Partition{{Key: "daily", PartitionKey: "2024-01-02"}}, got, "identity between partitioned assets")

	got, err = g.ParentPartitions(Partition{Key: "summary"}, now)
	require.NoError(t, err)
	assert.Equal(t, []Partition{
		{Key: "daily_clean", PartitionKey: "2024-01-01"},
		{Key: "daily_clean", PartitionKey: "2024-01-02"},
	}, got, "unpartitioned child fans out to every parent partition")

	children, err := g.ChildPartitions(Partition{Key: "raw"}, "daily", now)
	require.NoError(t, err)
	assert.Len(t, children, 2)

	children, err = g.ChildPartitions(Partition{Key: "daily_clean", PartitionKey: "2024-01-01"}, "summary", now)
	require.NoError(t, err)
	assert.Equal(t, []Partition{{Key: "summary"}}, children)
}

func TestLastPartitionMapping(t *testing.T) {
	daily, err := NewStaticPartitions([]string{"1", "2", "3"})
	require.NoError(t, err)
	g, err := NewGraph([]Spec{
		{Key: "daily", Partitions: daily},
		{Key: "latest", Deps: []Dep{{Key: "daily", Mapping: MappingLast}}},
	})
	require.NoError(t, err)
	now := time.Now()

	got, err := g.ParentPartitions(Partition{Key: "latest"}, now)
	require.NoError(t, err)
	assert.Equal(t, []Partition{{Key: "daily", PartitionKey: "3"}}, got)

	children, err := g.ChildPartitions(Partition{Key: "daily", PartitionKey: "1"}, "latest", now)
	require.NoError(t, err)
	assert.Empty(t, children, "only the last parent partition feeds the child")
}

func TestComponents(t *testing.T) {
	g, err := NewGraph([]Spec{
		{Key: "a"},
		{Key: "b", Deps: deps("a")},
		{Key: "c"},
		{Key: "d", Deps: deps("c")},
		{Key: "e", Deps: deps("b", "d")},
	})
	require.NoError(t, err)

	// Without e the two chains are disjoint.
	comps := g.Components([]Key{"a", "b", "c", "d"})
	assert.Equal(t, [][]Key{{"a", "b"}, {"c", "d"}}, comps)

	comps = g.Components(g.Keys())
	assert.Equal(t, [][]Key{{"a", "b", "c", "d", "e"}}, comps)

	assert.Empty(t, g.Components([]Key{"unknown"}))
}

func TestSelection(t *testing.T) {
	g, err := NewGraph([]Spec{
		{Key: "b", Deps: deps("a")},
		{Key: "a"},
	})
	require.NoError(t, err)

	assert.Equal(t, []Key{"a", "b"}, g.Selection(nil))
	assert.Equal(t, []Key{"a", "b"}, g.Selection([]Key{"b", "a", "ghost"}))
}
