package asset

import (
	"container/heap"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/roach88/assetsched/internal/condition"
)

// Dep is an edge from a child asset to a parent it reads from.
type Dep struct {
	Key     Key         `json:"key"`
	Mapping MappingKind `json:"mapping,omitempty"`
}

// Spec declares one asset of the graph.
type Spec struct {
	Key         Key
	Description string
	Deps        []Dep
	Partitions  PartitionsDef
	Condition   condition.Condition
	// Policy names a registered scheduling policy, used when Condition is nil.
	Policy string
	// Tags are copied onto every run request that targets the asset.
	Tags map[string]string
}

type node struct {
	spec     Spec
	parents  []Dep
	children []Key
}

// Graph is an immutable DAG of assets. It is safe for concurrent reads.
type Graph struct {
	nodes map[Key]*node
	keys  []Key
	order []Key
	rank  map[Key]int
}

// NewGraph validates specs and builds the graph. Duplicate keys, unknown
// dependencies, unknown mapping kinds and cycles fail with *GraphError.
func NewGraph(specs []Spec) (*Graph, error) {
	g := &Graph{nodes: make(map[Key]*node, len(specs))}

	for _, s := range specs {
		if _, err := ParseKey(string(s.Key)); err != nil {
			return nil, &GraphError{Code: ErrInvalidKey, Key: s.Key, Message: err.Error()}
		}
		if _, dup := g.nodes[s.Key]; dup {
			return nil, &GraphError{Code: ErrDuplicateKey, Key: s.Key, Message: "asset declared more than once"}
		}
		s.Tags = maps.Clone(s.Tags)
		g.nodes[s.Key] = &node{spec: s}
		g.keys = append(g.keys, s.Key)
	}
	SortKeys(g.keys)

	edges := make(map[Key][]Key, len(g.nodes))
	for _, k := range g.keys {
		n := g.nodes[k]
		seen := make(map[Key]bool)
		for _, d := range n.spec.Deps {
			parent, ok := g.nodes[d.Key]
			if !ok {
				return nil, &GraphError{Code: ErrUnknownDep, Key: k, Message: fmt.Sprintf("depends on undeclared asset %q", d.Key)}
			}
			if seen[d.Key] {
				continue
			}
			seen[d.Key] = true
			if d.Mapping == "" {
				d.Mapping = defaultMapping(n.spec.Partitions, parent.spec.Partitions)
			}
			if !d.Mapping.Valid() {
				return nil, &GraphError{Code: ErrInvalidMapping, Key: k, Message: fmt.Sprintf("unknown partition mapping %q", d.Mapping)}
			}
			n.parents = append(n.parents, d)
			parent.children = append(parent.children, k)
			edges[k] = append(edges[k], d.Key)
		}
		slices.SortFunc(n.parents, func(a, b Dep) int { return Compare(a.Key, b.Key) })
		SortKeys(edges[k])
	}
	for _, n := range g.nodes {
		SortKeys(n.children)
	}

	if cycles := findCycles(g.keys, edges); len(cycles) > 0 {
		return nil, &GraphError{Code: ErrCycle, Path: cycles[0], Message: "dependency cycle"}
	}

	g.order = g.toposort()
	g.rank = make(map[Key]int, len(g.order))
	for i, k := range g.order {
		g.rank[k] = i
	}
	return g, nil
}

// keyHeap is a min-heap of keys ordered by Compare.
type keyHeap []Key

func (h keyHeap) Len() int           { return len(h) }
func (h keyHeap) Less(i, j int) bool { return Compare(h[i], h[j]) < 0 }
func (h keyHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *keyHeap) Push(x any)        { *h = append(*h, x.(Key)) }
func (h *keyHeap) Pop() any {
	old := *h
	k := old[len(old)-1]
	*h = old[:len(old)-1]
	return k
}

// toposort is Kahn's algorithm with ties broken by key order, so the same
// graph always yields the same order.
func (g *Graph) toposort() []Key {
	indegree := make(map[Key]int, len(g.nodes))
	ready := &keyHeap{}
	for _, k := range g.keys {
		indegree[k] = len(g.nodes[k].parents)
		if indegree[k] == 0 {
			heap.Push(ready, k)
		}
	}

	order := make([]Key, 0, len(g.nodes))
	for ready.Len() > 0 {
		k := heap.Pop(ready).(Key)
		order = append(order, k)
		for _, c := range g.nodes[k].children {
			indegree[c]--
			if indegree[c] == 0 {
				heap.Push(ready, c)
			}
		}
	}
	return order
}

// Has reports whether key is in the graph.
func (g *Graph) Has(key Key) bool {
	_, ok := g.nodes[key]
	return ok
}

// Keys returns all asset keys sorted by Compare.
func (g *Graph) Keys() []Key {
	return slices.Clone(g.keys)
}

// Toposort returns all keys, parents before children.
func (g *Graph) Toposort() []Key {
	return slices.Clone(g.order)
}

// Spec returns the declaration of key.
func (g *Graph) Spec(key Key) (Spec, bool) {
	n, ok := g.nodes[key]
	if !ok {
		return Spec{}, false
	}
	return n.spec, true
}

// Parents returns the dependencies of key, sorted by parent key.
func (g *Graph) Parents(key Key) []Dep {
	n, ok := g.nodes[key]
	if !ok {
		return nil
	}
	return slices.Clone(n.parents)
}

// Children returns the keys that depend on key.
func (g *Graph) Children(key Key) []Key {
	n, ok := g.nodes[key]
	if !ok {
		return nil
	}
	return slices.Clone(n.children)
}

// IsRoot reports whether key has no parents.
func (g *Graph) IsRoot(key Key) bool {
	n, ok := g.nodes[key]
	return ok && len(n.parents) == 0
}

// PartitionsDef returns the partitions definition of key, nil if unpartitioned or unknown.
func (g *Graph) PartitionsDef(key Key) PartitionsDef {
	n, ok := g.nodes[key]
	if !ok {
		return nil
	}
	return n.spec.Partitions
}

// Condition returns the automation condition of key, nil if none.
func (g *Graph) Condition(key Key) condition.Condition {
	n, ok := g.nodes[key]
	if !ok {
		return nil
	}
	return n.spec.Condition
}

// PartitionKeys returns the valid partition keys of key at now. Unknown keys have none.
func (g *Graph) PartitionKeys(key Key, now time.Time) ([]string, error) {
	n, ok := g.nodes[key]
	if !ok {
		return nil, nil
	}
	keys, err := PartitionKeys(n.spec.Partitions, now)
	if err != nil {
		return nil, fmt.Errorf("partitions of %s: %w", key, err)
	}
	return keys, nil
}

// ParentPartitions returns the parent partitions p depends on via the
// dependency mappings, sorted.
func (g *Graph) ParentPartitions(p Partition, now time.Time) ([]Partition, error) {
	n, ok := g.nodes[p.Key]
	if !ok {
		return nil, nil
	}
	var out []Partition
	for _, d := range n.parents {
		keys, err := mapToParent(d.Mapping, p.PartitionKey, g.nodes[d.Key].spec.Partitions, now)
		if err != nil {
			return nil, fmt.Errorf("map %s to %s: %w", p, d.Key, err)
		}
		for _, k := range keys {
			out = append(out, Partition{Key: d.Key, PartitionKey: k})
		}
	}
	return out, nil
}

// ChildPartitions returns the partitions of child that depend on parent
// partition p. child must list p.Key as a dependency.
func (g *Graph) ChildPartitions(p Partition, child Key, now time.Time) ([]Partition, error) {
	c, ok := g.nodes[child]
	if !ok {
		return nil, nil
	}
	for _, d := range c.parents {
		if d.Key != p.Key {
			continue
		}
		keys, err := mapToChild(d.Mapping, p.PartitionKey, g.nodes[p.Key].spec.Partitions, c.spec.Partitions, now)
		if err != nil {
			return nil, fmt.Errorf("map %s to %s: %w", p, child, err)
		}
		out := make([]Partition, len(keys))
		for i, k := range keys {
			out[i] = Partition{Key: child, PartitionKey: k}
		}
		return out, nil
	}
	return nil, nil
}

// Before reports whether a is evaluated before b in topological order.
func (g *Graph) Before(a, b Key) bool {
	return g.rank[a] < g.rank[b]
}

// Components partitions selection into weakly connected components of the
// subgraph it induces. Each component lists its keys in topological order and
// components are ordered by their first key's position.
func (g *Graph) Components(selection []Key) [][]Key {
	in := make(map[Key]bool, len(selection))
	for _, k := range selection {
		if g.Has(k) {
			in[k] = true
		}
	}

	parent := make(map[Key]Key, len(in))
	var find func(Key) Key
	find = func(k Key) Key {
		for parent[k] != k {
			parent[k] = parent[parent[k]]
			k = parent[k]
		}
		return k
	}
	for k := range in {
		parent[k] = k
	}
	for k := range in {
		for _, d := range g.nodes[k].parents {
			if in[d.Key] {
				ra, rb := find(k), find(d.Key)
				if ra != rb {
					parent[ra] = rb
				}
			}
		}
	}

	byRoot := make(map[Key][]Key)
	var roots []Key
	for _, k := range g.order {
		if !in[k] {
			continue
		}
		r := find(k)
		if _, seen := byRoot[r]; !seen {
			roots = append(roots, r)
		}
		byRoot[r] = append(byRoot[r], k)
	}

	out := make([][]Key, 0, len(roots))
	for _, r := range roots {
		out = append(out, byRoot[r])
	}
	return out
}

// Selection returns the graph keys in keys, in topological order. Unknown
// keys are dropped. An empty keys selects the whole graph.
func (g *Graph) Selection(keys []Key) []Key {
	if len(keys) == 0 {
		return g.Toposort()
	}
	want := make(map[Key]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	var out []Key
	for _, k := range g.order {
		if want[k] {
			out = append(out, k)
		}
	}
	return out
}
