package asset

import (
	"maps"
	"slices"
)

// PartitionSet is a set of partition keys of a single asset.
type PartitionSet map[string]struct{}

// NewPartitionSet builds a set from keys.
func NewPartitionSet(keys ...string) PartitionSet {
	s := make(PartitionSet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

func (s PartitionSet) Has(key string) bool {
	_, ok := s[key]
	return ok
}

func (s PartitionSet) Add(keys ...string) {
	for _, k := range keys {
		s[k] = struct{}{}
	}
}

// Sorted returns the keys in ascending order.
func (s PartitionSet) Sorted() []string {
	return slices.Sorted(maps.Keys(s))
}

// Union returns a new set holding keys of s or other.
func (s PartitionSet) Union(other PartitionSet) PartitionSet {
	out := make(PartitionSet, len(s)+len(other))
	for k := range s {
		out[k] = struct{}{}
	}
	for k := range other {
		out[k] = struct{}{}
	}
	return out
}

// Intersect returns a new set holding keys of both s and other.
func (s PartitionSet) Intersect(other PartitionSet) PartitionSet {
	out := make(PartitionSet)
	for k := range s {
		if other.Has(k) {
			out[k] = struct{}{}
		}
	}
	return out
}

// Minus returns a new set holding keys of s not in other.
func (s PartitionSet) Minus(other PartitionSet) PartitionSet {
	out := make(PartitionSet)
	for k := range s {
		if !other.Has(k) {
			out[k] = struct{}{}
		}
	}
	return out
}

func (s PartitionSet) Clone() PartitionSet {
	return maps.Clone(s)
}

// Partitions expands s into asset partitions of key, sorted.
func (s PartitionSet) Partitions(key Key) []Partition {
	out := make([]Partition, 0, len(s))
	for _, pk := range s.Sorted() {
		out = append(out, Partition{Key: key, PartitionKey: pk})
	}
	return out
}
