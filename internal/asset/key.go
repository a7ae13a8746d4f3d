package asset

import (
	"fmt"
	"slices"
	"strings"
)

// Key identifies an asset. Its string form joins path segments with "/".
// Keys are comparable and usable as map keys.
type Key string

const separator = "/"

// NewKey builds a Key from path segments. Segments may not be empty or
// contain the separator.
func NewKey(segments ...string) (Key, error) {
	if len(segments) == 0 {
		return "", fmt.Errorf("asset key: no segments")
	}
	for i, seg := range segments {
		if seg == "" {
			return "", fmt.Errorf("asset key: segment %d is empty", i)
		}
		if strings.Contains(seg, separator) {
			return "", fmt.Errorf("asset key: segment %q contains %q", seg, separator)
		}
	}
	return Key(strings.Join(segments, separator)), nil
}

// MustKey is like NewKey but panics on error. Use in tests and static tables.
func MustKey(segments ...string) Key {
	k, err := NewKey(segments...)
	if err != nil {
		panic(err)
	}
	return k
}

// ParseKey parses the "/"-joined string form.
func ParseKey(s string) (Key, error) {
	return NewKey(strings.Split(s, separator)...)
}

// Segments returns the path segments of k.
func (k Key) Segments() []string {
	return strings.Split(string(k), separator)
}

func (k Key) String() string {
	return string(k)
}

// Compare orders keys segment by segment, so "a/b" sorts before "a-b".
func Compare(a, b Key) int {
	return slices.Compare(a.Segments(), b.Segments())
}

// SortKeys sorts keys in place by Compare.
func SortKeys(keys []Key) {
	slices.SortFunc(keys, Compare)
}

// Partition is one slice of an asset. An empty PartitionKey means the asset
// is unpartitioned.
type Partition struct {
	Key          Key    `json:"asset_key"`
	PartitionKey string `json:"partition_key,omitempty"`
}

func (p Partition) String() string {
	if p.PartitionKey == "" {
		return p.Key.String()
	}
	return p.Key.String() + "[" + p.PartitionKey + "]"
}

// ComparePartitions orders by asset key, then partition key.
func ComparePartitions(a, b Partition) int {
	if c := Compare(a.Key, b.Key); c != 0 {
		return c
	}
	return strings.Compare(a.PartitionKey, b.PartitionKey)
}

// SortPartitions sorts partitions in place by ComparePartitions.
func SortPartitions(ps []Partition) {
	slices.SortFunc(ps, ComparePartitions)
}
