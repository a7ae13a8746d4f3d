package asset

import "time"

// MappingKind selects how a child partition maps onto parent partitions.
type MappingKind string

const (
	// MappingIdentity maps a partition to the parent partition with the same key.
	MappingIdentity MappingKind = "identity"
	// MappingAll maps every child partition to every valid parent partition.
	MappingAll MappingKind = "all"
	// MappingLast maps every child partition to the latest valid parent partition.
	MappingLast MappingKind = "last"
)

// Valid reports whether k is a known mapping kind.
func (k MappingKind) Valid() bool {
	switch k {
	case MappingIdentity, MappingAll, MappingLast:
		return true
	}
	return false
}

// defaultMapping picks the mapping used when a dependency declares none.
func defaultMapping(child, parent PartitionsDef) MappingKind {
	switch {
	case parent == nil:
		return MappingAll
	case child == nil:
		return MappingAll
	default:
		return MappingIdentity
	}
}

// mapToParent returns the parent keys that child partition key pk depends on.
func mapToParent(kind MappingKind, pk string, parent PartitionsDef, now time.Time) ([]string, error) {
	parentKeys, err := PartitionKeys(parent, now)
	if err != nil {
		return nil, err
	}
	switch kind {
	case MappingAll:
		return parentKeys, nil
	case MappingLast:
		if len(parentKeys) == 0 {
			return nil, nil
		}
		return parentKeys[len(parentKeys)-1:], nil
	default:
		for _, k := range parentKeys {
			if k == pk {
				return []string{k}, nil
			}
		}
		return nil, nil
	}
}

// mapToChild returns the child keys that depend on parent partition key pk.
func mapToChild(kind MappingKind, pk string, parent, child PartitionsDef, now time.Time) ([]string, error) {
	childKeys, err := PartitionKeys(child, now)
	if err != nil {
		return nil, err
	}
	switch kind {
	case MappingAll:
		return childKeys, nil
	case MappingLast:
		parentKeys, err := PartitionKeys(parent, now)
		if err != nil {
			return nil, err
		}
		if len(parentKeys) == 0 || parentKeys[len(parentKeys)-1] != pk {
			return nil, nil
		}
		return childKeys, nil
	default:
		for _, k := range childKeys {
			if k == pk {
				return []string{k}, nil
			}
		}
		return nil, nil
	}
}
