package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/assetsched/internal/ir"
)

// marshalTags converts run tags to canonical JSON TEXT for storage, so equal
// tag maps are stored byte-identically.
func marshalTags(tags map[string]string) (string, error) {
	obj := make(ir.Object, len(tags))
	for k, v := range tags {
		obj[k] = ir.String(v)
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("marshal tags: %w", err)
	}
	return string(data), nil
}

func unmarshalTags(data string) (map[string]string, error) {
	if data == "" || data == "{}" {
		return map[string]string{}, nil
	}
	var tags map[string]string
	if err := json.Unmarshal([]byte(data), &tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	return tags, nil
}
