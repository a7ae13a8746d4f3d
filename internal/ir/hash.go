package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
)

// Domain prefixes for content-addressed identity.
// The version suffix allows the algorithm to change without colliding.
const (
	DomainTrueSet       = "assetsched/true-set/v1"
	DomainConditionNode = "assetsched/condition-node/v1"
	DomainRunRequest    = "assetsched/run-request/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TrueSetHash computes the value hash of an asset's true set.
// The result depends only on the key and the set of partition keys; input
// order and duplicates do not matter.
func TrueSetHash(assetKey string, partitionKeys []string) (string, error) {
	keys := slices.Clone(partitionKeys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	obj := Object{
		"asset_key":  String(assetKey),
		"partitions": Strings(keys...),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("TrueSetHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainTrueSet, canonical), nil
}

// ConditionNodeID computes the stable identity of a node in a condition tree
// from its parent's identity, its position among siblings and its
// self-description. Editing a node changes its id and every descendant id.
func ConditionNodeID(parentID string, index int, description string) string {
	obj := Object{
		"parent":      String(parentID),
		"index":       Int(int64(index)),
		"description": String(description),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		// Only strings and ints are involved; marshaling cannot fail.
		panic(err)
	}
	return hashWithDomain(DomainConditionNode, canonical)[:16]
}

// RunRequestContent returns the canonical bytes identifying a run request:
// its sorted asset partitions and its tags.
func RunRequestContent(partitions []string, tags map[string]string) ([]byte, error) {
	parts := slices.Clone(partitions)
	slices.Sort(parts)

	tagObj := make(Object, len(tags))
	for k, v := range tags {
		tagObj[k] = String(v)
	}
	obj := Object{
		"partitions": Strings(parts...),
		"tags":       tagObj,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return nil, fmt.Errorf("RunRequestContent: failed to marshal: %w", err)
	}
	return canonical, nil
}

// RunRequestHash is the content hash of a run request, used for de-duplication.
func RunRequestHash(partitions []string, tags map[string]string) (string, error) {
	content, err := RunRequestContent(partitions, tags)
	if err != nil {
		return "", err
	}
	return hashWithDomain(DomainRunRequest, content), nil
}

// MustTrueSetHash is like TrueSetHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustTrueSetHash(assetKey string, partitionKeys []string) string {
	h, err := TrueSetHash(assetKey, partitionKeys)
	if err != nil {
		panic(err)
	}
	return h
}
