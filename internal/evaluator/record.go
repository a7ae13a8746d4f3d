package evaluator

import (
	"time"

	"github.com/roach88/assetsched/internal/asset"
)

// NodeRecord is the audit view of one condition node.
type NodeRecord struct {
	ID            string       `json:"id"`
	Description   string       `json:"description"`
	NumCandidates int          `json:"num_candidates"`
	NumTrue       int          `json:"num_true"`
	Children      []NodeRecord `json:"children,omitempty"`
}

// PolicyRecord is the audit view of a policy decision.
type PolicyRecord struct {
	Name   string `json:"name"`
	Launch bool   `json:"launch"`
}

// Record is the serializable evaluation record of one asset for one tick.
type Record struct {
	AssetKey     asset.Key     `json:"asset_key"`
	EvaluationID int64         `json:"evaluation_id"`
	Timestamp    time.Time     `json:"timestamp"`
	ValueHash    string        `json:"value_hash"`
	NumRequested int           `json:"num_requested"`
	TrueSet      []string      `json:"true_set"`
	Root         *NodeRecord   `json:"root,omitempty"`
	Policy       *PolicyRecord `json:"policy,omitempty"`
	// Propagated lists partition keys added by neighbour requests.
	Propagated []string `json:"propagated,omitempty"`
}
