package asset

import (
	"fmt"
	"strings"
)

// Graph construction error codes (G100-G199).
const (
	ErrCycle          = "G101" // dependency cycle
	ErrDuplicateKey   = "G102" // asset declared twice
	ErrUnknownDep     = "G103" // dependency on an undeclared asset
	ErrInvalidMapping = "G104" // unknown partition mapping kind
	ErrInvalidKey     = "G105" // malformed asset key
)

// GraphError reports a violated graph invariant. A graph that fails
// construction must never be evaluated.
type GraphError struct {
	Code    string `json:"code"`
	Key     Key    `json:"key,omitempty"`
	Path    []Key  `json:"path,omitempty"`
	Message string `json:"message"`
}

func (e *GraphError) Error() string {
	if len(e.Path) > 0 {
		parts := make([]string, len(e.Path))
		for i, k := range e.Path {
			parts[i] = k.String()
		}
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, strings.Join(parts, " -> "))
	}
	if e.Key != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Key, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}
