package compiler

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// ParseYAML decodes a YAML (or JSON) definitions document. Unknown fields
// are errors.
func ParseYAML(data []byte, filename string) (*Definitions, error) {
	var root yaml.Node
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return &Definitions{}, nil
		}
		return nil, yamlError(err, filename)
	}

	var defs Definitions
	strict := yaml.NewDecoder(bytes.NewReader(data))
	strict.KnownFields(true)
	if err := strict.Decode(&defs); err != nil {
		return nil, yamlError(err, filename)
	}

	for i, n := range assetNodes(&root) {
		if i < len(defs.Assets) {
			defs.Assets[i].Source = Source{File: filename, Line: n.Line, Column: n.Column}
		}
	}
	return &defs, nil
}

// assetNodes returns the nodes of the top-level assets sequence.
func assetNodes(root *yaml.Node) []*yaml.Node {
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value == "assets" && doc.Content[i+1].Kind == yaml.SequenceNode {
			return doc.Content[i+1].Content
		}
	}
	return nil
}

func yamlError(err error, filename string) error {
	var te *yaml.TypeError
	if errors.As(err, &te) {
		return &CompileError{Code: ErrSyntax, Field: "yaml", Message: te.Errors[0], Source: Source{File: filename}}
	}
	return &CompileError{Code: ErrSyntax, Field: "yaml", Message: err.Error(), Source: Source{File: filename}}
}

// CompileError is a definitions file that could not be decoded.
type CompileError struct {
	Code    string
	Field   string
	Message string
	Source  Source
}

func (e *CompileError) Error() string {
	if src := e.Source.String(); src != "" {
		return fmt.Sprintf("%s: [%s] %s: %s", src, e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}
