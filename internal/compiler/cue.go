package compiler

import (
	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// ParseCUE compiles a single CUE file and decodes its definitions.
func ParseCUE(data []byte, filename string) (*Definitions, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	return CompileCUE(v)
}

// CompileCUE decodes definitions from a built CUE value. Assets are the
// fields of the top-level "assets" struct, labelled by asset key:
//
//	assets: "marts/daily": {
//		deps: ["raw/events", {key: "raw/users", mapping: "all"}]
//		condition: and: ["missing", {not: "in_progress"}]
//	}
func CompileCUE(v cue.Value) (*Definitions, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	defs := &Definitions{}

	assetsVal := v.LookupPath(cue.ParsePath("assets"))
	if assetsVal.Exists() {
		iter, err := assetsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			a, err := compileAsset(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			defs.Assets = append(defs.Assets, a)
		}
	}

	policiesVal := v.LookupPath(cue.ParsePath("policies"))
	if policiesVal.Exists() {
		if err := policiesVal.Decode(&defs.Policies); err != nil {
			return nil, formatCUEError(err)
		}
	}
	return defs, nil
}

func compileAsset(key string, v cue.Value) (AssetDef, error) {
	a := AssetDef{Key: key, Source: sourceOf(v.Pos())}

	if desc := v.LookupPath(cue.ParsePath("description")); desc.Exists() {
		s, err := desc.String()
		if err != nil {
			return a, formatCUEError(err)
		}
		a.Description = s
	}

	if depsVal := v.LookupPath(cue.ParsePath("deps")); depsVal.Exists() {
		iter, err := depsVal.List()
		if err != nil {
			return a, formatCUEError(err)
		}
		for iter.Next() {
			dep, err := compileDep(iter.Value())
			if err != nil {
				return a, err
			}
			a.Deps = append(a.Deps, dep)
		}
	}

	if partsVal := v.LookupPath(cue.ParsePath("partitions")); partsVal.Exists() {
		var parts PartitionsDef
		if err := partsVal.Decode(&parts); err != nil {
			return a, formatCUEError(err)
		}
		a.Partitions = &parts
	}

	if condVal := v.LookupPath(cue.ParsePath("condition")); condVal.Exists() {
		var raw any
		if err := condVal.Decode(&raw); err != nil {
			return a, formatCUEError(err)
		}
		a.Condition = raw
	}

	if policyVal := v.LookupPath(cue.ParsePath("policy")); policyVal.Exists() {
		s, err := policyVal.String()
		if err != nil {
			return a, formatCUEError(err)
		}
		a.Policy = s
	}

	if tagsVal := v.LookupPath(cue.ParsePath("tags")); tagsVal.Exists() {
		if err := tagsVal.Decode(&a.Tags); err != nil {
			return a, formatCUEError(err)
		}
	}
	return a, nil
}

// compileDep accepts a bare key string or a {key, mapping} struct.
func compileDep(v cue.Value) (DepDef, error) {
	if s, err := v.String(); err == nil {
		return DepDef{Key: s}, nil
	}
	keyVal := v.LookupPath(cue.ParsePath("key"))
	if !keyVal.Exists() {
		return DepDef{}, &CompileError{
			Code:    ErrSyntax,
			Field:   "deps",
			Message: "dependency must be a string or a struct with a key field",
			Source:  sourceOf(v.Pos()),
		}
	}
	var dep DepDef
	if err := v.Decode(&dep); err != nil {
		return DepDef{}, formatCUEError(err)
	}
	return dep, nil
}

func sourceOf(pos token.Pos) Source {
	if !pos.IsValid() {
		return Source{}
	}
	return Source{File: pos.Filename(), Line: pos.Line(), Column: pos.Column()}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	ce := &CompileError{Code: ErrSyntax, Field: "cue", Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		ce.Source = sourceOf(positions[0])
	}
	return ce
}
