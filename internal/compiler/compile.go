package compiler

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/assetsched/internal/asset"
	"github.com/roach88/assetsched/internal/condition"
	"github.com/roach88/assetsched/internal/policy"
)

// Project is compiled definitions, ready to evaluate.
type Project struct {
	Graph    *asset.Graph
	Policies *policy.Registry
}

// Options configures Compile.
type Options struct {
	// Policies holds policies registered in code. Declared cron policies are
	// added to it. Nil starts from policy.NewRegistry().
	Policies *policy.Registry
}

// Compile validates defs and builds the asset graph. Validation problems
// come back as ValidationErrors.
func Compile(defs *Definitions, opts Options) (*Project, error) {
	registry := opts.Policies
	if registry == nil {
		registry = policy.NewRegistry()
	}
	if errs := Validate(defs, registry); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	for _, name := range sortedNames(defs.Policies) {
		p := defs.Policies[name]
		if err := registry.Register(name, policy.Cron{Expression: p.Cron, Timezone: p.Timezone}); err != nil {
			return nil, fmt.Errorf("register policy: %w", err)
		}
	}

	specs, err := Specs(defs)
	if err != nil {
		return nil, err
	}
	graph, err := asset.NewGraph(specs)
	if err != nil {
		return nil, ValidationErrors{graphError(err)}
	}
	return &Project{Graph: graph, Policies: registry}, nil
}

// Specs converts validated definitions into asset specs.
func Specs(defs *Definitions) ([]asset.Spec, error) {
	specs := make([]asset.Spec, 0, len(defs.Assets))
	for _, a := range defs.Assets {
		key, err := asset.ParseKey(a.Key)
		if err != nil {
			return nil, fmt.Errorf("asset %q: %w", a.Key, err)
		}
		spec := asset.Spec{
			Key:         key,
			Description: a.Description,
			Policy:      a.Policy,
			Tags:        a.Tags,
		}
		for _, d := range a.Deps {
			spec.Deps = append(spec.Deps, asset.Dep{Key: asset.Key(d.Key), Mapping: asset.MappingKind(d.Mapping)})
		}
		if a.Partitions != nil {
			if spec.Partitions, err = buildPartitions(a.Partitions); err != nil {
				return nil, fmt.Errorf("asset %s partitions: %w", key, err)
			}
		}
		if a.Condition != nil {
			if spec.Condition, err = condition.Decode(a.Condition); err != nil {
				return nil, fmt.Errorf("asset %s condition: %w", key, err)
			}
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func graphError(err error) ValidationError {
	ve := ValidationError{Field: "assets", Message: err.Error(), Code: ErrGraph}
	var ge *asset.GraphError
	if errors.As(err, &ge) {
		ve.Message = ge.Message
		if ge.Key != "" {
			ve.Field = fmt.Sprintf("assets[%s]", ge.Key)
		}
		if len(ge.Path) > 0 {
			ve.Message = ge.Error()
		}
	}
	return ve
}

func sortedNames[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
