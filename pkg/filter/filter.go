// Package filter compiles operator-supplied CEL expressions into predicates
// over a service's catalog metadata. Expressions are compiled once at
// configuration-load time; evaluation per catalog entry is a plain function
// call with no parsing involved.
package filter

import (
	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
)

// ServiceMeta is the metadata a filter expression is evaluated against.
type ServiceMeta struct {
	Name        string
	Labels      map[string]string
	Annotations map[string]string
}

// Predicate reports whether a service matches a compiled filter.
type Predicate func(ServiceMeta) bool

// Compile builds a predicate from a CEL expression over the variables
// `name` (string), `labels` and `annotations` (both map<string,string>).
// An empty expression yields a nil predicate, which callers treat as
// match-all. The expression must produce a bool.
//
// Evaluation errors (e.g. indexing a missing map key) make the predicate
// return false for that entry instead of failing the whole listing.
func Compile(expression string) (Predicate, error) {
	if expression == "" {
		return nil, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("name", cel.StringType),
		cel.Variable("labels", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("annotations", cel.MapType(cel.StringType, cel.StringType)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "creating filter environment")
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, errors.Wrapf(issues.Err(), "compiling filter expression %q", expression)
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, errors.Errorf("filter expression %q must evaluate to bool, got %s", expression, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, errors.Wrapf(err, "planning filter expression %q", expression)
	}

	return func(meta ServiceMeta) bool {
		out, _, err := program.Eval(map[string]any{
			"name":        meta.Name,
			"labels":      nonNil(meta.Labels),
			"annotations": nonNil(meta.Annotations),
		})
		if err != nil {
			return false
		}
		matched, ok := out.Value().(bool)
		return ok && matched
	}, nil
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
