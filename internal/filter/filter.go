// Package filter compiles expr-lang expressions that select which differing
// leaves of an artifact get ported.
//
//	Group == "model" && Key != "seed"
//	Under("model.grid", "output") || Keys("dt")
//	Depth > 1 && Changed()
package filter

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/loog-project/nmldiff/pkg/diffmap"
)

// Filter is a compiled expression. The zero value and a nil *Filter match
// every change.
type Filter struct {
	source  string
	program *vm.Program
}

// Compile parses source as a boolean expression over [ChangeEnv]. An empty
// source yields a filter that matches everything.
func Compile(source string) (*Filter, error) {
	if source == "" {
		return &Filter{}, nil
	}
	program, err := expr.Compile(source, expr.Env(ChangeEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("cannot compile filter %q: %w", source, err)
	}
	return &Filter{source: source, program: program}, nil
}

// Match evaluates the filter for one differing leaf.
func (f *Filter) Match(path diffmap.Path, change diffmap.Change) (bool, error) {
	if f == nil || f.program == nil {
		return true, nil
	}
	out, err := expr.Run(f.program, newEnv(path, change))
	if err != nil {
		return false, fmt.Errorf("filter %q at %s: %w", f.source, path, err)
	}
	pass, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("filter %q returned %T", f.source, out)
	}
	return pass, nil
}

// Option adapts the filter for [diffmap.Apply].
func (f *Filter) Option() diffmap.ApplyOption {
	return diffmap.WithPathFilter(f.Match)
}

func (f *Filter) String() string {
	if f == nil || f.source == "" {
		return "All()"
	}
	return f.source
}
