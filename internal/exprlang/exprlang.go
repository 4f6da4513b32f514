// Package exprlang wraps the expr-lang evaluator into the small boolean
// guard language used for rule enablement and inline validators.
//
// Expressions are compiled once at config load, so syntax errors surface as
// configuration errors instead of silent runtime failures. Evaluation is
// side-effect free: the environment handed to Eval exposes read-only values
// and helper functions only.
package exprlang

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Program is a compiled boolean expression.
type Program struct {
	source   string
	compiled *vm.Program
}

// Source returns the original expression text.
func (p *Program) Source() string {
	return p.source
}

// Compile parses and compiles an expression, requiring a boolean result.
func Compile(source string) (*Program, error) {
	if source == "" {
		return nil, fmt.Errorf("empty expression")
	}
	compiled, err := expr.Compile(source, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", source, err)
	}
	return &Program{source: source, compiled: compiled}, nil
}

// Eval runs the program against the given environment. The environment maps
// variable and function names to values; helper functions are ordinary Go
// funcs in the map. Any runtime error (unknown variable, type mismatch,
// non-boolean result) is returned to the caller, which decides the
// fail-open/fail-closed consequence.
func Eval(p *Program, env map[string]any) (bool, error) {
	out, err := expr.Run(p.compiled, env)
	if err != nil {
		return false, fmt.Errorf("expression %q: %w", p.source, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q returned %T, want bool", p.source, out)
	}
	return b, nil
}
