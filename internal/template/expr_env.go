// Package template implements the workflow template-substitution
// language: ${[ expr ]} tags resolved against a variable map and, when
// in scope, a WorkflowContext exposing workflow.step[N].*, loop.*, and
// conditional.branch identifiers.
package template

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// compileExpr compiles src against env, falling back to compiling
// without an environment if the typed compile fails: expr-lang's strict
// env checking rejects programs that reference identifiers not present
// in the env map, which this engine's dynamic variable set can't always
// satisfy.
func compileExpr(src string, env map[string]any) (*vm.Program, error) {
	program, err := expr.Compile(src, expr.Env(env))
	if err == nil {
		return program, nil
	}
	return expr.Compile(src)
}

// runExpr evaluates a compiled program against env.
func runExpr(program *vm.Program, env map[string]any) (any, error) {
	return expr.Run(program, env)
}
