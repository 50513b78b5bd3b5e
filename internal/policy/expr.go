package policy

import (
	"fmt"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

type exprProgram struct {
	program *exprvm.Program
}

func compileExpr(source string) (Program, error) {
	program, err := exprlang.Compile(source,
		exprlang.Env(Env(nil, nil, false)),
		exprlang.AllowUndefinedVariables(),
		exprlang.AsBool(),
	)
	if err != nil {
		return nil, err
	}
	return &exprProgram{program: program}, nil
}

func (p *exprProgram) Eval(env map[string]any) (bool, error) {
	out, err := exprlang.Run(p.program, env)
	if err != nil {
		return false, err
	}
	ok, isBool := out.(bool)
	if !isBool {
		return false, fmt.Errorf("expression returned %T, want bool", out)
	}
	return ok, nil
}
