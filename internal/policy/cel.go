package policy

import (
	"fmt"

	celgo "github.com/google/cel-go/cel"
)

type celProgram struct {
	program celgo.Program
}

func compileCEL(source string) (Program, error) {
	env, err := celgo.NewEnv(
		celgo.Variable("old", celgo.MapType(celgo.StringType, celgo.DynType)),
		celgo.Variable("new", celgo.MapType(celgo.StringType, celgo.DynType)),
		celgo.Variable("outdated", celgo.BoolType),
	)
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(source)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if !ast.OutputType().IsExactType(celgo.BoolType) {
		return nil, fmt.Errorf("expression has type %s, want bool", ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, err
	}
	return &celProgram{program: prg}, nil
}

func (p *celProgram) Eval(env map[string]any) (bool, error) {
	out, _, err := p.program.Eval(env)
	if err != nil {
		return false, err
	}
	ok, isBool := out.Value().(bool)
	if !isBool {
		return false, fmt.Errorf("expression returned %T, want bool", out.Value())
	}
	return ok, nil
}
