// Package policy compiles update-policy expressions from manifests into
// locator.ShouldUpdateFunc values.
//
// An expression sees three variables:
//
//	old       map of the stored snapshot (empty on first resolution)
//	new       map of the freshly resolved locator
//	outdated  whether the two differ in method, url, query, headers or body
//
// Each map has the keys method, url, query, headers, body and uniqueId. The
// expression must evaluate to a bool.
package policy

import (
	"context"
	"fmt"

	"github.com/specialistvlad/scriptloader/internal/locator"
)

// Engine names an expression language.
type Engine string

const (
	EngineExpr Engine = "expr"
	EngineCEL  Engine = "cel"
)

// Program is a compiled policy.
type Program interface {
	Eval(env map[string]any) (bool, error)
}

// EvaluationError wraps a failure to compile or run a policy.
type EvaluationError struct {
	Engine     Engine
	Expression string
	Err        error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("policy: %s expression %q: %v", e.Engine, e.Expression, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// Compile compiles source with engine. An empty engine selects expr.
func Compile(engine Engine, source string) (locator.ShouldUpdateFunc, error) {
	if source == "" {
		return nil, &EvaluationError{Engine: engine, Err: fmt.Errorf("expression must not be empty")}
	}

	var (
		prg Program
		err error
	)
	switch engine {
	case "", EngineExpr:
		engine = EngineExpr
		prg, err = compileExpr(source)
	case EngineCEL:
		prg, err = compileCEL(source)
	default:
		return nil, fmt.Errorf("policy: unknown engine %q", engine)
	}
	if err != nil {
		return nil, &EvaluationError{Engine: engine, Expression: source, Err: err}
	}

	return func(_ context.Context, old *locator.CacheEntry, candidate *locator.Normalized, outdated bool) (bool, error) {
		newEntry := candidate.Entry()
		ok, err := prg.Eval(Env(old, &newEntry, outdated))
		if err != nil {
			return false, &EvaluationError{Engine: engine, Expression: source, Err: err}
		}
		return ok, nil
	}, nil
}

// Env builds the variables visible to a policy.
func Env(old, candidate *locator.CacheEntry, outdated bool) map[string]any {
	return map[string]any{
		"old":      entryMap(old),
		"new":      entryMap(candidate),
		"outdated": outdated,
	}
}

func entryMap(e *locator.CacheEntry) map[string]any {
	if e == nil {
		return map[string]any{}
	}
	headers := make(map[string]any, len(e.Headers))
	for k, v := range e.Headers {
		headers[k] = v
	}
	body := ""
	if e.Body != nil {
		body = *e.Body
	}
	return map[string]any{
		"uniqueId": e.UniqueID,
		"method":   string(e.Method),
		"url":      e.URL,
		"query":    e.Query,
		"headers":  headers,
		"body":     body,
	}
}
