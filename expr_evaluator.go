package hotconfig

import (
	"fmt"
	"time"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

type exprEvaluator struct {
	cfg engineConfig
}

// NewExprEvaluator constructs the default rule engine, backed by
// expr-lang/expr. Sections are untyped maps, so member access is checked at
// run time and a missing key reads as nil.
func NewExprEvaluator(opts ...EngineOption) Evaluator {
	return &exprEvaluator{cfg: applyEngineOptions(opts)}
}

func (e *exprEvaluator) Compile(expression string, sections []string) (CompiledRule, error) {
	if expression == "" {
		return nil, compileError(EngineExpr, expression, errEmptyExpression)
	}
	key := programKey(expression, sections)
	if cached, ok := e.cfg.cached(key); ok {
		if program, ok := cached.(*exprvm.Program); ok {
			return exprRule{program: program, expression: expression}, nil
		}
	}

	env := map[string]any{"now": time.Time{}}
	for _, section := range sections {
		env[section] = map[string]any{}
	}
	options := []exprlang.Option{
		exprlang.Env(env),
		exprlang.AllowUndefinedVariables(),
	}
	for _, name := range e.cfg.functions.Names() {
		options = append(options, exprlang.Function(name, e.cfg.functions.bind(name)))
	}
	program, err := exprlang.Compile(expression, options...)
	if err != nil {
		return nil, compileError(EngineExpr, expression, err)
	}
	e.cfg.store(key, program)
	return exprRule{program: program, expression: expression}, nil
}

type exprRule struct {
	program    *exprvm.Program
	expression string
}

func (r exprRule) Eval(env RuleEnv) (any, error) {
	vars := make(map[string]any, len(env.Sections)+1)
	for section, values := range env.Sections {
		vars[section] = values
	}
	vars["now"] = env.timestamp()
	result, err := exprlang.Run(r.program, vars)
	if err != nil {
		return nil, fmt.Errorf("run: %w", err)
	}
	return result, nil
}
