//go:build js_eval

package hotconfig

import (
	"fmt"

	"github.com/dop251/goja"
)

type jsEvaluator struct {
	cfg engineConfig
}

// NewJSEvaluator constructs a rule engine backed by goja. Each evaluation
// runs in a fresh runtime so rules cannot leak state into each other.
func NewJSEvaluator(opts ...EngineOption) Evaluator {
	return &jsEvaluator{cfg: applyEngineOptions(opts)}
}

func (e *jsEvaluator) Compile(expression string, sections []string) (CompiledRule, error) {
	if expression == "" {
		return nil, compileError(EngineJS, expression, errEmptyExpression)
	}
	key := programKey(expression, sections)
	if cached, ok := e.cfg.cached(key); ok {
		if program, ok := cached.(*goja.Program); ok {
			return jsRule{program: program, sections: sections, functions: e.cfg.functions}, nil
		}
	}
	program, err := goja.Compile("rule", fmt.Sprintf("(function(){ return (%s); })()", expression), true)
	if err != nil {
		return nil, compileError(EngineJS, expression, err)
	}
	e.cfg.store(key, program)
	return jsRule{program: program, sections: sections, functions: e.cfg.functions}, nil
}

type jsRule struct {
	program   *goja.Program
	sections  []string
	functions *FunctionRegistry
}

func (r jsRule) Eval(env RuleEnv) (any, error) {
	vm := goja.New()
	// declared sections exist even when the document omits them
	for _, section := range r.sections {
		if err := vm.Set(section, map[string]any{}); err != nil {
			return nil, err
		}
	}
	for section, values := range env.Sections {
		if err := vm.Set(section, values); err != nil {
			return nil, err
		}
	}
	if err := vm.Set("now", env.timestamp()); err != nil {
		return nil, err
	}
	for _, name := range r.functions.Names() {
		if err := vm.Set(name, r.functions.bind(name)); err != nil {
			return nil, err
		}
	}
	value, err := vm.RunProgram(r.program)
	if err != nil {
		return nil, err
	}
	return value.Export(), nil
}
