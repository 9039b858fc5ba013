package hotconfig

import (
	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

type celEvaluator struct {
	cfg engineConfig
}

// NewCELEvaluator constructs a rule engine backed by cel-go. Every declared
// section is a dyn variable and ints compare with doubles. Registered
// functions are available with one or two arguments.
func NewCELEvaluator(opts ...EngineOption) Evaluator {
	return &celEvaluator{cfg: applyEngineOptions(opts)}
}

func (e *celEvaluator) Compile(expression string, sections []string) (CompiledRule, error) {
	if expression == "" {
		return nil, compileError(EngineCEL, expression, errEmptyExpression)
	}
	key := programKey(expression, sections)
	if cached, ok := e.cfg.cached(key); ok {
		if program, ok := cached.(celgo.Program); ok {
			return celRule{program: program}, nil
		}
	}

	env, err := e.environment(sections)
	if err != nil {
		return nil, compileError(EngineCEL, expression, err)
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, compileError(EngineCEL, expression, issues.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, compileError(EngineCEL, expression, err)
	}
	e.cfg.store(key, program)
	return celRule{program: program}, nil
}

func (e *celEvaluator) environment(sections []string) (*celgo.Env, error) {
	opts := []celgo.EnvOption{
		celgo.CrossTypeNumericComparisons(true),
		celgo.Variable("now", celgo.TimestampType),
	}
	for _, section := range sections {
		opts = append(opts, celgo.Variable(section, celgo.DynType))
	}
	for _, name := range e.cfg.functions.Names() {
		call := e.cfg.functions.bind(name)
		opts = append(opts, celgo.Function(name,
			celgo.Overload(name+"_dyn",
				[]*celgo.Type{celgo.DynType}, celgo.DynType,
				celgo.UnaryBinding(func(arg ref.Val) ref.Val {
					return celResult(call(arg.Value()))
				}),
			),
			celgo.Overload(name+"_dyn_dyn",
				[]*celgo.Type{celgo.DynType, celgo.DynType}, celgo.DynType,
				celgo.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
					return celResult(call(lhs.Value(), rhs.Value()))
				}),
			),
		))
	}
	return celgo.NewEnv(opts...)
}

func celResult(value any, err error) ref.Val {
	if err != nil {
		return types.NewErr("%s", err.Error())
	}
	if value == nil {
		return types.NullValue
	}
	return types.DefaultTypeAdapter.NativeToValue(value)
}

type celRule struct {
	program celgo.Program
}

func (r celRule) Eval(env RuleEnv) (any, error) {
	activation := make(map[string]any, len(env.Sections)+1)
	for section, values := range env.Sections {
		activation[section] = values
	}
	activation["now"] = env.timestamp()
	out, _, err := r.program.Eval(activation)
	if err != nil {
		return nil, err
	}
	return out.Value(), nil
}
