package hotconfig

import (
	"errors"
	"strings"
	"time"
)

// RuleEnv is what a compiled rule sees: every section of the effective
// document as a top-level variable, plus now.
type RuleEnv struct {
	Sections map[string]any
	Now      time.Time
}

// Evaluator compiles rule expressions for one engine. sections lists the
// variables an expression may reference besides now and the registered
// functions.
type Evaluator interface {
	Compile(expr string, sections []string) (CompiledRule, error)
}

// CompiledRule is a prepared expression. The validator requires a bool
// result; engines return whatever the expression produced.
type CompiledRule interface {
	Eval(env RuleEnv) (any, error)
}

// EngineOption configures a built-in rule engine.
type EngineOption func(*engineConfig)

type engineConfig struct {
	cache     ProgramCache
	functions *FunctionRegistry
}

// EngineCache shares compiled programs between evaluators of one engine.
func EngineCache(cache ProgramCache) EngineOption {
	return func(cfg *engineConfig) {
		cfg.cache = cache
	}
}

// EngineFunctions exposes the registry's functions to expressions, on top
// of the built-in helpers.
func EngineFunctions(registry *FunctionRegistry) EngineOption {
	return func(cfg *engineConfig) {
		cfg.functions = cfg.functions.overlay(registry)
	}
}

func applyEngineOptions(opts []EngineOption) engineConfig {
	cfg := engineConfig{functions: builtinFunctions()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

var errEmptyExpression = errors.New("expression must not be empty")

// programKey identifies a compiled program. The declared sections are part
// of the key because they change what an expression compiles against.
func programKey(expr string, sections []string) string {
	return strings.Join(sections, ",") + "|" + expr
}

func (cfg engineConfig) cached(key string) (any, bool) {
	if cfg.cache == nil {
		return nil, false
	}
	return cfg.cache.Get(key)
}

func (cfg engineConfig) store(key string, program any) {
	if cfg.cache != nil {
		cfg.cache.Set(key, program)
	}
}

func (env RuleEnv) timestamp() time.Time {
	if env.Now.IsZero() {
		return time.Now()
	}
	return env.Now
}
