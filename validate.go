package hotconfig

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-hotconfig/layering"
)

// Validator checks documents against a Schema. It is safe for concurrent use.
type Validator struct {
	schema Schema
	rules  []preparedRule
	logger EvaluatorLogger
}

type preparedRule struct {
	Rule
	engine  string
	program CompiledRule
}

// NewValidator builds a validator for schema. Rule engines, program cache,
// custom functions and evaluator logging come from opts. Every rule is
// compiled here, so a broken expression fails construction.
func NewValidator(schema Schema, opts ...Option) (*Validator, error) {
	cfg := applyOptions(opts)
	return newValidator(schema, cfg)
}

func newValidator(schema Schema, cfg storeConfig) (*Validator, error) {
	if err := schema.Check(); err != nil {
		return nil, err
	}
	v := &Validator{schema: schema, logger: cfg.evalLogger}
	evaluators := defaultEvaluators(cfg)
	sections := schema.Sections()
	for _, rule := range schema.Rules {
		engine := ruleEngine(rule)
		evaluator, ok := evaluators[engine]
		if !ok || evaluator == nil {
			return nil, fmt.Errorf("hotconfig: rule %q: %w: %s", rule.Name, ErrNoEvaluator, engine)
		}
		program, err := evaluator.Compile(rule.Expr, sections)
		if err != nil {
			return nil, fmt.Errorf("hotconfig: rule %q: %w", rule.Name, ruleError(engine, rule, err))
		}
		v.rules = append(v.rules, preparedRule{Rule: rule, engine: engine, program: program})
	}
	return v, nil
}

func defaultEvaluators(cfg storeConfig) map[string]Evaluator {
	engineOpts := func(engine string) []EngineOption {
		return []EngineOption{
			EngineCache(namespaced(engine, cfg.programCache)),
			EngineFunctions(cfg.functions),
		}
	}
	out := map[string]Evaluator{
		EngineExpr: NewExprEvaluator(engineOpts(EngineExpr)...),
		EngineCEL:  NewCELEvaluator(engineOpts(EngineCEL)...),
	}
	if js := NewJSEvaluator(engineOpts(EngineJS)...); js != nil {
		out[EngineJS] = js
	}
	for name, e := range cfg.evaluators {
		if e == nil {
			delete(out, name)
			continue
		}
		out[name] = e
	}
	return out
}

// Schema returns the schema the validator enforces.
func (v *Validator) Schema() Schema {
	return v.schema
}

// Validate normalises doc to the declared types and checks every field
// constraint and rule. The returned document is a normalised copy; doc is
// never modified. A *ValidationError lists every failing field.
func (v *Validator) Validate(doc Document) (Document, error) {
	normalized := Document{}
	var fields []FieldError

	sections := make([]string, 0, len(doc))
	for name := range doc {
		sections = append(sections, name)
	}
	sort.Strings(sections)

	for _, section := range sections {
		values := doc[section]
		out := make(map[string]any, len(values))
		keys := make([]string, 0, len(values))
		for key := range values {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			raw := values[key]
			field, declared := v.schema.Lookup(section, key)
			if !declared {
				if v.schema.Strict {
					fields = append(fields, FieldError{Section: section, Key: key, Message: "unknown field", Value: raw})
					continue
				}
				out[key] = layering.Clone(raw)
				continue
			}
			value, err := normalizeValue(field, raw)
			if err != nil {
				fields = append(fields, FieldError{Section: section, Key: key, Message: err.Error(), Value: raw})
				continue
			}
			if msg := checkConstraints(field, value); msg != "" {
				fields = append(fields, FieldError{Section: section, Key: key, Message: msg, Value: value})
				continue
			}
			out[key] = value
		}
		normalized[section] = out
	}

	effective := v.schema.Defaults()
	for section, values := range normalized {
		if _, ok := effective[section]; !ok {
			effective[section] = map[string]any{}
		}
		for key, value := range values {
			effective[section][key] = value
		}
	}

	for _, f := range v.schema.Fields {
		if !f.Required {
			continue
		}
		value, ok := effective.Lookup(f.Section, f.Key)
		if !ok || value == nil || value == "" {
			if !hasFieldError(fields, f.Section, f.Key) {
				fields = append(fields, FieldError{Section: f.Section, Key: f.Key, Message: "required"})
			}
		}
	}

	// Rules only see a document whose fields are individually valid.
	if len(fields) == 0 {
		fields = append(fields, v.evaluateRules(effective)...)
	}

	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	return normalized, nil
}

func (v *Validator) evaluateRules(effective Document) []FieldError {
	if len(v.rules) == 0 {
		return nil
	}
	env := RuleEnv{Sections: effective.asMap(), Now: time.Now()}
	// declared sections are always present, even when empty
	for _, section := range v.schema.Sections() {
		if _, ok := env.Sections[section]; !ok {
			env.Sections[section] = map[string]any{}
		}
	}
	var out []FieldError
	for _, rule := range v.rules {
		ok, err := v.evaluateRule(rule, env)
		if err == nil && ok {
			continue
		}
		message := rule.Message
		if message == "" {
			message = fmt.Sprintf("violates rule %q", rule.Name)
		}
		if err != nil {
			message = fmt.Sprintf("rule %q could not be evaluated: %v", rule.Name, err)
		}
		targets := rule.Fields
		if len(targets) == 0 {
			targets = []string{rule.Name}
		}
		for _, target := range targets {
			section, key := splitPath(target)
			out = append(out, FieldError{Section: section, Key: key, Message: message, Rule: rule.Name, Err: err})
		}
	}
	return out
}

func (v *Validator) evaluateRule(rule preparedRule, env RuleEnv) (bool, error) {
	start := time.Now()
	result, err := rule.program.Eval(env)
	if err == nil {
		if _, isBool := result.(bool); !isBool {
			err = fmt.Errorf("expected bool result, got %T", result)
		}
	}
	err = ruleError(rule.engine, rule.Rule, err)
	v.logger.LogEvaluation(EvaluatorLogEvent{
		Engine:   rule.engine,
		Expr:     rule.Expr,
		Rule:     rule.Name,
		Duration: time.Since(start),
		Err:      err,
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

func ruleEngine(rule Rule) string {
	if rule.Engine == "" {
		return EngineExpr
	}
	return strings.ToLower(rule.Engine)
}

func splitPath(path string) (string, string) {
	section, key, ok := strings.Cut(path, ".")
	if !ok {
		return "", path
	}
	return section, key
}

func hasFieldError(fields []FieldError, section, key string) bool {
	for _, f := range fields {
		if f.Section == section && f.Key == key {
			return true
		}
	}
	return false
}

// checkField normalises value and checks its constraints, returning a
// message when it is not acceptable.
func checkField(f Field, value any) string {
	normalized, err := normalizeValue(f, value)
	if err != nil {
		return err.Error()
	}
	return checkConstraints(f, normalized)
}

var errWrongType = errors.New("wrong type")

// normalizeValue coerces value to the canonical Go type for f.Type: int,
// float64, bool or string. Durations and URLs are kept as strings.
func normalizeValue(f Field, value any) (any, error) {
	switch f.Type {
	case TypeInt:
		n, ok := asInt(value)
		if !ok {
			return nil, fmt.Errorf("%w: expected integer, got %s", errWrongType, describe(value))
		}
		return n, nil
	case TypeFloat:
		n, ok := asFloat(value)
		if !ok {
			return nil, fmt.Errorf("%w: expected number, got %s", errWrongType, describe(value))
		}
		return n, nil
	case TypeBool:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: expected boolean, got %s", errWrongType, describe(value))
		}
		return b, nil
	case TypeDuration:
		switch typed := value.(type) {
		case time.Duration:
			return typed.String(), nil
		case string:
			if _, err := time.ParseDuration(typed); err != nil {
				return nil, fmt.Errorf("invalid duration %q", typed)
			}
			return typed, nil
		}
		return nil, fmt.Errorf("%w: expected duration string, got %s", errWrongType, describe(value))
	case TypeURL:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: expected URL string, got %s", errWrongType, describe(value))
		}
		u, err := url.Parse(s)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid URL %q", s)
		}
		return s, nil
	default:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: expected string, got %s", errWrongType, describe(value))
		}
		return s, nil
	}
}

// checkConstraints applies Min/Max, Enum and Pattern to a normalised value.
// Min and Max bound numbers by value, strings and URLs by length and
// durations in seconds.
func checkConstraints(f Field, value any) string {
	if f.Min != nil || f.Max != nil {
		measure, unit := measureOf(f, value)
		if f.Min != nil && measure < *f.Min {
			return fmt.Sprintf("must be >= %s%s", formatBound(*f.Min), unit)
		}
		if f.Max != nil && measure > *f.Max {
			return fmt.Sprintf("must be <= %s%s", formatBound(*f.Max), unit)
		}
	}
	if len(f.Enum) > 0 {
		allowed := false
		for _, candidate := range f.Enum {
			normalized, err := normalizeValue(f, candidate)
			if err == nil && reflect.DeepEqual(normalized, value) {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Sprintf("must be one of %v", f.Enum)
		}
	}
	if f.Pattern != "" {
		s, ok := value.(string)
		if !ok {
			s = fmt.Sprint(value)
		}
		re, err := compilePattern(f.Pattern)
		if err != nil {
			return err.Error()
		}
		if !re.MatchString(s) {
			return fmt.Sprintf("must match %q", f.Pattern)
		}
	}
	return ""
}

func measureOf(f Field, value any) (float64, string) {
	switch f.Type {
	case TypeInt, TypeFloat:
		n, _ := asFloat(value)
		return n, ""
	case TypeDuration:
		d, _ := time.ParseDuration(value.(string))
		return d.Seconds(), "s"
	case TypeBool:
		return 0, ""
	default:
		return float64(len(fmt.Sprint(value))), " characters"
	}
}

func formatBound(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}

var patternCache sync.Map

func compilePattern(pattern string) (*regexp.Regexp, error) {
	if cached, ok := patternCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	patternCache.Store(pattern, re)
	return re, nil
}

func asInt(value any) (int, bool) {
	switch n := value.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int(n), true
	case float32:
		return asInt(float64(n))
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

func asFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	if i, ok := asInt(value); ok {
		return float64(i), true
	}
	return 0, false
}

func describe(value any) string {
	if value == nil {
		return "null"
	}
	return fmt.Sprintf("%T", value)
}
