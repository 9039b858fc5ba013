package hotconfig

import (
	"errors"
	"fmt"
	"strings"
)

// EvaluationError reports a rule that failed to compile or did not produce a
// boolean. Fields lists the rule's targets, the paths that carry the failure
// in the enclosing ValidationError.
type EvaluationError struct {
	Engine string
	Expr   string
	Rule   string
	Fields []string
	Err    error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString("hotconfig: ")
	if e.Rule != "" {
		fmt.Fprintf(&b, "rule %q ", e.Rule)
	}
	fmt.Fprintf(&b, "(%s", e.Engine)
	if e.Expr != "" {
		fmt.Fprintf(&b, " %q", e.Expr)
	}
	b.WriteString(")")
	if len(e.Fields) > 0 {
		fmt.Fprintf(&b, " on %s", strings.Join(e.Fields, ", "))
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// compileError is what engines return when an expression cannot be
// prepared. The validator adds the rule afterwards.
func compileError(engine, expr string, err error) error {
	if err == nil {
		return nil
	}
	return &EvaluationError{Engine: engine, Expr: expr, Err: err}
}

// ruleError ties err to rule. An EvaluationError already in the chain is
// completed in place; fields an engine set are kept.
func ruleError(engine string, rule Rule, err error) error {
	if err == nil {
		return nil
	}
	var evalErr *EvaluationError
	if !errors.As(err, &evalErr) {
		evalErr = &EvaluationError{Err: err}
	}
	if evalErr.Engine == "" {
		evalErr.Engine = engine
	}
	if evalErr.Expr == "" {
		evalErr.Expr = rule.Expr
	}
	if evalErr.Rule == "" {
		evalErr.Rule = rule.Name
	}
	if len(evalErr.Fields) == 0 && len(rule.Fields) > 0 {
		evalErr.Fields = append([]string(nil), rule.Fields...)
	}
	return evalErr
}
