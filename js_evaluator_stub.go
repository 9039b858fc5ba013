//go:build !js_eval

package hotconfig

// NewJSEvaluator returns nil without the js_eval build tag, which leaves the
// js engine unregistered. Rules that ask for it fail schema construction
// with ErrNoEvaluator.
func NewJSEvaluator(opts ...EngineOption) Evaluator {
	return nil
}
