package hotconfig

import (
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"
	"unicode"
)

// Function is a helper callable from rule expressions in every engine.
type Function func(args ...any) (any, error)

// FunctionRegistry holds rule helpers by name. Names are case sensitive and
// must be valid identifiers so every engine can call them.
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]Function
}

// NewFunctionRegistry constructs an empty registry.
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{functions: make(map[string]Function)}
}

// Register adds fn under name. Registering a name twice is an error.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	if fn == nil {
		return fmt.Errorf("hotconfig: function %q is nil", name)
	}
	if !isIdentifier(name) {
		return fmt.Errorf("hotconfig: function name %q is not an identifier", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.functions == nil {
		r.functions = make(map[string]Function)
	}
	if _, exists := r.functions[name]; exists {
		return fmt.Errorf("hotconfig: function %q already registered", name)
	}
	r.functions[name] = fn
	return nil
}

// Clone returns a copy that can be extended without touching r.
func (r *FunctionRegistry) Clone() *FunctionRegistry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := NewFunctionRegistry()
	for name, fn := range r.functions {
		clone.functions[name] = fn
	}
	return clone
}

// Call runs the function registered under name.
func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("hotconfig: function registry is nil")
	}
	r.mu.RLock()
	fn := r.functions[name]
	r.mu.RUnlock()
	if fn == nil {
		return nil, fmt.Errorf("hotconfig: function %q not registered", name)
	}
	return fn(args...)
}

// Names returns the registered names in sorted order.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// bind returns a plain func for engines that take one by reflection.
func (r *FunctionRegistry) bind(name string) func(args ...any) (any, error) {
	return func(args ...any) (any, error) {
		return r.Call(name, args...)
	}
}

// overlay returns a registry holding r's functions replaced or extended by
// other's.
func (r *FunctionRegistry) overlay(other *FunctionRegistry) *FunctionRegistry {
	out := r.Clone()
	if out == nil {
		out = NewFunctionRegistry()
	}
	if other == nil {
		return out
	}
	other.mu.RLock()
	defer other.mu.RUnlock()
	for name, fn := range other.functions {
		out.functions[name] = fn
	}
	return out
}

func isIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}

// builtinFunctions are available to every rule:
//
//	seconds("1m30s") == 90.0
//	host("https://api.example.com/v1") == "api.example.com"
func builtinFunctions() *FunctionRegistry {
	registry := NewFunctionRegistry()
	_ = registry.Register("seconds", durationSeconds)
	_ = registry.Register("host", urlHost)
	return registry
}

func durationSeconds(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("seconds: expected 1 argument, got %d", len(args))
	}
	switch value := args[0].(type) {
	case time.Duration:
		return value.Seconds(), nil
	case string:
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("seconds: %w", err)
		}
		return d.Seconds(), nil
	case nil:
		return 0.0, nil
	}
	return nil, fmt.Errorf("seconds: unsupported argument %T", args[0])
}

func urlHost(args ...any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("host: expected 1 argument, got %d", len(args))
	}
	raw, ok := args[0].(string)
	if !ok {
		if args[0] == nil {
			return "", nil
		}
		return nil, fmt.Errorf("host: unsupported argument %T", args[0])
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("host: %w", err)
	}
	return u.Hostname(), nil
}

// WithFunctionRegistry makes registry's functions available to rules,
// alongside the built-in seconds and host helpers.
func WithFunctionRegistry(registry *FunctionRegistry) Option {
	return func(cfg *storeConfig) {
		if registry == nil {
			return
		}
		cfg.functions = cfg.functions.overlay(registry)
	}
}

// WithCustomFunction registers a single rule helper. Invalid or duplicate
// names are ignored.
func WithCustomFunction(name string, fn Function) Option {
	return func(cfg *storeConfig) {
		if cfg.functions == nil {
			cfg.functions = NewFunctionRegistry()
		}
		_ = cfg.functions.Register(name, fn)
	}
}
