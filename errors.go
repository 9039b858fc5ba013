package hotconfig

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrLoad reports a missing, unreadable or malformed document at startup.
	ErrLoad = errors.New("hotconfig: load failed")
	// ErrValidation reports a document that violates the schema.
	ErrValidation = errors.New("hotconfig: validation failed")
	// ErrNotFound reports a missing rollback target.
	ErrNotFound = errors.New("hotconfig: backup not found")
	// ErrReloadHandler reports a reload handler failure.
	ErrReloadHandler = errors.New("hotconfig: reload handler failed")
	// ErrPersist reports a storage failure while writing an accepted change.
	ErrPersist = errors.New("hotconfig: persist failed")
	// ErrClosed is returned by writers after Close.
	ErrClosed = errors.New("hotconfig: store closed")
	// ErrNoEvaluator reports a rule whose engine is not available.
	ErrNoEvaluator = errors.New("hotconfig: evaluator not configured")
)

// LoadError wraps a failure to produce the initial document.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("hotconfig: load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Is(target error) bool { return target == ErrLoad }

// FieldError names one offending field.
type FieldError struct {
	Section string `json:"section"`
	Key     string `json:"key"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Err     error  `json:"-"`
}

// Path returns the dotted field path.
func (f FieldError) Path() string {
	if f.Key == "" {
		return f.Section
	}
	if f.Section == "" {
		return f.Key
	}
	return f.Section + "." + f.Key
}

func (f FieldError) Error() string {
	return f.Path() + ": " + f.Message
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Unwrap exposes rule evaluation failures so errors.As can reach an
// EvaluationError.
func (e *ValidationError) Unwrap() []error {
	if e == nil {
		return nil
	}
	var out []error
	for _, f := range e.Fields {
		if f.Err != nil {
			out = append(out, f.Err)
		}
	}
	return out
}

// Has reports whether name matches a failed field, either as a bare key or a
// dotted section.key path.
func (e *ValidationError) Has(name string) bool {
	if e == nil {
		return false
	}
	for _, f := range e.Fields {
		if f.Key == name || f.Path() == name {
			return true
		}
	}
	return false
}

// Paths returns the sorted, de-duplicated dotted paths of failed fields.
func (e *ValidationError) Paths() []string {
	if e == nil {
		return nil
	}
	seen := map[string]struct{}{}
	var out []string
	for _, f := range e.Fields {
		p := f.Path()
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// NotFoundError reports a backup id that does not exist.
type NotFoundError struct {
	ID  string
	Err error
}

func (e *NotFoundError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("hotconfig: backup %q not found", e.ID)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ReloadHandlerError reports a handler that returned an error, panicked or
// timed out. It never undoes the change that triggered it.
type ReloadHandlerError struct {
	Handler string
	Err     error
}

func (e *ReloadHandlerError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("hotconfig: reload handler %q: %v", e.Handler, e.Err)
}

func (e *ReloadHandlerError) Unwrap() error { return e.Err }

func (e *ReloadHandlerError) Is(target error) bool { return target == ErrReloadHandler }

// PersistError reports a storage failure. The previously active document is
// still active when it is returned.
type PersistError struct {
	Op   string
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("hotconfig: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

func (e *PersistError) Is(target error) bool { return target == ErrPersist }
