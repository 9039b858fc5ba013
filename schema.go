package hotconfig

import (
	"fmt"
	"sort"
	"time"
)

// FieldType is the declared type of a configuration key.
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeInt      FieldType = "int"
	TypeFloat    FieldType = "float"
	TypeBool     FieldType = "bool"
	TypeURL      FieldType = "url"
	TypeDuration FieldType = "duration"
)

// Rule engines.
const (
	EngineExpr = "expr"
	EngineCEL  = "cel"
	EngineJS   = "js"
)

// Field declares one key of a section with its constraints.
type Field struct {
	Section     string    `json:"section"`
	Key         string    `json:"key"`
	Type        FieldType `json:"type"`
	Min         *float64  `json:"min,omitempty"`
	Max         *float64  `json:"max,omitempty"`
	Enum        []any     `json:"enum,omitempty"`
	Pattern     string    `json:"pattern,omitempty"`
	Required    bool      `json:"required,omitempty"`
	Default     any       `json:"default,omitempty"`
	Description string    `json:"description,omitempty"`
	Secret      bool      `json:"secret,omitempty"`
}

// Path returns the dotted section.key path.
func (f Field) Path() string {
	return f.Section + "." + f.Key
}

// Rule is a cross-field constraint. Expr must evaluate to a boolean against
// the effective document, where each section is a top-level variable.
type Rule struct {
	Name    string   `json:"name"`
	Expr    string   `json:"expr"`
	Engine  string   `json:"engine,omitempty"`
	Fields  []string `json:"fields,omitempty"`
	Message string   `json:"message,omitempty"`
}

// Schema is the ordered list of declared fields plus cross-field rules.
type Schema struct {
	Fields []Field `json:"fields"`
	Rules  []Rule  `json:"rules,omitempty"`
	// Strict rejects keys and sections that are not declared.
	Strict bool `json:"strict,omitempty"`
}

// Bound is a convenience for populating Field.Min and Field.Max.
func Bound(v float64) *float64 {
	return &v
}

// Lookup returns the field declared for section.key.
func (s Schema) Lookup(section, key string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Section == section && f.Key == key {
			return f, true
		}
	}
	return Field{}, false
}

// Sections returns declared section names in declaration order.
func (s Schema) Sections() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, f := range s.Fields {
		if _, ok := seen[f.Section]; ok {
			continue
		}
		seen[f.Section] = struct{}{}
		out = append(out, f.Section)
	}
	return out
}

// SectionFields returns the fields declared for section in order.
func (s Schema) SectionFields(section string) []Field {
	var out []Field
	for _, f := range s.Fields {
		if f.Section == section {
			out = append(out, f)
		}
	}
	return out
}

// Defaults builds a document holding every declared default. Every declared
// section is present, even when it has no defaults.
func (s Schema) Defaults() Document {
	doc := Document{}
	for _, f := range s.Fields {
		if _, ok := doc[f.Section]; !ok {
			doc[f.Section] = map[string]any{}
		}
		if f.Default == nil {
			continue
		}
		if v, err := normalizeValue(f, f.Default); err == nil {
			doc[f.Section][f.Key] = v
		}
	}
	return doc
}

// Check reports schema declaration mistakes: duplicate fields, unknown
// types, defaults that violate their own constraints, rules without an
// expression.
func (s Schema) Check() error {
	seen := map[string]struct{}{}
	for _, f := range s.Fields {
		if f.Section == "" || f.Key == "" {
			return fmt.Errorf("hotconfig: schema field %q has an empty section or key", f.Path())
		}
		if _, ok := seen[f.Path()]; ok {
			return fmt.Errorf("hotconfig: schema field %q declared twice", f.Path())
		}
		seen[f.Path()] = struct{}{}
		if !f.Type.valid() {
			return fmt.Errorf("hotconfig: schema field %q has unknown type %q", f.Path(), f.Type)
		}
		if f.Pattern != "" {
			if _, err := compilePattern(f.Pattern); err != nil {
				return fmt.Errorf("hotconfig: schema field %q: %w", f.Path(), err)
			}
		}
		if f.Default != nil {
			if msg := checkField(f, f.Default); msg != "" {
				return fmt.Errorf("hotconfig: schema field %q default: %s", f.Path(), msg)
			}
		}
	}
	for _, r := range s.Rules {
		if r.Expr == "" {
			return fmt.Errorf("hotconfig: schema rule %q has no expression", r.Name)
		}
	}
	return nil
}

func (t FieldType) valid() bool {
	switch t {
	case TypeString, TypeInt, TypeFloat, TypeBool, TypeURL, TypeDuration:
		return true
	}
	return false
}

func (t FieldType) zero() any {
	switch t {
	case TypeInt:
		return 0
	case TypeFloat:
		return float64(0)
	case TypeBool:
		return false
	case TypeDuration:
		return time.Duration(0).String()
	default:
		return ""
	}
}

// FieldDescriptor describes a path and its type.
type FieldDescriptor struct {
	Path string
	Type string
}

// Descriptors flattens the schema and any undeclared keys present in doc into
// sorted path/type pairs.
func (s Schema) Descriptors(doc Document) []FieldDescriptor {
	seen := map[string]struct{}{}
	var out []FieldDescriptor
	for _, f := range s.Fields {
		seen[f.Path()] = struct{}{}
		out = append(out, FieldDescriptor{Path: f.Path(), Type: string(f.Type)})
	}
	for _, d := range deriveFieldDescriptors(doc.asMap(), "") {
		if _, ok := seen[d.Path]; ok {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func deriveFieldDescriptors(value any, prefix string) []FieldDescriptor {
	if value == nil {
		return nil
	}

	switch typed := value.(type) {
	case map[string]any:
		if len(typed) == 0 {
			if prefix == "" {
				return nil
			}
			return []FieldDescriptor{{Path: prefix, Type: "map[string]any"}}
		}
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		var fields []FieldDescriptor
		for _, key := range keys {
			fields = append(fields, deriveFieldDescriptors(typed[key], joinPath(prefix, key))...)
		}
		return fields
	case []any:
		elementType := "any"
		if len(typed) > 0 {
			elementType = typeName(typed[0])
		}
		return []FieldDescriptor{{Path: prefix, Type: "[]" + elementType}}
	default:
		if prefix == "" {
			return nil
		}
		return []FieldDescriptor{{Path: prefix, Type: typeName(typed)}}
	}
}

func typeName(value any) string {
	if value == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", value)
}

func joinPath(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return prefix + "." + segment
}
