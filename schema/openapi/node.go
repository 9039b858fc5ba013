package openapi

import (
	"time"

	hotconfig "github.com/goliatone/go-hotconfig"
)

type schemaNode struct {
	Type        string
	Format      string
	Description string
	Enum        []any
	Default     any
	Minimum     *float64
	Maximum     *float64
	MinLength   *int
	MaxLength   *int
	Pattern     string
	WriteOnly   bool
	extensions  map[string]any
}

// nodeForField maps a declared field onto JSON Schema keywords. Bounds on
// strings and URLs become length limits; bounds on durations stay in
// seconds and are published as extensions.
func nodeForField(f hotconfig.Field) *schemaNode {
	n := &schemaNode{
		Description: f.Description,
		Enum:        f.Enum,
		Default:     f.Default,
		Pattern:     f.Pattern,
		WriteOnly:   f.Secret,
		extensions:  map[string]any{},
	}
	switch f.Type {
	case hotconfig.TypeInt:
		n.Type = "integer"
		n.Minimum, n.Maximum = f.Min, f.Max
	case hotconfig.TypeFloat:
		n.Type = "number"
		n.Minimum, n.Maximum = f.Min, f.Max
	case hotconfig.TypeBool:
		n.Type = "boolean"
	case hotconfig.TypeURL:
		n.Type = "string"
		n.Format = "uri"
		n.MinLength, n.MaxLength = lengthBound(f.Min), lengthBound(f.Max)
	case hotconfig.TypeDuration:
		n.Type = "string"
		n.Format = "duration"
		if d, ok := f.Default.(time.Duration); ok {
			n.Default = d.String()
		}
		if f.Min != nil {
			n.extensions["x-minimum-seconds"] = *f.Min
		}
		if f.Max != nil {
			n.extensions["x-maximum-seconds"] = *f.Max
		}
	default:
		n.Type = "string"
		n.MinLength, n.MaxLength = lengthBound(f.Min), lengthBound(f.Max)
	}
	if f.Required {
		n.extensions["x-required"] = true
	}
	return n
}

func lengthBound(v *float64) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

func (n *schemaNode) baseMap() map[string]any {
	result := map[string]any{}
	if n.Type != "" {
		result["type"] = n.Type
	}
	if n.Format != "" {
		result["format"] = n.Format
	}
	if n.Description != "" {
		result["description"] = n.Description
	}
	if n.Default != nil && !n.WriteOnly {
		result["default"] = n.Default
	}
	if len(n.Enum) > 0 {
		result["enum"] = n.Enum
	}
	if n.Minimum != nil {
		result["minimum"] = *n.Minimum
	}
	if n.Maximum != nil {
		result["maximum"] = *n.Maximum
	}
	if n.MinLength != nil {
		result["minLength"] = *n.MinLength
	}
	if n.MaxLength != nil {
		result["maxLength"] = *n.MaxLength
	}
	if n.Pattern != "" {
		result["pattern"] = n.Pattern
	}
	if n.WriteOnly {
		result["writeOnly"] = true
	}
	for key, value := range n.extensions {
		result[key] = value
	}
	return result
}
