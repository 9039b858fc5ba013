// Package openapi renders a hotconfig Schema as an OpenAPI document so
// administrative forms show the same constraints the validator enforces.
package openapi

import (
	"fmt"

	hotconfig "github.com/goliatone/go-hotconfig"
)

// Generator builds OpenAPI documents for configuration schemas.
type Generator struct {
	config generatorConfig
}

// New constructs a Generator.
func New(opts ...GeneratorOption) *Generator {
	cfg := defaultGeneratorConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Generator{config: cfg}
}

// Generate returns the OpenAPI document describing the administrative
// routes and one component per schema section.
func (g *Generator) Generate(schema hotconfig.Schema) (map[string]any, error) {
	if g == nil {
		g = New()
	}
	if err := schema.Check(); err != nil {
		return nil, fmt.Errorf("openapi: %w", err)
	}
	return newOpenAPIDocumentBuilder(g.config, schema).build()
}

// SectionSchema returns the JSON Schema object for a single section, or nil
// when the section is not declared.
func SectionSchema(schema hotconfig.Schema, section string) map[string]any {
	if len(schema.SectionFields(section)) == 0 {
		return nil
	}
	return sectionSchema(schema, section)
}
