package openapi

import (
	"fmt"
	"sort"
	"strings"

	hotconfig "github.com/goliatone/go-hotconfig"
)

type openAPIDocumentBuilder struct {
	config   generatorConfig
	registry *componentRegistry
	schema   hotconfig.Schema
	sections map[string]string
}

func newOpenAPIDocumentBuilder(config generatorConfig, schema hotconfig.Schema) *openAPIDocumentBuilder {
	return &openAPIDocumentBuilder{
		config:   config,
		registry: newComponentRegistry(),
		schema:   schema,
		sections: map[string]string{},
	}
}

func (b *openAPIDocumentBuilder) build() (map[string]any, error) {
	sections := b.schema.Sections()
	if len(sections) == 0 {
		return nil, fmt.Errorf("openapi: schema declares no sections")
	}

	properties := make(map[string]any, len(sections))
	for _, section := range sections {
		ref := b.registry.add(componentName(section, "section"), sectionSchema(b.schema, section))
		b.sections[section] = ref
		properties[section] = map[string]any{"$ref": ref}
	}

	root := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if rules := b.rules(); len(rules) > 0 {
		root["x-rules"] = rules
	}
	b.registry.add("Configuration", root)
	b.registerSupportComponents()

	document := map[string]any{
		"openapi": b.config.openAPIVersion,
		"info":    b.buildInfo(),
		"paths":   b.buildPaths(sections),
	}

	if components := b.registry.componentsMap(); components != nil {
		document["components"] = map[string]any{
			"schemas": components,
		}
	}

	if err := validateDocument(document); err != nil {
		return nil, err
	}

	return document, nil
}

func (b *openAPIDocumentBuilder) buildInfo() map[string]any {
	info := map[string]any{
		"title":   b.config.info.Title,
		"version": b.config.info.Version,
	}
	if b.config.info.Description != "" {
		info["description"] = b.config.info.Description
	}
	return info
}

func (b *openAPIDocumentBuilder) rules() []any {
	out := make([]any, 0, len(b.schema.Rules))
	for _, rule := range b.schema.Rules {
		entry := map[string]any{
			"name": rule.Name,
			"expr": rule.Expr,
		}
		if rule.Engine != "" {
			entry["engine"] = rule.Engine
		}
		if len(rule.Fields) > 0 {
			entry["fields"] = append([]string(nil), rule.Fields...)
		}
		if rule.Message != "" {
			entry["message"] = rule.Message
		}
		out = append(out, entry)
	}
	return out
}

func (b *openAPIDocumentBuilder) registerSupportComponents() {
	b.registry.add("FieldError", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string"},
			"message": map[string]any{"type": "string"},
			"rule":    map[string]any{"type": "string"},
		},
	})
	b.registry.add("ValidationFailure", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"error": map[string]any{"type": "string"},
			"fields": map[string]any{
				"type":  "array",
				"items": map[string]any{"$ref": "#/components/schemas/FieldError"},
			},
		},
	})
	b.registry.add("Change", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id":            map[string]any{"type": "string", "format": "uuid"},
			"source":        map[string]any{"type": "string", "enum": []any{"update", "rollback", "external"}},
			"noop":          map[string]any{"type": "boolean"},
			"backup_id":     map[string]any{"type": "string"},
			"restored_from": map[string]any{"type": "string"},
			"checksum":      map[string]any{"type": "string"},
			"applied_at":    map[string]any{"type": "string", "format": "date-time"},
			"fields": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"path": map[string]any{"type": "string"},
						"old":  map[string]any{},
						"new":  map[string]any{},
					},
				},
			},
		},
	})
	b.registry.add("Backup", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id":         map[string]any{"type": "string"},
			"path":       map[string]any{"type": "string"},
			"checksum":   map[string]any{"type": "string"},
			"created_at": map[string]any{"type": "string", "format": "date-time"},
			"size":       map[string]any{"type": "integer"},
		},
	})
	b.registry.add("RollbackRequest", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id": map[string]any{"type": "string", "default": "latest"},
		},
	})
}

func (b *openAPIDocumentBuilder) buildPaths(sections []string) map[string]any {
	base := b.config.basePath
	paths := map[string]any{
		base + "/config": map[string]any{
			"get": b.operation("getConfig", "Read the active configuration", "", map[string]any{
				"200": b.response("Active configuration with secrets redacted", map[string]any{"$ref": "#/components/schemas/Configuration"}),
			}),
		},
		base + "/backups": map[string]any{
			"get": b.operation("listBackups", "List configuration backups", "", map[string]any{
				"200": b.response("Backups, oldest first", map[string]any{
					"type":  "array",
					"items": map[string]any{"$ref": "#/components/schemas/Backup"},
				}),
			}),
		},
		base + "/rollback": map[string]any{
			"post": b.operation("rollback", "Restore a backup", "#/components/schemas/RollbackRequest", map[string]any{
				"200": b.response("Restored", map[string]any{"$ref": "#/components/schemas/Change"}),
				"404": b.response("Backup not found", nil),
			}),
		},
		base + "/schema": map[string]any{
			"get": b.operation("getSchema", "Describe the configuration schema", "", map[string]any{
				"200": b.response("OpenAPI document", map[string]any{"type": "object"}),
			}),
		},
	}

	for _, section := range sections {
		ref := b.sections[section]
		id := componentName(section)
		paths[fmt.Sprintf("%s/config/%s", base, section)] = map[string]any{
			"get": b.operation("get"+id, fmt.Sprintf("Read the %s section", section), "", map[string]any{
				"200": b.response("Section values", map[string]any{"$ref": ref}),
			}),
			"patch": b.operation("update"+id, fmt.Sprintf("Update the %s section", section), ref, map[string]any{
				"200": b.response("Applied", map[string]any{"$ref": "#/components/schemas/Change"}),
				"422": b.response("Validation failed", map[string]any{"$ref": "#/components/schemas/ValidationFailure"}),
				"500": b.response("Persist failed", nil),
			}),
		}
	}
	return paths
}

func (b *openAPIDocumentBuilder) operation(id, summary, requestRef string, responses map[string]any) map[string]any {
	operation := map[string]any{
		"operationId": id,
		"responses":   responses,
	}
	if summary = strings.TrimSpace(summary); summary != "" {
		operation["summary"] = summary
	}
	if requestRef != "" {
		operation["requestBody"] = map[string]any{
			"required": true,
			"content": map[string]any{
				b.config.contentType: map[string]any{
					"schema": map[string]any{"$ref": requestRef},
				},
			},
		}
	}
	return operation
}

func (b *openAPIDocumentBuilder) response(description string, schema map[string]any) map[string]any {
	resp := map[string]any{"description": description}
	if schema != nil {
		resp["content"] = map[string]any{
			b.config.contentType: map[string]any{"schema": schema},
		}
	}
	return resp
}

// sectionSchema renders one section as an object schema. Required fields are
// flagged with x-required rather than listed under required so partial
// PATCH bodies stay valid.
func sectionSchema(schema hotconfig.Schema, section string) map[string]any {
	fields := schema.SectionFields(section)
	properties := make(map[string]any, len(fields))
	var required []string
	for _, field := range fields {
		properties[field.Key] = nodeForField(field).baseMap()
		if field.Required {
			required = append(required, field.Key)
		}
	}
	result := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sort.Strings(required)
		result["x-required"] = required
	}
	if schema.Strict {
		result["additionalProperties"] = false
	}
	return result
}

var bodyMethods = map[string]bool{"post": true, "put": true, "patch": true}

func validateDocument(document map[string]any) error {
	if document == nil {
		return fmt.Errorf("openapi: document cannot be nil")
	}
	openapi, _ := document["openapi"].(string)
	if openapi == "" {
		return fmt.Errorf("openapi: document missing version string")
	}
	info, _ := document["info"].(map[string]any)
	if info == nil {
		return fmt.Errorf("openapi: document missing info section")
	}
	if title, _ := info["title"].(string); title == "" {
		return fmt.Errorf("openapi: info.title must be set")
	}
	if version, _ := info["version"].(string); version == "" {
		return fmt.Errorf("openapi: info.version must be set")
	}
	paths, _ := document["paths"].(map[string]any)
	if len(paths) == 0 {
		return fmt.Errorf("openapi: document must define at least one path")
	}
	for pathKey, pathValue := range paths {
		pathItem, _ := pathValue.(map[string]any)
		if pathItem == nil {
			return fmt.Errorf("openapi: path %q invalid payload", pathKey)
		}
		if len(pathItem) == 0 {
			return fmt.Errorf("openapi: path %q missing operations", pathKey)
		}
		for method, operationValue := range pathItem {
			operation, _ := operationValue.(map[string]any)
			if operation == nil {
				return fmt.Errorf("openapi: operation %s %s invalid payload", method, pathKey)
			}
			if _, ok := operation["operationId"].(string); !ok {
				return fmt.Errorf("openapi: operation %s %s missing operationId", method, pathKey)
			}
			if bodyMethods[method] {
				requestBody, _ := operation["requestBody"].(map[string]any)
				if requestBody == nil {
					return fmt.Errorf("openapi: operation %s %s missing requestBody", method, pathKey)
				}
				content, _ := requestBody["content"].(map[string]any)
				if len(content) == 0 {
					return fmt.Errorf("openapi: operation %s %s requestBody missing content", method, pathKey)
				}
			}
			if _, ok := operation["responses"].(map[string]any); !ok {
				return fmt.Errorf("openapi: operation %s %s missing responses", method, pathKey)
			}
		}
	}
	return nil
}
