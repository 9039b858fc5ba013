// Package codec reads and writes configuration documents in the formats the
// store accepts on disk. The format is chosen from the file extension.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format identifies an on-disk encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// Detect picks a format from the path extension, defaulting to YAML.
func Detect(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}

// Ext returns the canonical file extension for f.
func (f Format) Ext() string {
	switch f {
	case FormatTOML:
		return ".toml"
	case FormatJSON:
		return ".json"
	default:
		return ".yaml"
	}
}

// Decode parses raw into a section map. Empty input yields an empty map.
func Decode(format Format, raw []byte) (map[string]map[string]any, error) {
	generic := map[string]any{}
	if len(bytes.TrimSpace(raw)) > 0 {
		var err error
		switch format {
		case FormatTOML:
			err = toml.Unmarshal(raw, &generic)
		case FormatJSON:
			err = json.Unmarshal(raw, &generic)
		default:
			err = yaml.Unmarshal(raw, &generic)
		}
		if err != nil {
			return nil, fmt.Errorf("codec: decode %s: %w", format, err)
		}
	}

	out := make(map[string]map[string]any, len(generic))
	for name, value := range generic {
		section, err := toSection(value)
		if err != nil {
			return nil, fmt.Errorf("codec: section %q: %w", name, err)
		}
		out[name] = section
	}
	return out, nil
}

// Encode renders doc in the requested format. Output is deterministic: map
// keys are emitted in sorted order by every encoder used here.
func Encode(format Format, doc map[string]map[string]any) ([]byte, error) {
	if doc == nil {
		doc = map[string]map[string]any{}
	}
	switch format {
	case FormatTOML:
		raw, err := toml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("codec: encode toml: %w", err)
		}
		return raw, nil
	case FormatJSON:
		raw, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("codec: encode json: %w", err)
		}
		return append(raw, '\n'), nil
	default:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("codec: encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("codec: encode yaml: %w", err)
		}
		return buf.Bytes(), nil
	}
}

func toSection(value any) (map[string]any, error) {
	switch typed := value.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return normalizeMap(typed), nil
	case map[any]any:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[fmt.Sprint(k)] = normalizeValue(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a mapping, got %T", value)
	}
}

func normalizeMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return normalizeMap(typed)
	case map[any]any:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[fmt.Sprint(k)] = normalizeValue(v)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, v := range typed {
			out[i] = normalizeValue(v)
		}
		return out
	default:
		return value
	}
}
