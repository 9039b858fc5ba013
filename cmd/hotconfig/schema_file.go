package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	hotconfig "github.com/goliatone/go-hotconfig"
	"github.com/goliatone/go-hotconfig/internal/codec"
)

// loadSchemaFile reads a schema declaration. The format follows the file
// extension the same way configuration documents do.
func loadSchemaFile(path string) (hotconfig.Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return hotconfig.Schema{}, fmt.Errorf("read schema: %w", err)
	}
	var schema hotconfig.Schema
	switch codec.Detect(path) {
	case codec.FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		err = dec.Decode(&schema)
	case codec.FormatTOML:
		err = toml.Unmarshal(raw, &schema)
	default:
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		err = dec.Decode(&schema)
	}
	if err != nil {
		return hotconfig.Schema{}, fmt.Errorf("parse schema %s: %w", path, err)
	}
	if err := schema.Check(); err != nil {
		return hotconfig.Schema{}, err
	}
	return schema, nil
}

// demoSchema is used when no schema file is given.
func demoSchema() hotconfig.Schema {
	return hotconfig.Schema{
		Fields: []hotconfig.Field{
			{Section: "transcription", Key: "timeout_s", Type: hotconfig.TypeInt, Min: hotconfig.Bound(1), Max: hotconfig.Bound(300), Default: 30, Description: "Transcription request timeout in seconds"},
			{Section: "transcription", Key: "model", Type: hotconfig.TypeString, Enum: []any{"small", "medium", "large"}, Default: "small", Description: "Speech model size"},
			{Section: "transcription", Key: "endpoint", Type: hotconfig.TypeURL, Description: "Transcription service URL"},
			{Section: "ui", Key: "theme", Type: hotconfig.TypeString, Pattern: "^(light|dark)$", Default: "light"},
			{Section: "ui", Key: "scale", Type: hotconfig.TypeFloat, Min: hotconfig.Bound(0.5), Max: hotconfig.Bound(3), Default: 1.0},
			{Section: "performance", Key: "poll", Type: hotconfig.TypeDuration, Max: hotconfig.Bound(60), Default: "5s", Description: "Status poll interval"},
			{Section: "performance", Key: "workers", Type: hotconfig.TypeInt, Min: hotconfig.Bound(1), Max: hotconfig.Bound(64), Default: 4},
			{Section: "compliance", Key: "audit", Type: hotconfig.TypeBool, Default: true},
			{Section: "compliance", Key: "api_key", Type: hotconfig.TypeString, Secret: true},
		},
		Rules: []hotconfig.Rule{
			{
				Name:    "large_model_timeout",
				Expr:    `transcription.model != "large" || transcription.timeout_s >= 60`,
				Fields:  []string{"transcription.timeout_s"},
				Message: "the large model needs timeout_s of at least 60",
			},
		},
	}
}
