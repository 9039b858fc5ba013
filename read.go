package hotconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-hotconfig/internal/hydrate"
	"github.com/goliatone/go-hotconfig/layering"
)

// RedactedValue replaces secret values in summaries and audit events.
const RedactedValue = "******"

// Get returns the active value for section.key. When the key is absent it
// returns the schema default, then the zero value of the declared type, then
// nil for undeclared keys. It never blocks.
func (s *Store) Get(section, key string) any {
	snap := s.active.Load()
	if value, ok := snap.effective.Lookup(section, key); ok {
		return layering.Clone(value)
	}
	if field, ok := s.validator.Schema().Lookup(section, key); ok {
		return field.Type.zero()
	}
	return nil
}

// String returns the value for section.key formatted as a string.
func (s *Store) String(section, key string) string {
	switch v := s.Get(section, key).(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// Int returns the value for section.key as an int, or 0.
func (s *Store) Int(section, key string) int {
	n, _ := asInt(s.Get(section, key))
	return n
}

// Float returns the value for section.key as a float64, or 0.
func (s *Store) Float(section, key string) float64 {
	n, _ := asFloat(s.Get(section, key))
	return n
}

// Bool returns the value for section.key as a bool, or false.
func (s *Store) Bool(section, key string) bool {
	b, _ := s.Get(section, key).(bool)
	return b
}

// Duration parses the value for section.key, or returns 0.
func (s *Store) Duration(section, key string) time.Duration {
	switch v := s.Get(section, key).(type) {
	case time.Duration:
		return v
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0
		}
		return d
	}
	return 0
}

// Section returns a copy of the effective values for one section.
func (s *Store) Section(name string) map[string]any {
	values, ok := s.active.Load().effective[name]
	if !ok {
		return map[string]any{}
	}
	return layering.Clone(values)
}

// Bind decodes the effective values of section into dst, a pointer to a
// struct tagged with json names. Duration fields decode into time.Duration.
// When dst implements Validate() error it is called after decoding.
func (s *Store) Bind(section string, dst any) error {
	decoder := hydrate.NewDecoder(
		hydrate.WithPreHook(s.durationsAsNanos),
		hydrate.WithPostHook(hydrate.Validate),
	)
	return decoder.Decode(hydrate.Context{Section: section}, s.Section(section), dst)
}

func (s *Store) durationsAsNanos(ctx hydrate.Context, values map[string]any) (map[string]any, error) {
	for _, f := range s.validator.Schema().SectionFields(ctx.Section) {
		if f.Type != TypeDuration {
			continue
		}
		raw, ok := values[f.Key].(string)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Path(), err)
		}
		values[f.Key] = int64(d)
	}
	return values, nil
}

// Summary returns the effective document with secret fields masked.
func (s *Store) Summary() Document {
	doc := s.Effective()
	for _, f := range s.validator.Schema().Fields {
		if !f.Secret {
			continue
		}
		if values, ok := doc[f.Section]; ok {
			if value, present := values[f.Key]; present {
				values[f.Key] = redact(value)
			}
		}
	}
	return doc
}

func redact(value any) any {
	if value == nil || value == "" {
		return value
	}
	return RedactedValue
}

func firstSegment(path string) string {
	head, _, _ := strings.Cut(path, ".")
	return head
}
