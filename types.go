package hotconfig

import (
	"context"
	"time"

	"github.com/goliatone/go-hotconfig/layering"
)

// Document is a sectioned configuration: section name to key to value.
type Document map[string]map[string]any

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	if d == nil {
		return Document{}
	}
	return Document(layering.Clone(map[string]map[string]any(d)))
}

// Lookup returns the value stored under section.key.
func (d Document) Lookup(section, key string) (any, bool) {
	values, ok := d[section]
	if !ok {
		return nil, false
	}
	value, ok := values[key]
	return value, ok
}

func (d Document) asMap() map[string]any {
	out := make(map[string]any, len(d))
	for name, values := range d {
		out[name] = map[string]any(values)
	}
	return out
}

// HandlerFunc is invoked with the new active document after every change.
type HandlerFunc func(ctx context.Context, doc Document) error

// Source names what produced a change.
type Source string

const (
	SourceUpdate   Source = "update"
	SourceRollback Source = "rollback"
	SourceExternal Source = "external"
)

// FieldChange is a single changed leaf, addressed by dotted path.
type FieldChange = layering.Delta

// Change describes an accepted write.
type Change struct {
	ID            string        `json:"id"`
	Source        Source        `json:"source"`
	Noop          bool          `json:"noop,omitempty"`
	BackupID      string        `json:"backup_id,omitempty"`
	RestoredFrom  string        `json:"restored_from,omitempty"`
	Checksum      string        `json:"checksum,omitempty"`
	Fields        []FieldChange `json:"fields,omitempty"`
	HandlerErrors []error       `json:"-"`
	AppliedAt     time.Time     `json:"applied_at"`
}

// Paths returns the dotted paths touched by the change.
func (c *Change) Paths() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.Fields))
	for _, f := range c.Fields {
		out = append(out, f.Path)
	}
	return out
}
