package hotconfig

import (
	"encoding/json"
)

// Layer names a source that can supply a value.
type Layer string

const (
	LayerDocument Layer = "document"
	LayerDefaults Layer = "defaults"
	LayerZero     Layer = "zero"
)

// Trace captures provenance for one key across the layers that produce the
// effective value, strongest first.
type Trace struct {
	Path   string       `json:"path"`
	Layers []Provenance `json:"layers"`
}

// Provenance details how a layer contributed to a traced path.
type Provenance struct {
	Layer Layer  `json:"layer"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
	Found bool   `json:"found"`
}

// Effective returns the layer that supplies the value, if any.
func (t Trace) Effective() (Provenance, bool) {
	for _, layer := range t.Layers {
		if layer.Found {
			return layer, true
		}
	}
	return Provenance{}, false
}

// ToJSON serialises the trace into JSON for logging or transport helpers.
func (t Trace) ToJSON() ([]byte, error) {
	type alias Trace
	return json.Marshal(alias(t))
}

// TraceFromJSON deserialises a JSON payload that was previously generated via
// ToJSON.
func TraceFromJSON(payload []byte) (Trace, error) {
	type alias Trace
	var trace alias
	if err := json.Unmarshal(payload, &trace); err != nil {
		return Trace{}, err
	}
	return Trace(trace), nil
}

// Trace reports which layer supplies section.key: the persisted document,
// the schema default or the zero value of the declared type.
func (s *Store) Trace(section, key string) Trace {
	path := section + "." + key
	trace := Trace{Path: path}

	doc := s.active.Load().doc
	value, found := doc.Lookup(section, key)
	trace.Layers = append(trace.Layers, Provenance{Layer: LayerDocument, Path: path, Value: value, Found: found})

	field, declared := s.validator.Schema().Lookup(section, key)
	if !declared {
		return trace
	}
	var def any
	hasDefault := field.Default != nil
	if hasDefault {
		def, _ = normalizeValue(field, field.Default)
	}
	trace.Layers = append(trace.Layers,
		Provenance{Layer: LayerDefaults, Path: path, Value: def, Found: hasDefault},
		Provenance{Layer: LayerZero, Path: path, Value: field.Type.zero(), Found: true},
	)
	return trace
}
