// Package layering deep merges, clones and diffs configuration documents.
//
// Documents are the loosely typed trees the YAML, TOML and JSON decoders
// produce. Maps merge key by key; every other value is replaced wholesale.
package layering

import "reflect"

// Patch applies patch on top of base and returns the result. Neither input is
// modified. A nil value in patch removes the key from the result so the
// field falls back to its schema default.
func Patch(base, patch map[string]any) map[string]any {
	out := Clone(base)
	if out == nil {
		out = map[string]any{}
	}
	for key, value := range patch {
		if value == nil {
			delete(out, key)
			continue
		}
		nested, ok := asMap(value)
		if !ok {
			out[key] = Clone(value)
			continue
		}
		existing, _ := asMap(out[key])
		out[key] = Patch(existing, nested)
	}
	return out
}

// Clone returns a deep copy of value. Maps and slices are copied
// recursively; scalars are returned as is.
func Clone[T any](value T) T {
	out, ok := cloneAny(value).(T)
	if !ok {
		return value
	}
	return out
}

func cloneAny(value any) any {
	switch typed := value.(type) {
	case nil:
		return nil
	case map[string]any:
		if typed == nil {
			return typed
		}
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[k] = cloneAny(v)
		}
		return out
	case map[string]map[string]any:
		if typed == nil {
			return typed
		}
		out := make(map[string]map[string]any, len(typed))
		for k, v := range typed {
			out[k] = cloneAny(v).(map[string]any)
		}
		return out
	case map[any]any:
		if typed == nil {
			return typed
		}
		out := make(map[any]any, len(typed))
		for k, v := range typed {
			out[k] = cloneAny(v)
		}
		return out
	case []any:
		if typed == nil {
			return typed
		}
		out := make([]any, len(typed))
		for i, v := range typed {
			out[i] = cloneAny(v)
		}
		return out
	case string, bool, int, int64, float64:
		return typed
	}
	return cloneReflect(reflect.ValueOf(value)).Interface()
}

// cloneReflect covers typed slices and maps such as []string or
// map[string]int that callers hand to Update directly.
func cloneReflect(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Map:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), cloneElem(iter.Value(), v.Type().Elem()))
		}
		return out
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(cloneElem(v.Index(i), v.Type().Elem()))
		}
		return out
	}
	return v
}

func cloneElem(v reflect.Value, typ reflect.Type) reflect.Value {
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Zero(typ)
		}
		return reflect.ValueOf(cloneAny(v.Interface()))
	}
	return cloneReflect(v)
}

// asMap normalises the map shapes produced by the decoders into
// map[string]any.
func asMap(value any) (map[string]any, bool) {
	switch typed := value.(type) {
	case map[string]any:
		return typed, true
	case map[any]any:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			key, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[key] = v
		}
		return out, true
	default:
		return nil, false
	}
}
