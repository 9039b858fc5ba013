package layering

import (
	"reflect"
	"sort"
	"strings"
)

// Delta records a single leaf value that differs between two documents.
type Delta struct {
	Path string `json:"path"`
	Old  any    `json:"old,omitempty"`
	New  any    `json:"new,omitempty"`
}

// Diff walks both maps and returns the leaf paths whose values differ, sorted
// by path. Nested maps are descended; all other values compare with
// reflect.DeepEqual. A key that appears or disappears holding an empty map
// is reported at the map's own path.
func Diff(before, after map[string]any) []Delta {
	var out []Delta
	diffInto(&out, "", before, after)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func diffInto(out *[]Delta, prefix string, before, after map[string]any) {
	keys := make(map[string]struct{}, len(before)+len(after))
	for key := range before {
		keys[key] = struct{}{}
	}
	for key := range after {
		keys[key] = struct{}{}
	}
	for key := range keys {
		path := joinPath(prefix, key)
		oldValue, hadOld := before[key]
		newValue, hasNew := after[key]
		oldMap, oldIsMap := asMap(oldValue)
		newMap, newIsMap := asMap(newValue)
		if (oldIsMap || !hadOld) && (newIsMap || !hasNew) && (oldIsMap || newIsMap) {
			// an empty map appearing or disappearing has no leaves of its own
			if (!hadOld && len(newMap) == 0) || (!hasNew && len(oldMap) == 0) {
				*out = append(*out, Delta{Path: path, Old: oldValue, New: newValue})
				continue
			}
			diffInto(out, path, oldMap, newMap)
			continue
		}
		if hadOld && hasNew && reflect.DeepEqual(oldValue, newValue) {
			continue
		}
		*out = append(*out, Delta{Path: path, Old: oldValue, New: newValue})
	}
}

func joinPath(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return strings.Join([]string{prefix, segment}, ".")
}
