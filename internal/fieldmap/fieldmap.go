// Package fieldmap resolves an edge's field-mapping specification against a
// producer node's raw output to build the consumer's input bindings.
//
// Missing source paths are not errors: the corresponding target field is
// simply omitted from the result. This is what gives feedback-mapped fields
// their "absent on the first iteration" semantics; handlers are responsible
// for treating a missing input as "not provided" rather than relying on a
// zero default the engine never injects.
package fieldmap

import (
	"fmt"
	"strings"

	"github.com/vk/gridloop/internal/model"
)

// TypeError reports a mapping path that traversed a non-map value before
// reaching its final segment.
type TypeError struct {
	// Path is the full source path from the mapping entry.
	Path string
	// Segment is the path segment that resolved to a non-map value.
	Segment string
	// Value is the Go type name of the offending value.
	Value string
}

// Error implements the error interface.
func (e *TypeError) Error() string {
	return fmt.Sprintf("mapping path %q: segment %q resolved to %s, not a map", e.Path, e.Segment, e.Value)
}

// Resolve applies a field mapping against a node's raw output. Entries whose
// source path does not resolve are omitted from the result. The only error
// condition is a path that descends through a non-map value mid-walk.
func Resolve(raw map[string]any, mapping []model.FieldRef) (map[string]any, error) {
	out := make(map[string]any, len(mapping))
	for _, ref := range mapping {
		val, found, err := lookup(raw, ref.Path)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		out[ref.Target] = val
	}
	return out, nil
}

// lookup walks a dot-separated path through nested maps. The boolean result
// reports whether the full path resolved.
func lookup(raw map[string]any, path string) (any, bool, error) {
	segments := strings.Split(path, ".")
	var current any = raw
	for i, segment := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false, &TypeError{
				Path:    path,
				Segment: segments[i-1],
				Value:   fmt.Sprintf("%T", current),
			}
		}
		value, ok := m[segment]
		if !ok {
			return nil, false, nil
		}
		current = value
	}
	return current, true, nil
}
