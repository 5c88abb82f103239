package storage

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Fields is a partial document update. Values are either plain JSON
// encodable values, which replace the field, or one of the transforms
// returned by Increment, ArrayUnion, ArrayRemove and DeleteField.
type Fields map[string]any

type transformKind int

const (
	transformIncrement transformKind = iota
	transformArrayUnion
	transformArrayRemove
	transformDelete
)

type transform struct {
	kind   transformKind
	delta  float64
	values []any
}

var errTransformOutsideUpdate = errors.New("field transforms are only valid in Update")

// MarshalJSON rejects transforms passed to Set
func (t transform) MarshalJSON() ([]byte, error) {
	return nil, errTransformOutsideUpdate
}

// Increment adds n to a numeric field; a missing field counts as zero
func Increment(n float64) any {
	return transform{kind: transformIncrement, delta: n}
}

// ArrayUnion appends values not already present in an array field
func ArrayUnion(values ...any) any {
	return transform{kind: transformArrayUnion, values: values}
}

// ArrayRemove removes every occurrence of values from an array field
func ArrayRemove(values ...any) any {
	return transform{kind: transformArrayRemove, values: values}
}

// DeleteField removes the field from the document
func DeleteField() any {
	return transform{kind: transformDelete}
}

// applyFields merges fields into a stored document body
func applyFields(data json.RawMessage, fields Fields) (json.RawMessage, error) {
	doc := make(map[string]any)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
	}

	for name, value := range fields {
		t, ok := value.(transform)
		if !ok {
			v, err := normalize(value)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", name, err)
			}
			doc[name] = v
			continue
		}
		if err := t.apply(doc, name); err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
	}

	return json.Marshal(doc)
}

func (t transform) apply(doc map[string]any, name string) error {
	current, present := doc[name]

	switch t.kind {
	case transformDelete:
		delete(doc, name)

	case transformIncrement:
		var base float64
		if present && current != nil {
			n, ok := current.(float64)
			if !ok {
				return fmt.Errorf("cannot increment non-numeric value")
			}
			base = n
		}
		doc[name] = base + t.delta

	case transformArrayUnion, transformArrayRemove:
		var list []any
		if present && current != nil {
			l, ok := current.([]any)
			if !ok {
				return fmt.Errorf("not an array")
			}
			list = l
		}
		values := make([]any, 0, len(t.values))
		for _, v := range t.values {
			n, err := normalize(v)
			if err != nil {
				return err
			}
			values = append(values, n)
		}
		if t.kind == transformArrayUnion {
			doc[name] = unionValues(list, values)
		} else {
			doc[name] = removeValues(list, values)
		}
	}
	return nil
}

func unionValues(list, values []any) []any {
	out := append(make([]any, 0, len(list)+len(values)), list...)
	for _, v := range values {
		if !containsValue(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func removeValues(list, values []any) []any {
	out := make([]any, 0, len(list))
	for _, v := range list {
		if !containsValue(values, v) {
			out = append(out, v)
		}
	}
	return out
}

func containsValue(list []any, v any) bool {
	for _, item := range list {
		if equalValues(item, v) {
			return true
		}
	}
	return false
}
