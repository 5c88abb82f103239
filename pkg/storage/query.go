package storage

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// Operator is a query predicate operator
type Operator string

const (
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpIn           Operator = "in"
)

// Direction is the ordering direction of a query
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// Filter is a single field predicate
type Filter struct {
	Field string
	Op    Operator
	Value any
}

// Query selects documents of one collection. The zero value matches every
// document in storage order.
type Query struct {
	filters   []Filter
	orderBy   string
	direction Direction
	limit     int
}

// NewQuery returns an empty query
func NewQuery() Query {
	return Query{}
}

// Where adds a predicate
func (q Query) Where(field string, op Operator, value any) Query {
	filters := make([]Filter, len(q.filters), len(q.filters)+1)
	copy(filters, q.filters)
	q.filters = append(filters, Filter{Field: field, Op: op, Value: value})
	return q
}

// OrderBy sets the ordering clause
func (q Query) OrderBy(field string, dir Direction) Query {
	q.orderBy = field
	q.direction = dir
	return q
}

// Limit caps the number of results; zero means no limit
func (q Query) Limit(n int) Query {
	q.limit = n
	return q
}

// equalityFilters returns the equality predicates as a JSON containment
// document, used by backends that can push them down
func (q Query) equalityFilters() (map[string]any, error) {
	eq := make(map[string]any)
	for _, f := range q.filters {
		if f.Op != OpEqual {
			continue
		}
		v, err := normalize(f.Value)
		if err != nil {
			return nil, err
		}
		eq[f.Field] = v
	}
	return eq, nil
}

type compiledFilter struct {
	field string
	op    Operator
	value any
	set   []any
}

func (q Query) compile() ([]compiledFilter, error) {
	compiled := make([]compiledFilter, 0, len(q.filters))
	for _, f := range q.filters {
		v, err := normalize(f.Value)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", f.Field, err)
		}
		cf := compiledFilter{field: f.Field, op: f.Op, value: v}
		switch f.Op {
		case OpEqual, OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		case OpIn:
			set, ok := v.([]any)
			if !ok {
				return nil, fmt.Errorf("filter %s: %q requires a slice value", f.Field, f.Op)
			}
			cf.set = set
		default:
			return nil, fmt.Errorf("filter %s: unsupported operator %q", f.Field, f.Op)
		}
		compiled = append(compiled, cf)
	}
	return compiled, nil
}

// matchAll reports whether decoded fields satisfy every predicate. A
// document missing a filtered field never matches.
func matchAll(filters []compiledFilter, fields map[string]any) bool {
	for _, f := range filters {
		actual, ok := fields[f.field]
		if !ok {
			return false
		}
		if !f.match(actual) {
			return false
		}
	}
	return true
}

func (f compiledFilter) match(actual any) bool {
	switch f.op {
	case OpEqual:
		return equalValues(actual, f.value)
	case OpNotEqual:
		return !equalValues(actual, f.value)
	case OpIn:
		for _, candidate := range f.set {
			if equalValues(actual, candidate) {
				return true
			}
		}
		return false
	}

	cmp, ok := compareValues(actual, f.value)
	if !ok {
		return false
	}
	switch f.op {
	case OpLess:
		return cmp < 0
	case OpLessEqual:
		return cmp <= 0
	case OpGreater:
		return cmp > 0
	case OpGreaterEqual:
		return cmp >= 0
	}
	return false
}

// Apply filters, orders and limits docs
func (q Query) Apply(docs []*Document) ([]*Document, error) {
	compiled, err := q.compile()
	if err != nil {
		return nil, err
	}

	type entry struct {
		doc    *Document
		fields map[string]any
	}
	matched := make([]entry, 0, len(docs))
	for _, doc := range docs {
		fields, err := doc.Fields()
		if err != nil {
			return nil, err
		}
		if !matchAll(compiled, fields) {
			continue
		}
		if q.orderBy != "" {
			if _, ok := fields[q.orderBy]; !ok {
				continue
			}
		}
		matched = append(matched, entry{doc: doc, fields: fields})
	}

	if q.orderBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			cmp, ok := compareValues(matched[i].fields[q.orderBy], matched[j].fields[q.orderBy])
			if !ok || cmp == 0 {
				return matched[i].doc.ID < matched[j].doc.ID
			}
			if q.direction == Descending {
				return cmp > 0
			}
			return cmp < 0
		})
	}

	if q.limit > 0 && len(matched) > q.limit {
		matched = matched[:q.limit]
	}

	result := make([]*Document, len(matched))
	for i, m := range matched {
		result[i] = m.doc
	}
	return result, nil
}

// normalize converts a Go value to its JSON-decoded form so it compares
// like stored data: numbers become float64, times become RFC 3339 strings
func normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("value is not JSON encodable: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func equalValues(a, b any) bool {
	if cmp, ok := compareValues(a, b); ok {
		return cmp == 0
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders two normalized values of the same kind. Strings
// that both parse as RFC 3339 timestamps compare chronologically.
func compareValues(a, b any) (int, bool) {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		if at, err := time.Parse(time.RFC3339Nano, av); err == nil {
			if bt, err := time.Parse(time.RFC3339Nano, bv); err == nil {
				return at.Compare(bt), true
			}
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	case nil:
		if b == nil {
			return 0, true
		}
	}
	return 0, false
}
