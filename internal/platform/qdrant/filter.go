package qdrant

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/yungbote/graphrag-gateway/internal/gateway/ports"
)

// clauses is a Qdrant boolean filter under construction.
type clauses struct {
	Must    []any
	Should  []any
	MustNot []any
}

func (c *clauses) add(o clauses) {
	c.Must = append(c.Must, o.Must...)
	c.Should = append(c.Should, o.Should...)
	c.MustNot = append(c.MustNot, o.MustNot...)
}

func (c clauses) asMap() map[string]any {
	out := map[string]any{}
	for key, list := range map[string][]any{"must": c.Must, "should": c.Should, "must_not": c.MustNot} {
		if len(list) > 0 {
			out[key] = list
		}
	}
	return out
}

// translateQueryFilter accepts retrieval filters written either with Mongo-style operators
// ($and, $or, $not, $eq, $ne, $in, $nin, $gt, $gte, $lt, $lte) or as a native Qdrant filter
// (must/should/must_not), which is passed through untouched.
func translateQueryFilter(filter map[string]any) (map[string]any, error) {
	if len(filter) == 0 {
		return nil, nil
	}
	if isNativeFilter(filter) {
		return filter, nil
	}
	c, err := translateFilterMap(filter)
	if err != nil {
		return nil, err
	}
	if out := c.asMap(); len(out) > 0 {
		return out, nil
	}
	return nil, nil
}

func isNativeFilter(filter map[string]any) bool {
	for k := range filter {
		switch k {
		case "must", "should", "must_not", "min_should":
		default:
			return false
		}
	}
	return true
}

func invalidFilter(format string, args ...any) error {
	return ports.NewBackendError(backendName, "filter_translate", ports.KindInvalidInput, 0, fmt.Errorf(format, args...))
}

// Logical operators place each translated sub-filter into one clause list.
var logicalOps = map[string]func(*clauses, map[string]any){
	"$and": func(c *clauses, sub map[string]any) { c.Must = append(c.Must, sub) },
	"$or":  func(c *clauses, sub map[string]any) { c.Should = append(c.Should, sub) },
	"$not": func(c *clauses, sub map[string]any) { c.MustNot = append(c.MustNot, sub) },
}

func translateFilterMap(filter map[string]any) (clauses, error) {
	var out clauses
	for _, key := range sortedKeys(filter) {
		k := strings.TrimSpace(key)
		if k == "" {
			continue
		}
		value := filter[key]
		if !strings.HasPrefix(k, "$") {
			part, err := translateField(k, value)
			if err != nil {
				return clauses{}, err
			}
			out.add(part)
			continue
		}

		op := strings.ToLower(k)
		place, ok := logicalOps[op]
		if !ok {
			return clauses{}, invalidFilter("unsupported top-level filter operator %q", k)
		}
		subs, err := logicalOperands(op, value)
		if err != nil {
			return clauses{}, err
		}
		for _, sub := range subs {
			inner, err := translateFilterMap(sub)
			if err != nil {
				return clauses{}, err
			}
			place(&out, inner.asMap())
		}
	}
	return out, nil
}

// $not takes one object; $and and $or take an array of objects.
func logicalOperands(op string, value any) ([]map[string]any, error) {
	if op == "$not" {
		obj, ok := value.(map[string]any)
		if !ok {
			return nil, invalidFilter("operator %s expects an object, got %T", op, value)
		}
		return []map[string]any{obj}, nil
	}
	items, ok := value.([]any)
	if !ok {
		return nil, invalidFilter("operator %s expects array of objects, got %T", op, value)
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, invalidFilter("operator %s expects array of objects, found %T", op, item)
		}
		out = append(out, obj)
	}
	return out, nil
}

var rangeOps = map[string]string{"$gt": "gt", "$gte": "gte", "$lt": "lt", "$lte": "lte"}

func translateField(field string, value any) (clauses, error) {
	ops, isOps := value.(map[string]any)
	if !isOps {
		scalar, ok := scalarOf(value)
		if !ok {
			return clauses{}, invalidFilter("field %q expects scalar value or operator object", field)
		}
		return clauses{Must: []any{matchValue(field, scalar)}}, nil
	}
	if len(ops) == 0 {
		return clauses{}, invalidFilter("field %q has empty operator map", field)
	}

	var out clauses
	bounds := map[string]any{}
	for _, rawOp := range sortedKeys(ops) {
		op := strings.ToLower(strings.TrimSpace(rawOp))
		arg := ops[rawOp]
		switch op {
		case "$eq", "$ne":
			scalar, ok := scalarOf(arg)
			if !ok {
				return clauses{}, invalidFilter("operator %s for field %q expects scalar value", op, field)
			}
			if op == "$eq" {
				out.Must = append(out.Must, matchValue(field, scalar))
			} else {
				out.MustNot = append(out.MustNot, matchValue(field, scalar))
			}
		case "$in", "$nin":
			values, err := scalarList(arg)
			if err != nil {
				return clauses{}, invalidFilter("operator %s for field %q expects scalar array: %v", op, field, err)
			}
			if len(values) == 0 {
				return clauses{}, invalidFilter("operator %s for field %q cannot be empty", op, field)
			}
			cond := map[string]any{"key": field, "match": map[string]any{"any": values}}
			if op == "$in" {
				out.Must = append(out.Must, cond)
			} else {
				out.MustNot = append(out.MustNot, cond)
			}
		default:
			name, ok := rangeOps[op]
			if !ok {
				return clauses{}, invalidFilter("unsupported filter operator %q for field %q", rawOp, field)
			}
			n, ok := numberOf(arg)
			if !ok {
				return clauses{}, invalidFilter("operator %s for field %q expects a number", op, field)
			}
			bounds[name] = n
		}
	}
	// All bounds on one field share a single range condition.
	if len(bounds) > 0 {
		out.Must = append(out.Must, map[string]any{"key": field, "range": bounds})
	}
	return out, nil
}

func matchValue(key string, value any) map[string]any {
	return map[string]any{"key": key, "match": map[string]any{"value": value}}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// scalarList accepts []any or any typed slice of scalars.
func scalarList(value any) ([]any, error) {
	rv := reflect.ValueOf(value)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, fmt.Errorf("got %T", value)
	}
	out := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		s, ok := scalarOf(rv.Index(i).Interface())
		if !ok {
			return nil, fmt.Errorf("element %d is %T", i, rv.Index(i).Interface())
		}
		out = append(out, s)
	}
	return out, nil
}

// scalarOf normalizes match values to strings, bools and int64. Floats must be integral:
// Qdrant match conditions take no fractional values.
func scalarOf(value any) (any, bool) {
	switch v := value.(type) {
	case string, bool:
		return v, true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
		return nil, false
	}
	rv := reflect.ValueOf(value)
	if !rv.IsValid() {
		return nil, false
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f == float64(int64(f)) {
			return int64(f), true
		}
	}
	return nil, false
}

func numberOf(value any) (float64, bool) {
	if n, ok := value.(json.Number); ok {
		f, err := n.Float64()
		return f, err == nil
	}
	rv := reflect.ValueOf(value)
	if !rv.IsValid() {
		return 0, false
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
