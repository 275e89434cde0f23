// Package schema implements the JSON-Schema subset used by the debug unit
// harness: object/array/string/integer/number/boolean with required,
// properties, items, minLength, enum and example. It is deliberately not a
// full JSON Schema implementation; the subset matches what unit specs
// declare.
package schema

import (
	"fmt"
	"math"
	"sort"
)

// Validate checks data against a schema and returns path-annotated error
// strings ("$.field[0].sub: message"). An empty slice means valid. An
// unknown or absent type constrains nothing.
func Validate(data any, s map[string]any) []string {
	return validate(data, s, "$")
}

// maxArrayItems bounds how many array elements are validated per branch.
const maxArrayItems = 5

func validate(data any, s map[string]any, path string) []string {
	var errs []string
	t, _ := s["type"].(string)

	switch t {
	case "object":
		obj, ok := data.(map[string]any)
		if !ok {
			return []string{path + ": expected object"}
		}
		for _, key := range stringSlice(s["required"]) {
			if _, present := obj[key]; !present {
				errs = append(errs, fmt.Sprintf("%s.%s: missing required field", path, key))
			}
		}
		props, _ := s["properties"].(map[string]any)
		for _, key := range sortedKeys(props) {
			child, ok := props[key].(map[string]any)
			if !ok {
				continue
			}
			if value, present := obj[key]; present {
				errs = append(errs, validate(value, child, path+"."+key)...)
			}
		}
		return errs

	case "array":
		arr, ok := data.([]any)
		if !ok {
			return []string{path + ": expected array"}
		}
		items, ok := s["items"].(map[string]any)
		if !ok {
			return errs
		}
		for i := 0; i < len(arr) && i < maxArrayItems; i++ {
			errs = append(errs, validate(arr[i], items, fmt.Sprintf("%s[%d]", path, i))...)
		}
		return errs

	case "string":
		str, ok := data.(string)
		if !ok {
			return []string{path + ": expected string"}
		}
		if min, ok := intValue(s["minLength"]); ok && len(str) < min {
			errs = append(errs, path+": too short")
		}
		return errs

	case "integer":
		if !isInteger(data) {
			return []string{path + ": expected integer"}
		}
		return errs

	case "number":
		if !isNumber(data) {
			return []string{path + ": expected number"}
		}
		return errs

	case "boolean":
		if _, ok := data.(bool); !ok {
			return []string{path + ": expected boolean"}
		}
		return errs
	}

	return errs
}

// Generate produces one deterministic instance of a schema. Output built
// from the documented primitives always validates against the same schema.
// A schema carrying an explicit "example" short-circuits to that value.
func Generate(s map[string]any) any {
	if example, ok := s["example"]; ok {
		return example
	}
	t, _ := s["type"].(string)

	switch t {
	case "object":
		props, _ := s["properties"].(map[string]any)
		obj := map[string]any{}
		for _, key := range stringSlice(s["required"]) {
			if child, ok := props[key].(map[string]any); ok {
				obj[key] = Generate(child)
			}
		}
		return obj
	case "array":
		items, ok := s["items"].(map[string]any)
		if !ok {
			items = map[string]any{"type": "string"}
		}
		return []any{Generate(items)}
	case "string":
		if values := enumValues(s["enum"]); len(values) > 0 {
			return values[0]
		}
		return "test"
	case "integer":
		return 1
	case "number":
		return 1.0
	case "boolean":
		return false
	}
	return nil
}

// isInteger accepts Go integer kinds and integral float64 values (the shape
// JSON decoding yields). Booleans are explicitly excluded: they are never
// valid integers here even though some type systems treat them as one.
func isInteger(v any) bool {
	switch n := v.(type) {
	case bool:
		return false
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return n == math.Trunc(n) && !math.IsInf(n, 0) && !math.IsNaN(n)
	case float32:
		f := float64(n)
		return f == math.Trunc(f)
	}
	return false
}

// isNumber accepts any numeric kind; booleans are excluded.
func isNumber(v any) bool {
	switch v.(type) {
	case bool:
		return false
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}

// intValue coerces schema numbers (which decode as float64) to int.
func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// stringSlice coerces a schema "required" list (either []string in Go
// literals or []any from decoded JSON) into []string, preserving order.
func stringSlice(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// enumValues coerces a schema "enum" list into []any, preserving order.
func enumValues(v any) []any {
	switch list := v.(type) {
	case []any:
		return list
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out
	}
	return nil
}

// sortedKeys returns map keys in lexical order so error output is stable.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
