// Package sanitize normalizes arbitrary values into a JSON-safe tree and
// redacts sensitive material before it leaves the process. Every payload
// that ends up in a trace file, an API response, or an LLM prompt passes
// through here first.
package sanitize

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"
)

// Redacted replaces the value of any key that looks like a credential.
const Redacted = "[REDACTED]"

const (
	maxStringLen     = 4000
	truncationMarker = "...<truncated>"
)

// sensitiveParts are matched as substrings of lowercased map keys.
var sensitiveParts = []string{
	"token", "api_key", "apikey", "authorization", "cookie", "secret", "password",
}

// Serialize converts a value into the closed JSON value union: nil, bool,
// number, string, []any, map[string]any. Structs round-trip through
// encoding/json; anything that still resists serialization is stringified.
func Serialize(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case error:
		return val.Error()
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Serialize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Serialize(item)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return Serialize(rv.Elem().Interface())
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[fmt.Sprint(iter.Key().Interface())] = Serialize(iter.Value().Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = Serialize(rv.Index(i).Interface())
		}
		return out
	}

	// Structs and everything else: prefer the JSON shape, fall back to a string.
	if b, err := json.Marshal(v); err == nil {
		var out any
		if json.Unmarshal(b, &out) == nil {
			return out
		}
	}
	return fmt.Sprint(v)
}

// Value serializes v and then redacts sensitive keys and truncates
// oversized strings, recursively.
func Value(v any) any {
	return scrub(Serialize(v))
}

func scrub(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if SensitiveKey(k) {
				out[k] = Redacted
			} else {
				out[k] = scrub(item)
			}
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = scrub(item)
		}
		return out
	case string:
		if len(val) > maxStringLen {
			// Back off to a rune boundary so the cut never leaves
			// invalid UTF-8 behind.
			cut := maxStringLen
			for cut > 0 && !utf8.RuneStart(val[cut]) {
				cut--
			}
			return val[:cut] + truncationMarker
		}
		return val
	}
	return v
}

// SensitiveKey reports whether a map key should have its value redacted.
func SensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, part := range sensitiveParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}
