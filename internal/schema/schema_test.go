package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hanny658/Meta-Recommendation/internal/schema"
)

func TestValidateRequiredField(t *testing.T) {
	s := map[string]any{"type": "object", "required": []any{"q"}}

	errs := schema.Validate(map[string]any{}, s)
	require.Len(t, errs, 1)
	assert.Equal(t, "$.q: missing required field", errs[0])

	assert.Empty(t, schema.Validate(map[string]any{"q": "x"}, s))
}

func TestValidateTypes(t *testing.T) {
	tests := []struct {
		name   string
		data   any
		schema map[string]any
		want   []string
	}{
		{"object mismatch", "nope", map[string]any{"type": "object"}, []string{"$: expected object"}},
		{"array mismatch", "nope", map[string]any{"type": "array"}, []string{"$: expected array"}},
		{"string mismatch", 1, map[string]any{"type": "string"}, []string{"$: expected string"}},
		{"string too short", "", map[string]any{"type": "string", "minLength": 1}, []string{"$: too short"}},
		{"integer ok", 5, map[string]any{"type": "integer"}, nil},
		{"integer from json", float64(5), map[string]any{"type": "integer"}, nil},
		{"integer fraction", 5.5, map[string]any{"type": "integer"}, []string{"$: expected integer"}},
		{"number ok", 5.5, map[string]any{"type": "number"}, nil},
		{"boolean ok", true, map[string]any{"type": "boolean"}, nil},
		{"boolean mismatch", "true", map[string]any{"type": "boolean"}, []string{"$: expected boolean"}},
		{"no type no constraint", map[string]any{"x": 1}, map[string]any{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := schema.Validate(tt.data, tt.schema)
			if tt.want == nil {
				assert.Empty(t, got)
			} else {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

// Booleans must never pass as integers or numbers, regardless of how the
// host language models them.
func TestValidateBooleanNotNumeric(t *testing.T) {
	assert.Equal(t, []string{"$: expected integer"},
		schema.Validate(true, map[string]any{"type": "integer"}))
	assert.Equal(t, []string{"$: expected number"},
		schema.Validate(false, map[string]any{"type": "number"}))
}

func TestValidateNestedPaths(t *testing.T) {
	s := map[string]any{
		"type":     "object",
		"required": []any{"items"},
		"properties": map[string]any{
			"items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":       "object",
					"required":   []any{"name"},
					"properties": map[string]any{"name": map[string]any{"type": "string"}},
				},
			},
		},
	}

	data := map[string]any{"items": []any{
		map[string]any{"name": "ok"},
		map[string]any{},
	}}
	errs := schema.Validate(data, s)
	require.Len(t, errs, 1)
	assert.Equal(t, "$.items[1].name: missing required field", errs[0])
}

func TestValidateArrayChecksAtMostFiveItems(t *testing.T) {
	s := map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	data := make([]any, 10)
	for i := range data {
		data[i] = 1 // every item is wrong
	}
	errs := schema.Validate(data, s)
	assert.Len(t, errs, 5)
}

func TestGenerateRequiredOnly(t *testing.T) {
	s := map[string]any{
		"type":     "object",
		"required": []any{"q"},
		"properties": map[string]any{
			"q":        map[string]any{"type": "string", "minLength": 1},
			"optional": map[string]any{"type": "integer"},
		},
	}

	got := schema.Generate(s)
	assert.Equal(t, map[string]any{"q": "test"}, got)

	// Generator output is always valid for documented primitives.
	assert.Empty(t, schema.Validate(got, s))
}

func TestGeneratePrimitives(t *testing.T) {
	assert.Equal(t, "test", schema.Generate(map[string]any{"type": "string"}))
	assert.Equal(t, 1, schema.Generate(map[string]any{"type": "integer"}))
	assert.Equal(t, 1.0, schema.Generate(map[string]any{"type": "number"}))
	assert.Equal(t, false, schema.Generate(map[string]any{"type": "boolean"}))
	assert.Nil(t, schema.Generate(map[string]any{"type": "unknown"}))
}

func TestGenerateEnumAndExample(t *testing.T) {
	assert.Equal(t, "casual",
		schema.Generate(map[string]any{"type": "string", "enum": []any{"casual", "fine-dining"}}))
	assert.Equal(t, map[string]any{"fixed": true},
		schema.Generate(map[string]any{"type": "object", "example": map[string]any{"fixed": true}}))
}

func TestGenerateArray(t *testing.T) {
	got := schema.Generate(map[string]any{"type": "array", "items": map[string]any{"type": "integer"}})
	assert.Equal(t, []any{1}, got)

	// Absent items defaults to a single string sample.
	assert.Equal(t, []any{"test"}, schema.Generate(map[string]any{"type": "array"}))
}

func TestGenerateValidRoundTrip(t *testing.T) {
	s := map[string]any{
		"type":     "object",
		"required": []any{"query", "count", "flags", "ratio", "online"},
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "minLength": 1},
			"count": map[string]any{"type": "integer"},
			"flags": map[string]any{"type": "array", "items": map[string]any{"type": "boolean"}},
			"ratio": map[string]any{"type": "number"},
			"online": map[string]any{"type": "boolean"},
		},
	}
	assert.Empty(t, schema.Validate(schema.Generate(s), s))
}
