package sanitize_test

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hanny658/Meta-Recommendation/internal/sanitize"
)

func TestValueRedactsSensitiveKeys(t *testing.T) {
	in := map[string]any{
		"query":         "spicy sichuan",
		"api_key":       "sk-12345",
		"Authorization": "Bearer abc",
		"nested": map[string]any{
			"session_token": "tok",
			"safe":          "ok",
		},
	}

	out, ok := sanitize.Value(in).(map[string]any)
	require.True(t, ok)

	assert.Equal(t, "spicy sichuan", out["query"])
	assert.Equal(t, sanitize.Redacted, out["api_key"])
	assert.Equal(t, sanitize.Redacted, out["Authorization"])

	nested := out["nested"].(map[string]any)
	assert.Equal(t, sanitize.Redacted, nested["session_token"])
	assert.Equal(t, "ok", nested["safe"])
}

func TestValueTruncatesLongStrings(t *testing.T) {
	long := strings.Repeat("x", 5000)
	out, ok := sanitize.Value(long).(string)
	require.True(t, ok)
	assert.Len(t, out, 4000+len("...<truncated>"))
	assert.True(t, strings.HasSuffix(out, "...<truncated>"))

	// Boundary: exactly 4000 characters passes through untouched.
	exact := strings.Repeat("y", 4000)
	assert.Equal(t, exact, sanitize.Value(exact))
}

func TestValueTruncationKeepsValidUTF8(t *testing.T) {
	// A multi-byte rune straddling the cut must not be split.
	long := strings.Repeat("x", 3999) + strings.Repeat("火", 20)
	out, ok := sanitize.Value(long).(string)
	require.True(t, ok)
	assert.True(t, utf8.ValidString(out))
	assert.True(t, strings.HasSuffix(out, "...<truncated>"))
	kept := strings.TrimSuffix(out, "...<truncated>")
	assert.Equal(t, strings.Repeat("x", 3999), kept)
}

func TestSerializeClosedUnion(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"bool", true, true},
		{"string", "a", "a"},
		{"int", 7, 7},
		{"slice", []any{1, "b"}, []any{1, "b"}},
		{"typed slice", []string{"a", "b"}, []any{"a", "b"}},
		{"struct", payload{Name: "n", Count: 2}, map[string]any{"name": "n", "count": float64(2)}},
		{"typed map", map[string]int{"k": 3}, map[string]any{"k": 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitize.Serialize(tt.in))
		})
	}
}

func TestSerializeTime(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-01T12:30:00Z", sanitize.Serialize(ts))
}

func TestSerializeNilPointer(t *testing.T) {
	var p *time.Time
	assert.Nil(t, sanitize.Serialize(p))
}

func TestSensitiveKey(t *testing.T) {
	assert.True(t, sanitize.SensitiveKey("Api_Key"))
	assert.True(t, sanitize.SensitiveKey("openai_apikey"))
	assert.True(t, sanitize.SensitiveKey("refresh_token"))
	assert.True(t, sanitize.SensitiveKey("COOKIE"))
	assert.False(t, sanitize.SensitiveKey("query"))
	assert.False(t, sanitize.SensitiveKey("user_id"))
}
