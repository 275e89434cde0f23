package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hanny658/Meta-Recommendation/internal/llm"
)

func TestComplete(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`))
	}))
	defer srv.Close()

	c := llm.New(srv.URL+"/v1", "test-key", "gpt-test")
	out, err := c.Complete(context.Background(), "say hello", 0.2, false)
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	assert.Equal(t, "gpt-test", gotBody["model"])
	assert.Nil(t, gotBody["response_format"])
}

func TestCompleteJSONMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		rf, ok := body["response_format"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "json_object", rf["type"])
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"q\":\"x\"}"}}]}`))
	}))
	defer srv.Close()

	c := llm.New(srv.URL, "k", "m")
	out, err := c.Complete(context.Background(), "json please", 0, true)
	require.NoError(t, err)
	assert.JSONEq(t, `{"q":"x"}`, out)
}

func TestCompleteErrors(t *testing.T) {
	t.Run("http error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := llm.New(srv.URL, "k", "m").Complete(context.Background(), "p", 0, false)
		assert.ErrorContains(t, err, "status 502")
	})

	t.Run("empty choices", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}))
		defer srv.Close()

		_, err := llm.New(srv.URL, "k", "m").Complete(context.Background(), "p", 0, false)
		assert.ErrorContains(t, err, "empty choices")
	})
}
