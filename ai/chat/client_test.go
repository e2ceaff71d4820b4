package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/rpawatch/errors"
)

// newCompletionServer answers every chat completion with content.
func newCompletionServer(t *testing.T, content string, gotPrompt *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if gotPrompt != nil && len(req.Messages) > 0 {
			*gotPrompt = req.Messages[0].Content
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"model":  req.Model,
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestComplete(t *testing.T) {
	var prompt string
	srv := newCompletionServer(t, "  hello  ", &prompt)

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key", Model: "m", Logger: zaptest.NewLogger(t).Sugar()})
	out, err := c.Complete(context.Background(), "say hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, "say hello", prompt)
	assert.Equal(t, "m", c.Model())
}

func TestCompleteJSON_Fenced(t *testing.T) {
	srv := newCompletionServer(t, "```json\n{\"subject\": \"s\", \"body\": \"b\"}\n```", nil)

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key"})
	var out struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	require.NoError(t, c.CompleteJSON(context.Background(), "draft", &out))
	assert.Equal(t, "s", out.Subject)
	assert.Equal(t, "b", out.Body)
}

func TestCompleteJSON_Invalid(t *testing.T) {
	srv := newCompletionServer(t, "I cannot help with that", nil)

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key"})
	var out map[string]interface{}
	err := c.CompleteJSON(context.Background(), "draft", &out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMalformedInput))
}

func TestComplete_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key"})
	_, err := c.Complete(context.Background(), "x")
	assert.Error(t, err)
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, ExtractJSON(`here you go: {"a":1} thanks`))
	assert.Equal(t, `{"a":{"b":2}}`, ExtractJSON("```\n{\"a\":{\"b\":2}}\n```"))
	assert.Equal(t, "plain", ExtractJSON(" plain "))
}
