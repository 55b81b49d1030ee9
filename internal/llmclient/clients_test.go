package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
	"github.com/xkilldash9x/codequal-cli/internal/config"
)

func TestRetryable(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		assert.True(t, retryable(code), "status %d", code)
	}
	for _, code := range []int{400, 401, 403, 404} {
		assert.False(t, retryable(code), "status %d", code)
	}
}

func TestOpenAIClient_Generate(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "openai/gpt-4o-mini", body["model"])

		// First attempt is throttled, the retry succeeds.
		if hits.Add(1) == 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-1","object":"chat.completion","created":1,"model":"openai/gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"ok\":true}"}}]}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(config.LLMProviderConfig{APIKey: "test-key", Endpoint: server.URL}, zap.NewNop())
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), schemas.GenerationRequest{
		Model:        "openai/gpt-4o-mini",
		SystemPrompt: "You are terse.",
		UserPrompt:   "Say ok.",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
	assert.Equal(t, int32(2), hits.Load())
}

func TestOpenAIClient_PermanentErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"auth"}}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(config.LLMProviderConfig{APIKey: "bad", Endpoint: server.URL}, zap.NewNop())
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), schemas.GenerationRequest{Model: "gpt-4o", UserPrompt: "x"})
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestAnthropicClient_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "claude-3-5-haiku-latest", body["model"])
		assert.NotNil(t, body["system"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest",
			"content":[{"type":"text","text":"hello "},{"type":"text","text":"world"}],
			"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":2}}`))
	}))
	defer server.Close()

	client, err := NewAnthropicClient(config.LLMProviderConfig{APIKey: "test-key", Endpoint: server.URL}, zap.NewNop())
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), schemas.GenerationRequest{
		Model:        "claude-3-5-haiku-latest",
		SystemPrompt: "system",
		UserPrompt:   "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestMaxTokensAndTemperature(t *testing.T) {
	cfg := config.LLMProviderConfig{MaxTokens: 512, Temperature: 0.3}
	assert.Equal(t, 100, maxTokens(schemas.GenerationRequest{MaxTokens: 100}, cfg))
	assert.Equal(t, 512, maxTokens(schemas.GenerationRequest{}, cfg))
	assert.Equal(t, defaultMaxTokens, maxTokens(schemas.GenerationRequest{}, config.LLMProviderConfig{}))
	assert.Equal(t, 0.7, temperature(schemas.GenerationRequest{Temperature: 0.7}, cfg))
	assert.Equal(t, 0.3, temperature(schemas.GenerationRequest{}, cfg))
}
