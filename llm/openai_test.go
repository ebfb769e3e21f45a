package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/canvasflow/types"
)

func newOpenAIServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *OpenAIProvider) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	provider := NewOpenAIProvider(OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
	}, zap.NewNop())
	return server, provider
}

func TestOpenAIProvider_Completion(t *testing.T) {
	var gotAuth string
	var gotReq openAIRequest
	_, provider := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(map[string]any{
			"id":    "cmpl-1",
			"model": "gpt-4o",
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": `[{"tool":"navigate","params":{"url":"https://a"}}]`}},
			},
			"usage":   map[string]int{"prompt_tokens": 20, "completion_tokens": 12, "total_tokens": 32},
			"created": 1756684800,
		})
	})

	resp, err := provider.Completion(context.Background(), &CompletionRequest{
		Model: "gpt-4o",
		Messages: []Message{
			{Role: RoleUser, Content: "plan it"},
		},
		MaxTokens: 1024,
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "gpt-4o", gotReq.Model)
	assert.Equal(t, 1024, gotReq.MaxTokens)
	assert.Contains(t, resp.Content, "navigate")
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, 32, resp.Usage.TotalTokens)
}

func TestOpenAIProvider_RateLimited(t *testing.T) {
	_, provider := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "rate limit exceeded", "type": "rate_limit_error"},
		})
	})

	_, err := provider.Completion(context.Background(), &CompletionRequest{Model: "gpt-4o"})
	require.Error(t, err)

	assert.Equal(t, types.ErrRateLimited, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
	assert.Contains(t, err.Error(), "rate limit exceeded")
}

func TestOpenAIProvider_ServerErrorRetryable(t *testing.T) {
	_, provider := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	})

	_, err := provider.Completion(context.Background(), &CompletionRequest{Model: "gpt-4o"})
	require.Error(t, err)
	assert.Equal(t, types.ErrUpstreamError, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}

func TestOpenAIProvider_BadRequestNotRetryable(t *testing.T) {
	_, provider := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "model not found"},
		})
	})

	_, err := provider.Completion(context.Background(), &CompletionRequest{Model: "bogus"})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
	assert.False(t, types.IsRetryable(err))
}

func TestOpenAIProvider_EmptyChoices(t *testing.T) {
	_, provider := newOpenAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": "x", "choices": []any{}})
	})

	_, err := provider.Completion(context.Background(), &CompletionRequest{Model: "gpt-4o"})
	require.Error(t, err)
	assert.Equal(t, types.ErrUpstreamError, types.GetErrorCode(err))
}
