package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/jarvis/internal/apperr"
)

type capturedRequest struct {
	Auth string
	Body map[string]any
}

func newTestServer(t *testing.T, status int, body string) (*httptest.Server, <-chan capturedRequest) {
	t.Helper()
	captured := make(chan capturedRequest, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var decoded map[string]any
		_ = json.NewDecoder(r.Body).Decode(&decoded)
		captured <- capturedRequest{Auth: r.Header.Get("Authorization"), Body: decoded}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

const okBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o-mini",
  "choices": [{
    "index": 0,
    "finish_reason": "stop",
    "message": {"role": "assistant", "content": "  Right away, sir.  "}
  }],
  "usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
}`

func newTestProvider(url string) *OpenAIProvider {
	return NewOpenAIProvider(&ProviderConfig{Endpoint: url, Timeout: 5 * time.Second})
}

func TestOpenAIProvider_Chat(t *testing.T) {
	srv, captured := newTestServer(t, http.StatusOK, okBody)
	p := newTestProvider(srv.URL)

	resp, err := p.Chat(context.Background(), &ChatRequest{
		SystemPrompt: "You are JARVIS.",
		Messages: []Message{
			{Role: RoleUser, Content: "hello"},
			{Role: RoleAssistant, Content: "Good evening."},
			{Role: RoleUser, Content: "pause it"},
		},
		Temperature: 0.6,
		APIKey:      "sk-test",
	})
	require.NoError(t, err)

	assert.Equal(t, "Right away, sir.", resp.Content)
	assert.Equal(t, "gpt-4o-mini", resp.Model)
	assert.Equal(t, 12, resp.PromptTokens)
	assert.Equal(t, 4, resp.CompletionTokens)
	assert.Equal(t, "stop", resp.FinishReason)

	req := <-captured
	assert.Equal(t, "Bearer sk-test", req.Auth)
	assert.Equal(t, "gpt-4o-mini", req.Body["model"])
	assert.Equal(t, 0.6, req.Body["temperature"])
	assert.Equal(t, float64(1000), req.Body["max_tokens"])
	assert.NotContains(t, req.Body, "response_format")

	msgs, ok := req.Body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "assistant", msgs[2].(map[string]any)["role"])
}

func TestOpenAIProvider_JSONMode(t *testing.T) {
	srv, captured := newTestServer(t, http.StatusOK, okBody)
	p := newTestProvider(srv.URL)

	_, err := p.Chat(context.Background(), &ChatRequest{
		Messages:    []Message{{Role: RoleUser, Content: "classify"}},
		Temperature: 0.1,
		MaxTokens:   50,
		JSONMode:    true,
		APIKey:      "sk-test",
	})
	require.NoError(t, err)

	req := <-captured
	assert.Equal(t, float64(50), req.Body["max_tokens"])
	format, ok := req.Body["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_object", format["type"])
}

func TestOpenAIProvider_StatusError(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusTooManyRequests,
		`{"error":{"message":"Rate limit reached","type":"requests","code":"rate_limit_exceeded"}}`)
	p := newTestProvider(srv.URL)

	_, err := p.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
		APIKey:   "sk-test",
	})
	require.Error(t, err)

	var statusErr *apperr.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Equal(t, apperr.MessageRateLimit, apperr.UserMessage(&apperr.ExhaustedError{Kind: "complete", Attempts: 3, Last: err}))
}

func TestOpenAIProvider_NoChoices(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{"id":"x","object":"chat.completion","model":"gpt-4o-mini","choices":[]}`)
	p := newTestProvider(srv.URL)

	_, err := p.Chat(context.Background(), &ChatRequest{APIKey: "sk-test"})
	assert.ErrorIs(t, err, apperr.ErrMalformedResponse)
}

func TestOpenAIProvider_RequiresKey(t *testing.T) {
	p := newTestProvider("http://127.0.0.1:1")
	_, err := p.Chat(context.Background(), &ChatRequest{})
	assert.ErrorIs(t, err, apperr.ErrMissingCredential)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("openai")
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.Equal(t, 1000, cfg.MaxTokens)
	assert.Equal(t, 0.6, cfg.Temperature)

	p := NewOpenAIProvider(&ProviderConfig{Model: "gpt-4o"})
	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, "https://api.openai.com/v1", p.Config().Endpoint)
	assert.Equal(t, "gpt-4o", p.Config().Model)
}
