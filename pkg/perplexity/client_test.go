package perplexity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatCompletion_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer pplx-key", r.Header.Get("Authorization"))

		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "sonar-pro", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		json.NewEncoder(w).Encode(ChatCompletionResponse{ //nolint:errcheck
			ID:      "cmpl-1",
			Choices: []Choice{{Message: Message{Role: "assistant", Content: "  {\"name\":\"Jane\"}  "}}},
			Usage:   Usage{PromptTokens: 120, CompletionTokens: 30},
		})
	}))
	defer srv.Close()

	c := NewClient("pplx-key", WithBaseURL(srv.URL), WithModel("sonar-pro"))
	resp, err := c.ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages: []Message{
			{Role: "system", Content: "extract"},
			{Role: "user", Content: "https://acme.com/jane"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Jane"}`, resp.Text())
	assert.Equal(t, 120, resp.Usage.PromptTokens)
	assert.Equal(t, 30, resp.Usage.CompletionTokens)
}

func TestChatCompletion_APIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid api key"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := NewClient("bad", WithBaseURL(srv.URL)).ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, `{"error":"invalid api key"}`, apiErr.Body)
}

func TestChatCompletion_NoMessages(t *testing.T) {
	t.Parallel()

	_, err := NewClient("key", WithBaseURL("http://127.0.0.1:1")).ChatCompletion(context.Background(), ChatCompletionRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one message")
}

func TestChatCompletion_ProfileLookup(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.JSONEq(t, `["acme.com"]`, string(raw["search_domain_filter"]))
		assert.JSONEq(t, `{"type":"json_schema","json_schema":{"schema":{"type":"object"}}}`, string(raw["response_format"]))
		assert.JSONEq(t, `"sonar"`, string(raw["model"]))

		w.Write([]byte(`{"id":"c1","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{}"}}],` + //nolint:errcheck
			`"usage":{"prompt_tokens":10,"completion_tokens":2},"citations":["https://acme.com/jane"]}`))
	}))
	defer srv.Close()

	c := NewClient("key", WithBaseURL(srv.URL+"/"))
	resp, err := c.ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages:           []Message{{Role: "user", Content: "https://acme.com/jane"}},
		SearchDomainFilter: []string{"acme.com"},
		ResponseFormat:     JSONResponse(`{"type":"object"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://acme.com/jane"}, resp.Citations)
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)
}

func TestResponseText_Empty(t *testing.T) {
	t.Parallel()

	var nilResp *ChatCompletionResponse
	assert.Empty(t, nilResp.Text())
	assert.Empty(t, (&ChatCompletionResponse{}).Text())
}
