package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func messageJSON(text string) map[string]any {
	return map[string]any{
		"id":   "msg_test_001",
		"type": "message",
		"role": "assistant",
		"content": []map[string]any{
			{"type": "text", "text": text},
		},
		"model":       "claude-haiku-4-5-20251001",
		"stop_reason": "end_turn",
		"usage": map[string]any{
			"input_tokens":  1200,
			"output_tokens": 80,
		},
	}
}

func TestCreateMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/messages")

		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "claude-haiku-4-5-20251001", payload["model"])
		assert.NotNil(t, payload["system"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(messageJSON(`{"name":"Jane Doe"}`)) //nolint:errcheck
	}))
	defer ts.Close()

	client := NewClient("test-key", option.WithBaseURL(ts.URL))
	temp := 0.0
	resp, err := client.CreateMessage(context.Background(), MessageRequest{
		Model:       "claude-haiku-4-5-20251001",
		MaxTokens:   1024,
		System:      "extract contacts",
		Messages:    []Message{{Role: "user", Content: "page text"}},
		Temperature: &temp,
	})
	require.NoError(t, err)
	assert.Equal(t, "msg_test_001", resp.ID)
	assert.Equal(t, `{"name":"Jane Doe"}`, resp.Text())
	assert.Equal(t, int64(1200), resp.Usage.InputTokens)
	assert.Equal(t, int64(80), resp.Usage.OutputTokens)
}

func TestCreateMessage_WithImage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"type":"image"`)
		assert.Contains(t, string(body), `"media_type":"image/png"`)
		assert.Contains(t, string(body), `"data":"aGVsbG8="`)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(messageJSON("{}")) //nolint:errcheck
	}))
	defer ts.Close()

	client := NewClient("test-key", option.WithBaseURL(ts.URL))
	_, err := client.CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 512,
		Messages: []Message{{
			Role:    "user",
			Content: "extract from screenshot",
			Images:  []Image{{MediaType: "image/png", Data: "aGVsbG8="}},
		}},
	})
	require.NoError(t, err)
}

func TestCreateMessage_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)) //nolint:errcheck
	}))
	defer ts.Close()

	client := NewClient("test-key", option.WithBaseURL(ts.URL))
	_, err := client.CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 16,
		Messages:  []Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
}

func TestMessageResponseText(t *testing.T) {
	resp := &MessageResponse{Content: []ContentBlock{
		{Type: "text", Text: "a"},
		{Type: "tool_use", Text: "ignored"},
		{Type: "text", Text: "b"},
	}}
	assert.Equal(t, "ab", resp.Text())

	var nilResp *MessageResponse
	assert.Empty(t, nilResp.Text())
}
