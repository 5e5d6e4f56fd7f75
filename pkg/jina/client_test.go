package jina

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
)

func TestRead_Success(t *testing.T) {
	t.Parallel()

	want := ReadResponse{
		Code: 200,
		Data: ReadData{
			Title:   "Jane Doe - Acme Realty",
			URL:     "https://acme.com/jane",
			Content: "# Jane Doe\n\nListing agent.",
			Usage:   ReadUsage{Tokens: 2150},
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "markdown", r.Header.Get("X-Return-Format"))
		assert.Equal(t, "main", r.Header.Get("X-Target-Selector"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(want) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithTargetSelector("main"))
	got, err := client.Read(context.Background(), "https://acme.com/jane")

	require.NoError(t, err)
	assert.Equal(t, want.Code, got.Code)
	assert.Equal(t, want.Data.Title, got.Data.Title)
	assert.Equal(t, want.Data.Content, got.Data.Content)
	assert.Equal(t, want.Data.Usage.Tokens, got.Data.Usage.Tokens)
}

func TestRead_NoAPIKeyOmitsAuth(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{"code":200,"data":{"content":"x"}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := NewClient("", WithBaseURL(srv.URL)).Read(context.Background(), "https://a.com")
	require.NoError(t, err)
}

func TestRead_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limit exceeded"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := NewClient("test-key", WithBaseURL(srv.URL)).Read(context.Background(), "https://acme.com")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "rate limit exceeded")
}

func TestRead_InvalidJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`)) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).Read(context.Background(), "https://acme.com")
	assert.Error(t, err)
}

func TestRead_ContextCancelled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewClient("k", WithBaseURL(srv.URL)).Read(ctx, "https://acme.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
