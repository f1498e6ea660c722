package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTavilyClientRequiresAPIKey(t *testing.T) {
	_, err := NewTavilyClient("", "advanced", time.Second)
	assert.Error(t, err)
}

func TestSearchSendsRequestAndParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search", r.URL.Path)

		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-key", req.APIKey)
		assert.Equal(t, "capital of France", req.Query)
		assert.Equal(t, "advanced", req.SearchDepth)
		assert.Equal(t, 3, req.MaxResults)

		json.NewEncoder(w).Encode(searchResponse{Results: []Result{
			{Title: "Paris", URL: "https://example.com/paris", Content: "Paris is the capital of France."},
		}})
	}))
	defer srv.Close()

	client, err := NewTavilyClient("test-key", "advanced", time.Second)
	require.NoError(t, err)
	client.WithBaseURL(srv.URL)

	results, err := client.Search(context.Background(), "capital of France", 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Paris", results[0].Title)
	assert.Contains(t, results[0].Content, "capital of France")
}

func TestSearchDefaultsMaxResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 5, req.MaxResults)
		json.NewEncoder(w).Encode(searchResponse{})
	}))
	defer srv.Close()

	client, err := NewTavilyClient("test-key", "", time.Second)
	require.NoError(t, err)
	client.WithBaseURL(srv.URL)

	results, err := client.Search(context.Background(), "anything", 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, err := NewTavilyClient("bad-key", "advanced", time.Second)
	require.NoError(t, err)
	client.WithBaseURL(srv.URL)

	_, err = client.Search(context.Background(), "anything", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}
