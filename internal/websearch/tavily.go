// Package websearch provides the external web-search fallback used when
// the local index has nothing relevant.
package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.tavily.com"

// Client is the search capability the retrieval orchestrator consumes.
type Client interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// Result is one web-search snippet.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// TavilyClient talks to the Tavily search REST API.
type TavilyClient struct {
	apiKey      string
	baseURL     string
	searchDepth string
	httpClient  *http.Client
}

// NewTavilyClient fails fast on a missing API key so misconfiguration
// surfaces at startup, not on the first degraded query.
func NewTavilyClient(apiKey, searchDepth string, timeout time.Duration) (*TavilyClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("websearch: tavily API key is required")
	}
	if searchDepth == "" {
		searchDepth = "advanced"
	}
	return &TavilyClient{
		apiKey:      apiKey,
		baseURL:     defaultBaseURL,
		searchDepth: searchDepth,
		httpClient:  &http.Client{Timeout: timeout},
	}, nil
}

// WithBaseURL points the client at a different host. Used by tests.
func (c *TavilyClient) WithBaseURL(baseURL string) *TavilyClient {
	c.baseURL = baseURL
	return c
}

type searchRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

type searchResponse struct {
	Results []Result `json:"results"`
}

func (c *TavilyClient) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if maxResults <= 0 {
		maxResults = 5
	}

	body, err := json.Marshal(searchRequest{
		APIKey:      c.apiKey,
		Query:       query,
		SearchDepth: c.searchDepth,
		MaxResults:  maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tavily search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("tavily search: status %d: %s", resp.StatusCode, data)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return parsed.Results, nil
}
