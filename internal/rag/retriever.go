// Package rag wires retrieval, web-search fallback, and grounded answer
// generation into the pipeline behind the chat endpoint.
package rag

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/nikhilbhutani/chatdocs/internal/vectorstore"
	"github.com/nikhilbhutani/chatdocs/internal/websearch"
)

const (
	// NoResultsContext is the placeholder when neither the index nor web
	// search produced anything.
	NoResultsContext = "No results found."
	// ErrorContext replaces the context when retrieval itself failed; the
	// user still gets an answer attempt.
	ErrorContext = "Error retrieving documents."

	webResultsHeader = "Web Search Results:"
)

// Retriever assembles the context string for a query: local chunks first,
// web-search results appended when the index comes up empty or weak.
type Retriever struct {
	store      vectorstore.VectorStore
	search     websearch.Client
	topK       int
	threshold  float64
	maxWebHits int
	timeout    time.Duration
	logger     *slog.Logger
}

type RetrieverOption func(*Retriever)

func WithTopK(k int) RetrieverOption {
	return func(r *Retriever) { r.topK = k }
}

func WithSimilarityThreshold(t float64) RetrieverOption {
	return func(r *Retriever) { r.threshold = t }
}

func WithMaxWebResults(n int) RetrieverOption {
	return func(r *Retriever) { r.maxWebHits = n }
}

func WithSearchTimeout(d time.Duration) RetrieverOption {
	return func(r *Retriever) { r.timeout = d }
}

func WithLogger(l *slog.Logger) RetrieverOption {
	return func(r *Retriever) { r.logger = l }
}

// NewRetriever builds a retriever. The web-search client may be nil, in
// which case the fallback step is skipped and weak queries degrade straight
// to the no-results placeholder.
func NewRetriever(store vectorstore.VectorStore, search websearch.Client, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		store:      store,
		search:     search,
		topK:       10,
		threshold:  0.5,
		maxWebHits: 5,
		timeout:    15 * time.Second,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns the context string for a query, scoped to a chat when
// chatID is non-empty. It never returns an error: any failure degrades to a
// placeholder so the caller can still attempt an answer.
func (r *Retriever) Retrieve(ctx context.Context, query, chatID string) string {
	var filter map[string]string
	if chatID != "" {
		filter = map[string]string{vectorstore.MetaChatID: chatID}
	}

	// The threshold is applied inside the search, so an empty result set
	// covers both fallback triggers: nothing local, and nothing relevant
	// enough.
	scored, err := r.store.SearchWithScore(ctx, query, r.topK, r.threshold, filter)
	if err != nil {
		r.logger.Error("vector search failed", "error", err, "chat_id", chatID)
		return ErrorContext
	}

	var sb strings.Builder
	for i, s := range scored {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(s.Content)
	}

	if len(scored) == 0 {
		if web := r.webContext(ctx, query); web != "" {
			sb.WriteString(webResultsHeader)
			sb.WriteString("\n")
			sb.WriteString(web)
		}
	}

	if sb.Len() == 0 {
		return NoResultsContext
	}
	return sb.String()
}

func (r *Retriever) webContext(ctx context.Context, query string) string {
	if r.search == nil {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	results, err := r.search.Search(ctx, query, r.maxWebHits)
	if err != nil {
		r.logger.Warn("web search fallback failed", "error", err)
		return ""
	}

	snippets := make([]string, 0, len(results))
	for _, res := range results {
		if res.Content == "" {
			continue
		}
		snippets = append(snippets, res.Content)
	}
	return strings.Join(snippets, "\n")
}
