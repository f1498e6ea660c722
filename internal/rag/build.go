package rag

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nikhilbhutani/chatdocs/internal/config"
	"github.com/nikhilbhutani/chatdocs/internal/embedding"
	"github.com/nikhilbhutani/chatdocs/internal/llm"
	"github.com/nikhilbhutani/chatdocs/internal/vectorstore"
	"github.com/nikhilbhutani/chatdocs/internal/vectorstore/snapshot"
	"github.com/nikhilbhutani/chatdocs/internal/websearch"
	"github.com/nikhilbhutani/chatdocs/pkg/chunker"
)

// Build assembles the pipeline from configuration: chunker, embedder,
// vector store backend, optional web-search fallback, and the generator.
// Every construction error is fatal; a half-built pipeline must never
// serve requests. Shared by the API and worker binaries so both sides
// index and search identically.
func Build(db *pgxpool.Pool, gateway llm.Gateway, cfg *config.Config) (*Pipeline, error) {
	embedSvc := embedding.NewService(gateway, cfg.LLM.EmbeddingModel)

	var split chunker.Chunker
	var err error
	if cfg.RAG.SemanticChunking {
		split, err = chunker.NewSemantic(embedSvc, cfg.RAG.BreakpointPercentile)
	} else {
		split, err = chunker.NewFixedSize(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	}
	if err != nil {
		return nil, fmt.Errorf("build chunker: %w", err)
	}

	var store vectorstore.VectorStore
	switch cfg.RAG.IndexBackend {
	case "snapshot":
		store, err = snapshot.Open(snapshot.NewFileStore(cfg.RAG.IndexPath), embedSvc, split)
	case "pgvector":
		store, err = vectorstore.NewPgVectorStore(db, embedSvc, split)
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.RAG.IndexBackend)
	}
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	var search websearch.Client
	if cfg.WebSearch.TavilyKey != "" {
		search, err = websearch.NewTavilyClient(cfg.WebSearch.TavilyKey, cfg.WebSearch.SearchDepth, cfg.WebSearch.Timeout)
		if err != nil {
			return nil, fmt.Errorf("build web search client: %w", err)
		}
	}

	retriever := NewRetriever(store, search,
		WithTopK(cfg.RAG.TopK),
		WithSimilarityThreshold(cfg.RAG.SimilarityThreshold),
		WithMaxWebResults(cfg.WebSearch.MaxResults),
		WithSearchTimeout(cfg.WebSearch.Timeout),
	)

	generator, err := NewGenerator(gateway, cfg.LLM.DefaultProvider, cfg.LLM.DefaultModel, cfg.RAG.GenerationTimeout)
	if err != nil {
		return nil, fmt.Errorf("build generator: %w", err)
	}

	return NewPipeline(store, retriever, generator, nil)
}
